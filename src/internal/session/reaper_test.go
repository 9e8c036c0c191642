package session

import (
	"context"
	"testing"
	"time"

	"ctf-session-svc/src/internal/config"
	"ctf-session-svc/src/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func newTestReaper() (*Reaper, *fakeSessionRepo, *fakeProvisioner, *fakePublisher) {
	cfg := &config.Configuration{
		Session: config.SessionConfig{ReapIntervalSeconds: 60},
	}

	repo := newFakeSessionRepo(map[int]*models.Problem{
		1: {ID: 1, DurationMinutes: 60, Score: 100},
	})
	prov := newFakeProvisioner()
	publisher := &fakePublisher{}

	return NewReaper(repo, prov, publisher, cfg), repo, prov, publisher
}

func expiredSession(userID int, status models.SessionStatus, taskArn string) *models.Session {
	now := time.Now().UTC()
	return &models.Session{
		ID:        primitive.NewObjectID(),
		UserID:    userID,
		ProblemID: 1,
		Flag:      "aaaaaaaaaaaaaaaa",
		Status:    status,
		TaskArn:   taskArn,
		StartedAt: now.Add(-2 * time.Hour),
		EndedAt:   now.Add(-time.Hour),
	}
}

func TestTickReapsExpiredSessionsAcrossStatuses(t *testing.T) {
	reaper, repo, prov, publisher := newTestReaper()

	pending := expiredSession(1, models.StatusPending, "")
	running := expiredSession(2, models.StatusRunning, "arn:aws:ecs:task/live")
	errored := expiredSession(3, models.StatusError, "")
	repo.put(pending)
	repo.put(running)
	repo.put(errored)

	reaper.Tick(context.Background())

	assert.Nil(t, repo.get(pending.ID.Hex()))
	assert.Nil(t, repo.get(running.ID.Hex()))
	assert.Nil(t, repo.get(errored.ID.Hex()))
	assert.Equal(t, []string{"arn:aws:ecs:task/live"}, prov.terminatedTasks())

	events := publisher.published()
	require.Len(t, events, 3)
	for _, event := range events {
		assert.Equal(t, models.EventSessionExpired, event.Event)
	}
}

func TestTickLeavesLiveSessionsAlone(t *testing.T) {
	reaper, repo, prov, _ := newTestReaper()

	live, err := repo.Create(context.Background(), 1, 1, "aaaaaaaaaaaaaaaa")
	require.NoError(t, err)

	reaper.Tick(context.Background())

	assert.NotNil(t, repo.get(live.ID.Hex()))
	assert.Empty(t, prov.terminatedTasks())
}

func TestTickContinuesPastTerminateFailure(t *testing.T) {
	reaper, repo, prov, _ := newTestReaper()
	prov.terminateErr = models.ErrTerminateFailed

	withTask := expiredSession(1, models.StatusRunning, "arn:aws:ecs:task/stuck")
	withoutTask := expiredSession(2, models.StatusError, "")
	repo.put(withTask)
	repo.put(withoutTask)

	reaper.Tick(context.Background())

	// the stuck session stays for the next tick, the rest of the batch reaps
	assert.NotNil(t, repo.get(withTask.ID.Hex()))
	assert.Nil(t, repo.get(withoutTask.ID.Hex()))
}

func TestTickToleratesConcurrentDeletion(t *testing.T) {
	reaper, repo, _, publisher := newTestReaper()

	gone := expiredSession(1, models.StatusRunning, "")
	repo.put(gone)
	repo.deleteErr = models.ErrSessionNotFound

	reaper.Tick(context.Background())

	assert.Empty(t, publisher.published(), "a session someone else reclaimed is skipped silently")
}

func TestTickRespectsContextDeadline(t *testing.T) {
	reaper, repo, prov, _ := newTestReaper()

	repo.put(expiredSession(1, models.StatusRunning, "arn:aws:ecs:task/live"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	reaper.Tick(ctx)

	// an expired tick budget gives up instead of reaping with no bound
	sessions, err := repo.Find(context.Background(), &models.SessionFilter{UserID: 1})
	require.NoError(t, err)
	assert.Len(t, sessions, 1)
	assert.Empty(t, prov.terminatedTasks())
}

func TestReaperScheduleScenario(t *testing.T) {
	reaper, repo, prov, _ := newTestReaper()

	// a 60 minute session observed 100 seconds past its deadline
	now := time.Now().UTC()
	sess := &models.Session{
		ID:        primitive.NewObjectID(),
		UserID:    1,
		ProblemID: 1,
		Status:    models.StatusRunning,
		TaskArn:   "arn:aws:ecs:task/t0",
		StartedAt: now.Add(-3700 * time.Second),
		EndedAt:   now.Add(-100 * time.Second),
	}
	repo.put(sess)

	reaper.Tick(context.Background())

	assert.Nil(t, repo.get(sess.ID.Hex()))
	assert.Equal(t, []string{"arn:aws:ecs:task/t0"}, prov.terminatedTasks())
}
