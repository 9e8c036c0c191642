package session

import (
	"context"
	"errors"
	"time"

	"ctf-session-svc/src/internal/config"
	"ctf-session-svc/src/internal/events"
	"ctf-session-svc/src/internal/models"
	"ctf-session-svc/src/internal/provisioner"

	"github.com/sirupsen/logrus"
)

// Reaper deletes sessions whose deadline has passed, whatever their status,
// and terminates their compute tasks. It runs until Stop is called.
type Reaper struct {
	sessions Repository
	prov     provisioner.Provisioner
	events   events.Publisher
	interval time.Duration
	stop     chan struct{}
	done     chan struct{}
}

func NewReaper(sessions Repository, prov provisioner.Provisioner, publisher events.Publisher, cfg *config.Configuration) *Reaper {
	return &Reaper{
		sessions: sessions,
		prov:     prov,
		events:   publisher,
		interval: time.Duration(cfg.Session.ReapIntervalSeconds) * time.Second,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (r *Reaper) Start() {
	logrus.WithField("interval", r.interval).Info("Session reaper started")

	go func() {
		defer close(r.done)

		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				// bounded so one hung store or cloud call cannot stall
				// reaping past the next tick
				ctx, cancel := context.WithTimeout(context.Background(), r.interval)
				r.Tick(ctx)
				cancel()
			case <-r.stop:
				return
			}
		}
	}()
}

func (r *Reaper) Stop() {
	close(r.stop)
	<-r.done
	logrus.Info("Session reaper stopped")
}

// Tick reaps every session past its deadline. A failure on one session is
// logged and the batch continues; a session that vanished between the query
// and the delete was torn down by someone else and is skipped silently.
func (r *Reaper) Tick(ctx context.Context) {
	expired, err := r.sessions.FindExpired(ctx, time.Now().UTC())
	if err != nil {
		logrus.WithError(err).Error("Reaper failed to query expired sessions")
		return
	}

	if len(expired) == 0 {
		return
	}

	logrus.WithField("count", len(expired)).Info("Reaping expired sessions")

	for _, session := range expired {
		r.reap(ctx, session)
	}
}

func (r *Reaper) reap(ctx context.Context, session *models.Session) {
	sessionID := session.ID.Hex()

	if session.TaskArn != "" {
		if err := r.prov.TerminateTask(ctx, session.TaskArn, "session expired"); err != nil {
			logrus.WithError(err).WithFields(logrus.Fields{
				"session_id": sessionID,
				"task_arn":   session.TaskArn,
			}).Error("Reaper failed to terminate task, will retry next tick")
			return
		}
	}

	if err := r.sessions.Delete(ctx, sessionID); err != nil {
		if errors.Is(err, models.ErrSessionNotFound) {
			logrus.WithField("session_id", sessionID).Debug("Session already deleted, skipping")
			return
		}
		logrus.WithError(err).WithField("session_id", sessionID).Error("Reaper failed to delete session")
		return
	}

	logrus.WithFields(logrus.Fields{
		"session_id": sessionID,
		"user_id":    session.UserID,
		"problem_id": session.ProblemID,
		"status":     session.Status,
		"ended_at":   session.EndedAt,
	}).Info("Expired session reaped")

	message := &models.SessionEventMessage{
		Event:     models.EventSessionExpired,
		SessionID: sessionID,
		UserID:    session.UserID,
		ProblemID: session.ProblemID,
		TaskArn:   session.TaskArn,
		Reason:    "session expired",
	}
	if err := r.events.PublishSessionEvent(message); err != nil {
		logrus.WithError(err).Warn("Failed to publish expiry event")
	}
}
