package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"ctf-session-svc/src/internal/models"
	"ctf-session-svc/src/internal/provisioner"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// In-memory doubles for the orchestrator's collaborators. The session repo
// mirrors the store contract, including the one-live-session-per-user unique
// index and NotFound on update/delete of missing rows.

type fakeSessionRepo struct {
	mu       sync.Mutex
	sessions map[string]*models.Session
	problems map[int]*models.Problem

	findErr   error
	createErr error
	updateErr error
	deleteErr error
}

func newFakeSessionRepo(problems map[int]*models.Problem) *fakeSessionRepo {
	return &fakeSessionRepo{
		sessions: make(map[string]*models.Session),
		problems: problems,
	}
}

func (r *fakeSessionRepo) EnsureIndexes(ctx context.Context) error { return nil }

func (r *fakeSessionRepo) Find(ctx context.Context, filter *models.SessionFilter) ([]*models.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.findErr != nil {
		return nil, r.findErr
	}

	var out []*models.Session
	for _, sess := range r.sessions {
		if filter.ID != "" && sess.ID.Hex() != filter.ID {
			continue
		}
		if filter.UserID != 0 && sess.UserID != filter.UserID {
			continue
		}
		if filter.ProblemID != 0 && sess.ProblemID != filter.ProblemID {
			continue
		}
		if filter.Status != "" && sess.Status != filter.Status {
			continue
		}
		copied := *sess
		out = append(out, &copied)
	}
	return out, nil
}

func (r *fakeSessionRepo) FindExpired(ctx context.Context, now time.Time) ([]*models.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.findErr != nil {
		return nil, r.findErr
	}

	var out []*models.Session
	for _, sess := range r.sessions {
		if sess.EndedAt.Before(now) {
			copied := *sess
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (r *fakeSessionRepo) Create(ctx context.Context, userID, problemID int, flag string) (*models.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.createErr != nil {
		return nil, r.createErr
	}

	prob, ok := r.problems[problemID]
	if !ok {
		return nil, models.ErrProblemNotFound
	}

	for _, sess := range r.sessions {
		if sess.UserID == userID && (sess.Status == models.StatusPending || sess.Status == models.StatusRunning) {
			return nil, models.ErrActiveSessionExists
		}
	}

	now := time.Now().UTC()
	sess := &models.Session{
		ID:        primitive.NewObjectID(),
		UserID:    userID,
		ProblemID: problemID,
		Flag:      flag,
		Status:    models.StatusPending,
		StartedAt: now,
		EndedAt:   now.Add(time.Duration(prob.DurationMinutes) * time.Minute),
	}
	r.sessions[sess.ID.Hex()] = sess

	copied := *sess
	return &copied, nil
}

func (r *fakeSessionRepo) Update(ctx context.Context, sessionID string, update *models.SessionUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.updateErr != nil {
		return r.updateErr
	}

	sess, ok := r.sessions[sessionID]
	if !ok {
		return models.ErrSessionNotFound
	}

	if update.Status != nil {
		sess.Status = *update.Status
	}
	if update.TaskArn != nil {
		sess.TaskArn = *update.TaskArn
	}
	if update.IPAddress != nil {
		sess.IPAddress = *update.IPAddress
	}
	return nil
}

func (r *fakeSessionRepo) Delete(ctx context.Context, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.deleteErr != nil {
		return r.deleteErr
	}

	if _, ok := r.sessions[sessionID]; !ok {
		return models.ErrSessionNotFound
	}
	delete(r.sessions, sessionID)
	return nil
}

func (r *fakeSessionRepo) get(sessionID string) *models.Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := r.sessions[sessionID]
	if !ok {
		return nil
	}
	copied := *sess
	return &copied
}

func (r *fakeSessionRepo) put(sess *models.Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[sess.ID.Hex()] = sess
}

type fakeProblemRepo struct {
	problems map[int]*models.Problem
}

func (r *fakeProblemRepo) GetByID(ctx context.Context, problemID int) (*models.Problem, error) {
	prob, ok := r.problems[problemID]
	if !ok {
		return nil, models.ErrProblemNotFound
	}
	return prob, nil
}

type fakeProvisioner struct {
	mu sync.Mutex

	createErr    error
	awaitErr     error
	describeErr  error
	terminateErr error
	eniID        string

	// when set, AwaitReady blocks until the channel is closed, keeping the
	// session observable in its pending state
	awaitCh chan struct{}

	// when set, DescribeTask returns a nil result with a nil error, the
	// shape of a misbehaving client
	describeNilResult bool

	arnSeq     int
	created    []string
	terminated []string
}

func newFakeProvisioner() *fakeProvisioner {
	return &fakeProvisioner{eniID: "eni-0123456789abcdef0"}
}

func (p *fakeProvisioner) CreateTask(ctx context.Context, spec *provisioner.TaskSpec) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.createErr != nil {
		return "", p.createErr
	}
	p.arnSeq++
	arn := fmt.Sprintf("arn:aws:ecs:task/%d", p.arnSeq)
	p.created = append(p.created, arn)
	return arn, nil
}

func (p *fakeProvisioner) AwaitReady(ctx context.Context, taskArn string, timeout time.Duration) error {
	if p.awaitCh != nil {
		<-p.awaitCh
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.awaitErr
}

func (p *fakeProvisioner) DescribeTask(ctx context.Context, taskArn string) (*provisioner.TaskDetails, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.describeErr != nil {
		return nil, p.describeErr
	}
	if p.describeNilResult {
		return nil, nil
	}
	return &provisioner.TaskDetails{
		TaskArn:            taskArn,
		LastStatus:         "RUNNING",
		NetworkInterfaceID: p.eniID,
	}, nil
}

func (p *fakeProvisioner) TerminateTask(ctx context.Context, taskArn, reason string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.terminateErr != nil {
		return p.terminateErr
	}
	p.terminated = append(p.terminated, taskArn)
	return nil
}

func (p *fakeProvisioner) terminatedTasks() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.terminated...)
}

func (p *fakeProvisioner) setAwaitErr(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.awaitErr = err
}

func (p *fakeProvisioner) setCreateErr(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.createErr = err
}

func (p *fakeProvisioner) setTerminateErr(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.terminateErr = err
}

type fakeLocator struct {
	subnets    []string
	subnetsErr error
	sg         string
	sgErr      error
	ip         string
	ipErr      error
}

func newFakeLocator() *fakeLocator {
	return &fakeLocator{
		subnets: []string{"subnet-aaa", "subnet-bbb"},
		sg:      "sg-123",
		ip:      "203.0.113.10",
	}
}

func (l *fakeLocator) FindAvailableSubnets(ctx context.Context) ([]string, error) {
	if l.subnetsErr != nil {
		return nil, l.subnetsErr
	}
	return l.subnets, nil
}

func (l *fakeLocator) FindSecurityGroup(ctx context.Context) (string, error) {
	if l.sgErr != nil {
		return "", l.sgErr
	}
	return l.sg, nil
}

func (l *fakeLocator) FindNetworkInterface(ctx context.Context, interfaceID string) (string, error) {
	if l.ipErr != nil {
		return "", l.ipErr
	}
	return l.ip, nil
}

type fakeLocker struct {
	mu   sync.Mutex
	held map[int]bool
	err  error
}

func newFakeLocker() *fakeLocker {
	return &fakeLocker{held: make(map[int]bool)}
}

func (l *fakeLocker) Acquire(ctx context.Context, userID int) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.err != nil {
		return false, l.err
	}
	if l.held[userID] {
		return false, nil
	}
	l.held[userID] = true
	return true, nil
}

func (l *fakeLocker) Release(ctx context.Context, userID int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, userID)
}

type fakeRecorder struct {
	mu     sync.Mutex
	solved map[string]bool
	err    error
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{solved: make(map[string]bool)}
}

func (r *fakeRecorder) RecordSolve(ctx context.Context, userID, problemID, score int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.err != nil {
		return 0, r.err
	}

	key := fmt.Sprintf("%d:%d", userID, problemID)
	if r.solved[key] {
		return 0, nil
	}
	r.solved[key] = true
	return score, nil
}

type fakePublisher struct {
	mu     sync.Mutex
	events []*models.SessionEventMessage
}

func (p *fakePublisher) PublishSessionEvent(event *models.SessionEventMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *fakePublisher) published() []*models.SessionEventMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*models.SessionEventMessage(nil), p.events...)
}
