package session

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"ctf-session-svc/src/internal/config"
	"ctf-session-svc/src/internal/events"
	"ctf-session-svc/src/internal/models"
	"ctf-session-svc/src/internal/problem"
	"ctf-session-svc/src/internal/provisioner"
	"ctf-session-svc/src/internal/solve"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
)

// Service is the session lifecycle orchestrator. Launch returns as soon as
// the pending row exists; provisioning continues in the background and the
// caller observes the pending -> running/error transition on a later Get.
type Service interface {
	Launch(ctx context.Context, userID, problemID int) (*models.Session, error)
	Get(ctx context.Context, userID int, sessionID string) (*models.Session, error)
	Stop(ctx context.Context, userID int, sessionID, reason string) error
	SubmitFlag(ctx context.Context, userID int, sessionID, submitted string) (*SubmitResult, error)
}

type SubmitResult struct {
	Correct bool   `json:"correct"`
	Message string `json:"message"`
	Score   int    `json:"score,omitempty"`
}

type launchRequest struct {
	UserID    int    `validate:"required,gt=0"`
	ProblemID int    `validate:"required,gt=0"`
	Flag      string `validate:"required,alphanum,min=8,max=64"`
}

type service struct {
	sessions     Repository
	problems     problem.Repository
	prov         provisioner.Provisioner
	locator      provisioner.Locator
	locker       Locker
	solves       solve.Recorder
	events       events.Publisher
	validate     *validator.Validate
	flagLength   int
	readyTimeout time.Duration
}

func NewSessionService(
	sessions Repository,
	problems problem.Repository,
	prov provisioner.Provisioner,
	locator provisioner.Locator,
	locker Locker,
	solves solve.Recorder,
	publisher events.Publisher,
	cfg *config.Configuration,
) Service {
	return &service{
		sessions:     sessions,
		problems:     problems,
		prov:         prov,
		locator:      locator,
		locker:       locker,
		solves:       solves,
		events:       publisher,
		validate:     validator.New(),
		flagLength:   cfg.Session.FlagLength,
		readyTimeout: time.Duration(cfg.Compute.ReadyTimeoutSeconds) * time.Second,
	}
}

func (s *service) Launch(ctx context.Context, userID, problemID int) (*models.Session, error) {
	acquired, err := s.locker.Acquire(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !acquired {
		logrus.WithField("user_id", userID).Warn("Concurrent launch attempt rejected")
		return nil, models.ErrActiveSessionExists
	}
	defer s.locker.Release(ctx, userID)

	existing, err := s.sessions.Find(ctx, &models.SessionFilter{UserID: userID})
	if err != nil {
		return nil, err
	}
	for _, sess := range existing {
		if sess.Status == models.StatusPending || sess.Status == models.StatusRunning {
			logrus.WithFields(logrus.Fields{
				"user_id":    userID,
				"session_id": sess.ID.Hex(),
				"status":     sess.Status,
			}).Warn("User already has an active session")
			return nil, models.ErrActiveSessionExists
		}
	}

	// Recovery from a failed launch is delete and relaunch: stale errored
	// rows are disposed of here so the new session is the user's only one.
	for _, sess := range existing {
		if sess.Status != models.StatusError {
			continue
		}
		if sess.TaskArn != "" {
			s.terminateQuietly(ctx, sess.TaskArn, "superseded errored session")
		}
		if err := s.sessions.Delete(ctx, sess.ID.Hex()); err != nil && !errors.Is(err, models.ErrSessionNotFound) {
			return nil, err
		}
		logrus.WithFields(logrus.Fields{
			"user_id":    userID,
			"session_id": sess.ID.Hex(),
		}).Info("Disposed errored session before relaunch")
	}

	flag, err := GenerateFlag(s.flagLength)
	if err != nil {
		return nil, err
	}

	req := &launchRequest{UserID: userID, ProblemID: problemID, Flag: flag}
	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrValidation, err)
	}

	prob, err := s.problems.GetByID(ctx, problemID)
	if err != nil {
		return nil, err
	}

	session, err := s.sessions.Create(ctx, userID, problemID, flag)
	if err != nil {
		return nil, err
	}

	spec, err := s.buildTaskSpec(ctx, prob, flag)
	if err != nil {
		// Placement resolution failed before provisioning started; drop the
		// pending row instead of leaving the user blocked until the reaper.
		if delErr := s.sessions.Delete(ctx, session.ID.Hex()); delErr != nil && !errors.Is(delErr, models.ErrSessionNotFound) {
			logrus.WithError(delErr).WithField("session_id", session.ID.Hex()).Error("Failed to clean up session after placement failure")
		}
		return nil, err
	}

	go s.provision(session.ID.Hex(), userID, problemID, spec)

	logrus.WithFields(logrus.Fields{
		"session_id": session.ID.Hex(),
		"user_id":    userID,
		"problem_id": problemID,
		"ended_at":   session.EndedAt,
	}).Info("Session launched, provisioning in background")

	s.publish(models.EventSessionLaunched, session, "")

	return session, nil
}

func (s *service) buildTaskSpec(ctx context.Context, prob *models.Problem, flag string) (*provisioner.TaskSpec, error) {
	subnets, err := s.locator.FindAvailableSubnets(ctx)
	if err != nil {
		return nil, err
	}
	subnet := subnets[rand.Intn(len(subnets))]

	securityGroup, err := s.locator.FindSecurityGroup(ctx)
	if err != nil {
		return nil, err
	}

	return &provisioner.TaskSpec{
		TaskDefinition: prob.TaskDefinition,
		Subnet:         subnet,
		SecurityGroup:  securityGroup,
		Env:            map[string]string{"FLAG": flag},
	}, nil
}

// provision is the background continuation of Launch. The caller has already
// received its response, so nothing may escape here: every failure becomes an
// error-status update on the session row.
func (s *service) provision(sessionID string, userID, problemID int, spec *provisioner.TaskSpec) {
	defer func() {
		if r := recover(); r != nil {
			logrus.WithFields(logrus.Fields{
				"session_id": sessionID,
				"panic":      r,
			}).Error("Panic in provisioning continuation")

			// The outer context is already cancelled by the time this defer
			// runs; the row still must not stay pending.
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			errored := models.StatusError
			if err := s.sessions.Update(ctx, sessionID, &models.SessionUpdate{Status: &errored}); err != nil && !errors.Is(err, models.ErrSessionNotFound) {
				logrus.WithError(err).WithField("session_id", sessionID).Error("Failed to mark session errored after panic")
			}
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), s.readyTimeout+2*time.Minute)
	defer cancel()

	taskArn, err := s.prov.CreateTask(ctx, spec)
	if err != nil {
		s.failProvisioning(ctx, sessionID, userID, problemID, "", err)
		return
	}

	if err := s.prov.AwaitReady(ctx, taskArn, s.readyTimeout); err != nil {
		s.failProvisioning(ctx, sessionID, userID, problemID, taskArn, err)
		return
	}

	details, err := s.prov.DescribeTask(ctx, taskArn)
	if err != nil {
		s.failProvisioning(ctx, sessionID, userID, problemID, taskArn, err)
		return
	}
	if details.NetworkInterfaceID == "" {
		s.failProvisioning(ctx, sessionID, userID, problemID, taskArn, models.ErrInterfaceNotFound)
		return
	}

	ipAddress, err := s.locator.FindNetworkInterface(ctx, details.NetworkInterfaceID)
	if err != nil {
		s.failProvisioning(ctx, sessionID, userID, problemID, taskArn, err)
		return
	}

	running := models.StatusRunning
	update := &models.SessionUpdate{
		Status:    &running,
		TaskArn:   &taskArn,
		IPAddress: &ipAddress,
	}

	if err := s.sessions.Update(ctx, sessionID, update); err != nil {
		if errors.Is(err, models.ErrSessionNotFound) {
			// The session was stopped or reaped while we were provisioning.
			// Tear the task down so it does not outlive its row.
			logrus.WithField("session_id", sessionID).Info("Session gone before provisioning finished, terminating task")
			s.terminateQuietly(ctx, taskArn, "session deleted during provisioning")
			return
		}
		logrus.WithError(err).WithField("session_id", sessionID).Error("Failed to mark session running")
		s.terminateQuietly(ctx, taskArn, "failed to record running state")
		return
	}

	logrus.WithFields(logrus.Fields{
		"session_id": sessionID,
		"task_arn":   taskArn,
		"ip_address": ipAddress,
	}).Info("Session is running")

	s.publishByID(models.EventSessionRunning, sessionID, userID, problemID, taskArn, "")
}

func (s *service) failProvisioning(ctx context.Context, sessionID string, userID, problemID int, taskArn string, cause error) {
	logrus.WithError(cause).WithFields(logrus.Fields{
		"session_id": sessionID,
		"task_arn":   taskArn,
	}).Error("Provisioning failed")

	if taskArn != "" {
		s.terminateQuietly(ctx, taskArn, "provisioning failed")
	}

	errored := models.StatusError
	if err := s.sessions.Update(ctx, sessionID, &models.SessionUpdate{Status: &errored}); err != nil {
		if !errors.Is(err, models.ErrSessionNotFound) {
			logrus.WithError(err).WithField("session_id", sessionID).Error("Failed to mark session errored")
		}
		return
	}

	s.publishByID(models.EventSessionErrored, sessionID, userID, problemID, taskArn, cause.Error())
}

func (s *service) terminateQuietly(ctx context.Context, taskArn, reason string) {
	if err := s.prov.TerminateTask(ctx, taskArn, reason); err != nil {
		logrus.WithError(err).WithField("task_arn", taskArn).Error("Failed to terminate orphaned task")
	}
}

func (s *service) Get(ctx context.Context, userID int, sessionID string) (*models.Session, error) {
	filter := &models.SessionFilter{UserID: userID}
	if sessionID != "" {
		filter = &models.SessionFilter{ID: sessionID}
	}

	session, err := s.findOne(ctx, filter)
	if err != nil {
		return nil, err
	}

	if session.UserID != userID {
		logrus.WithFields(logrus.Fields{
			"session_id": session.ID.Hex(),
			"owner_id":   session.UserID,
			"caller_id":  userID,
		}).Warn("Session access denied")
		return nil, models.ErrForbidden
	}

	return session, nil
}

func (s *service) Stop(ctx context.Context, userID int, sessionID, reason string) error {
	session, err := s.Get(ctx, userID, sessionID)
	if err != nil {
		if errors.Is(err, models.ErrSessionNotFound) {
			// Someone else already finished the teardown.
			logrus.WithField("session_id", sessionID).Debug("Stop on missing session is a no-op")
			return nil
		}
		return err
	}

	if session.Status == models.StatusPending {
		return models.ErrContainerNotReady
	}

	if session.TaskArn != "" {
		if err := s.prov.TerminateTask(ctx, session.TaskArn, reason); err != nil {
			return err
		}
	}

	if err := s.sessions.Delete(ctx, session.ID.Hex()); err != nil && !errors.Is(err, models.ErrSessionNotFound) {
		return err
	}

	logrus.WithFields(logrus.Fields{
		"session_id": session.ID.Hex(),
		"user_id":    userID,
		"reason":     reason,
	}).Info("Session stopped")

	s.publish(models.EventSessionStopped, session, reason)

	return nil
}

func (s *service) SubmitFlag(ctx context.Context, userID int, sessionID, submitted string) (*SubmitResult, error) {
	session, err := s.findOne(ctx, &models.SessionFilter{ID: sessionID, Status: models.StatusRunning})
	if err != nil {
		return nil, err
	}

	if session.UserID != userID {
		return nil, models.ErrForbidden
	}

	if NormalizeFlag(submitted) != session.Flag {
		logrus.WithFields(logrus.Fields{
			"session_id": session.ID.Hex(),
			"user_id":    userID,
		}).Info("Wrong flag submitted")
		return &SubmitResult{Correct: false, Message: "Wrong flag, try again"}, nil
	}

	// Tear the task down before granting the score: a failed terminate
	// surfaces with the session and the solve untouched, so a retry starts
	// clean instead of reporting a correct solve worth zero.
	if session.TaskArn != "" {
		if err := s.prov.TerminateTask(ctx, session.TaskArn, "problem solved"); err != nil {
			return nil, err
		}
	}

	prob, err := s.problems.GetByID(ctx, session.ProblemID)
	if err != nil {
		return nil, err
	}

	score, err := s.solves.RecordSolve(ctx, userID, session.ProblemID, prob.Score)
	if err != nil {
		return nil, err
	}

	if err := s.sessions.Delete(ctx, session.ID.Hex()); err != nil && !errors.Is(err, models.ErrSessionNotFound) {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"session_id": session.ID.Hex(),
		"user_id":    userID,
		"problem_id": session.ProblemID,
		"score":      score,
	}).Info("Problem solved, session torn down")

	s.publish(models.EventSessionSolved, session, "")

	return &SubmitResult{
		Correct: true,
		Message: "Correct flag, congratulations!",
		Score:   score,
	}, nil
}

func (s *service) findOne(ctx context.Context, filter *models.SessionFilter) (*models.Session, error) {
	sessions, err := s.sessions.Find(ctx, filter)
	if err != nil {
		return nil, err
	}

	switch len(sessions) {
	case 0:
		return nil, models.ErrSessionNotFound
	case 1:
		return sessions[0], nil
	default:
		logrus.WithField("matches", len(sessions)).Error("Session filter matched more than one session")
		return nil, models.ErrAmbiguousSession
	}
}

func (s *service) publish(event string, session *models.Session, reason string) {
	s.publishByID(event, session.ID.Hex(), session.UserID, session.ProblemID, session.TaskArn, reason)
}

func (s *service) publishByID(event, sessionID string, userID, problemID int, taskArn, reason string) {
	message := &models.SessionEventMessage{
		Event:     event,
		SessionID: sessionID,
		UserID:    userID,
		ProblemID: problemID,
		TaskArn:   taskArn,
		Reason:    reason,
	}
	if err := s.events.PublishSessionEvent(message); err != nil {
		logrus.WithError(err).WithField("event", event).Warn("Failed to publish session event")
	}
}

// NormalizeFlag strips the flag{...} wrapper when present so both submission
// forms compare against the stored value.
func NormalizeFlag(submitted string) string {
	trimmed := strings.TrimSpace(submitted)
	if strings.HasPrefix(trimmed, "flag{") && strings.HasSuffix(trimmed, "}") {
		return trimmed[len("flag{") : len(trimmed)-1]
	}
	return trimmed
}
