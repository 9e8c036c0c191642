package models

import "time"

// SessionEventMessage is published to the session event exchange on every
// lifecycle transition. Scoreboard and audit consumers live elsewhere.
type SessionEventMessage struct {
	Event     string    `json:"event"`
	SessionID string    `json:"session_id"`
	UserID    int       `json:"user_id"`
	ProblemID int       `json:"problem_id"`
	TaskArn   string    `json:"task_arn,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Session event constants
const (
	EventSessionLaunched = "session.launched"
	EventSessionRunning  = "session.running"
	EventSessionErrored  = "session.errored"
	EventSessionStopped  = "session.stopped"
	EventSessionExpired  = "session.expired"
	EventSessionSolved   = "session.solved"
)
