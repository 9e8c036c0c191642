package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type SessionStatus string

const (
	StatusPending    SessionStatus = "pending"
	StatusRunning    SessionStatus = "running"
	StatusTerminated SessionStatus = "terminated"
	StatusError      SessionStatus = "error"
)

// Session is one user's timed attempt at one problem, backed by a provisioned
// compute task. TaskArn and IPAddress stay empty until provisioning succeeds.
type Session struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID    int                `bson:"user_id" json:"userId"`
	ProblemID int                `bson:"problem_id" json:"problemId"`
	Flag      string             `bson:"flag" json:"-"`
	Status    SessionStatus      `bson:"status" json:"status"`
	TaskArn   string             `bson:"task_arn,omitempty" json:"taskArn,omitempty"`
	IPAddress string             `bson:"ip_address,omitempty" json:"ipAddress,omitempty"`
	StartedAt time.Time          `bson:"started_at" json:"startedAt"`
	EndedAt   time.Time          `bson:"ended_at" json:"endedAt"`
}

// IsExpired reports whether the session's fixed deadline has passed.
func (s *Session) IsExpired() bool {
	return time.Now().After(s.EndedAt)
}

// SessionFilter narrows a session query. Zero-valued fields are ignored.
type SessionFilter struct {
	ID        string
	UserID    int
	ProblemID int
	Status    SessionStatus
}

// SessionUpdate carries the mutable fields of a session row. Nil fields are
// left untouched by the store.
type SessionUpdate struct {
	Status    *SessionStatus
	TaskArn   *string
	IPAddress *string
}
