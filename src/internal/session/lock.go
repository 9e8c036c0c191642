package session

import (
	"context"
	"fmt"
	"time"

	"ctf-session-svc/src/internal/config"
	"ctf-session-svc/src/internal/models"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Locker serializes launch attempts per user. Together with the store's
// partial unique index it closes the check-then-insert race between two
// concurrent launches for the same user.
type Locker interface {
	Acquire(ctx context.Context, userID int) (bool, error)
	Release(ctx context.Context, userID int)
}

type redisLocker struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisLocker(client *redis.Client, cfg *config.Configuration) Locker {
	return &redisLocker{
		client: client,
		ttl:    time.Duration(cfg.Session.LaunchLockSeconds) * time.Second,
	}
}

func (l *redisLocker) Acquire(ctx context.Context, userID int) (bool, error) {
	ok, err := l.client.SetNX(ctx, launchLockKey(userID), 1, l.ttl).Result()
	if err != nil {
		logrus.WithError(err).WithField("user_id", userID).Error("Failed to acquire launch lock")
		return false, models.ErrRedisSet
	}

	return ok, nil
}

func (l *redisLocker) Release(ctx context.Context, userID int) {
	if err := l.client.Del(ctx, launchLockKey(userID)).Err(); err != nil {
		// The TTL reclaims a lock we failed to delete.
		logrus.WithError(err).WithField("user_id", userID).Warn("Failed to release launch lock")
	}
}

func launchLockKey(userID int) string {
	return fmt.Sprintf("launch-lock:%d", userID)
}
