package problem

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"ctf-session-svc/src/clients"
	"ctf-session-svc/src/internal/config"
	"ctf-session-svc/src/internal/models"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// Repository reads challenge problems. The collection is owned by the
// platform's problem service; this service only ever reads it.
type Repository interface {
	GetByID(ctx context.Context, problemID int) (*models.Problem, error)
}

type repository struct {
	collection *mongo.Collection
	redis      *redis.Client
	cacheTTL   time.Duration
}

func NewProblemRepository(db *clients.MongoDB, redisClient *clients.RedisClient, cfg *config.Configuration) Repository {
	return &repository{
		collection: db.Database.Collection(cfg.Database.Collections.Problems),
		redis:      redisClient.Client,
		cacheTTL:   time.Duration(cfg.Session.ProblemCacheMinutes) * time.Minute,
	}
}

func (r *repository) GetByID(ctx context.Context, problemID int) (*models.Problem, error) {
	if problem := r.fromCache(ctx, problemID); problem != nil {
		return problem, nil
	}

	var problem models.Problem
	filter := bson.M{"problem_id": problemID}

	err := r.collection.FindOne(ctx, filter).Decode(&problem)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, models.ErrProblemNotFound
		}
		logrus.WithError(err).WithField("problem_id", problemID).Error("Failed to get problem")
		return nil, models.ErrDatabaseQuery
	}

	r.toCache(ctx, &problem)

	return &problem, nil
}

func (r *repository) fromCache(ctx context.Context, problemID int) *models.Problem {
	data, err := r.redis.Get(ctx, problemCacheKey(problemID)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			logrus.WithError(err).WithField("problem_id", problemID).Warn("Failed to read problem from cache")
		}
		return nil
	}

	var problem models.Problem
	if err := json.Unmarshal([]byte(data), &problem); err != nil {
		logrus.WithError(err).WithField("problem_id", problemID).Warn("Failed to unmarshal cached problem")
		return nil
	}

	logrus.WithField("problem_id", problemID).Debug("Problem retrieved from cache")
	return &problem
}

func (r *repository) toCache(ctx context.Context, problem *models.Problem) {
	data, err := json.Marshal(problem)
	if err != nil {
		logrus.WithError(err).Error("Failed to marshal problem for cache")
		return
	}

	if err := r.redis.Set(ctx, problemCacheKey(problem.ID), data, r.cacheTTL).Err(); err != nil {
		logrus.WithError(err).WithField("problem_id", problem.ID).Warn("Failed to cache problem")
	}
}

func problemCacheKey(problemID int) string {
	return fmt.Sprintf("problem:%d", problemID)
}
