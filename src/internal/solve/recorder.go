package solve

import (
	"context"
	"time"

	"ctf-session-svc/src/clients"
	"ctf-session-svc/src/internal/models"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Recorder persists correct submissions. Recording is idempotent per
// (user, problem): only the first solve is granted the score, later ones
// return zero.
type Recorder interface {
	RecordSolve(ctx context.Context, userID, problemID, score int) (int, error)
}

type recorder struct {
	collection *mongo.Collection
}

func NewSolveRecorder(db *clients.MongoDB, collectionName string) Recorder {
	return &recorder{
		collection: db.Database.Collection(collectionName),
	}
}

func (r *recorder) RecordSolve(ctx context.Context, userID, problemID, score int) (int, error) {
	filter := bson.M{
		"user_id":    userID,
		"problem_id": problemID,
	}

	update := bson.M{
		"$setOnInsert": bson.M{
			"user_id":    userID,
			"problem_id": problemID,
			"score":      score,
			"solved_at":  time.Now().UTC(),
		},
	}

	result, err := r.collection.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	if err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{
			"user_id":    userID,
			"problem_id": problemID,
		}).Error("Failed to record solve")
		return 0, models.ErrDatabaseInsert
	}

	if result.UpsertedCount == 0 {
		logrus.WithFields(logrus.Fields{
			"user_id":    userID,
			"problem_id": problemID,
		}).Debug("Problem already solved by user, no score granted")
		return 0, nil
	}

	logrus.WithFields(logrus.Fields{
		"user_id":    userID,
		"problem_id": problemID,
		"score":      score,
	}).Info("Solve recorded")

	return score, nil
}
