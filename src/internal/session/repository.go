package session

import (
	"context"
	"time"

	"ctf-session-svc/src/clients"
	"ctf-session-svc/src/internal/models"
	"ctf-session-svc/src/internal/problem"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Repository is the durable session store. Create reads the problem's
// configured duration so a session is never inserted without a valid deadline.
type Repository interface {
	Find(ctx context.Context, filter *models.SessionFilter) ([]*models.Session, error)
	FindExpired(ctx context.Context, now time.Time) ([]*models.Session, error)
	Create(ctx context.Context, userID, problemID int, flag string) (*models.Session, error)
	Update(ctx context.Context, sessionID string, update *models.SessionUpdate) error
	Delete(ctx context.Context, sessionID string) error
	EnsureIndexes(ctx context.Context) error
}

type repository struct {
	collection *mongo.Collection
	problems   problem.Repository
}

func NewSessionRepository(db *clients.MongoDB, collectionName string, problems problem.Repository) Repository {
	return &repository{
		collection: db.Database.Collection(collectionName),
		problems:   problems,
	}
}

// EnsureIndexes creates the partial unique index that guarantees at most one
// live session per user even if two launches race past the service-level lock.
func (r *repository) EnsureIndexes(ctx context.Context) error {
	model := mongo.IndexModel{
		Keys: bson.D{{Key: "user_id", Value: 1}},
		Options: options.Index().
			SetUnique(true).
			SetPartialFilterExpression(bson.M{
				"status": bson.M{"$in": []string{string(models.StatusPending), string(models.StatusRunning)}},
			}),
	}

	_, err := r.collection.Indexes().CreateOne(ctx, model)
	if err != nil {
		logrus.WithError(err).Error("Failed to create session indexes")
		return err
	}

	return nil
}

func (r *repository) Find(ctx context.Context, filter *models.SessionFilter) ([]*models.Session, error) {
	query := bson.M{}

	if filter.ID != "" {
		oid, err := primitive.ObjectIDFromHex(filter.ID)
		if err != nil {
			return nil, models.ErrSessionNotFound
		}
		query["_id"] = oid
	}
	if filter.UserID != 0 {
		query["user_id"] = filter.UserID
	}
	if filter.ProblemID != 0 {
		query["problem_id"] = filter.ProblemID
	}
	if filter.Status != "" {
		query["status"] = filter.Status
	}

	return r.findAll(ctx, query)
}

func (r *repository) FindExpired(ctx context.Context, now time.Time) ([]*models.Session, error) {
	return r.findAll(ctx, bson.M{"ended_at": bson.M{"$lt": now}})
}

func (r *repository) findAll(ctx context.Context, query bson.M) ([]*models.Session, error) {
	cursor, err := r.collection.Find(ctx, query)
	if err != nil {
		logrus.WithError(err).Error("Failed to find sessions")
		return nil, models.ErrDatabaseQuery
	}
	defer cursor.Close(ctx)

	var sessions []*models.Session
	for cursor.Next(ctx) {
		var session models.Session
		if err := cursor.Decode(&session); err != nil {
			logrus.WithError(err).Error("Failed to decode session")
			continue
		}
		sessions = append(sessions, &session)
	}

	if err := cursor.Err(); err != nil {
		logrus.WithError(err).Error("Cursor error")
		return nil, models.ErrDatabaseQuery
	}

	return sessions, nil
}

func (r *repository) Create(ctx context.Context, userID, problemID int, flag string) (*models.Session, error) {
	prob, err := r.problems.GetByID(ctx, problemID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	session := &models.Session{
		UserID:    userID,
		ProblemID: problemID,
		Flag:      flag,
		Status:    models.StatusPending,
		StartedAt: now,
		EndedAt:   now.Add(time.Duration(prob.DurationMinutes) * time.Minute),
	}

	result, err := r.collection.InsertOne(ctx, session)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, models.ErrActiveSessionExists
		}
		logrus.WithError(err).WithFields(logrus.Fields{
			"user_id":    userID,
			"problem_id": problemID,
		}).Error("Failed to insert session")
		return nil, models.ErrSessionCreating
	}

	session.ID = result.InsertedID.(primitive.ObjectID)

	return session, nil
}

func (r *repository) Update(ctx context.Context, sessionID string, update *models.SessionUpdate) error {
	oid, err := primitive.ObjectIDFromHex(sessionID)
	if err != nil {
		return models.ErrSessionNotFound
	}

	set := bson.M{}
	if update.Status != nil {
		set["status"] = *update.Status
	}
	if update.TaskArn != nil {
		set["task_arn"] = *update.TaskArn
	}
	if update.IPAddress != nil {
		set["ip_address"] = *update.IPAddress
	}

	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": oid}, bson.M{"$set": set})
	if err != nil {
		logrus.WithError(err).WithField("session_id", sessionID).Error("Failed to update session")
		return models.ErrSessionUpdating
	}

	if result.MatchedCount == 0 {
		return models.ErrSessionNotFound
	}

	return nil
}

func (r *repository) Delete(ctx context.Context, sessionID string) error {
	oid, err := primitive.ObjectIDFromHex(sessionID)
	if err != nil {
		return models.ErrSessionNotFound
	}

	result, err := r.collection.DeleteOne(ctx, bson.M{"_id": oid})
	if err != nil {
		logrus.WithError(err).WithField("session_id", sessionID).Error("Failed to delete session")
		return models.ErrSessionDeleting
	}

	if result.DeletedCount == 0 {
		return models.ErrSessionNotFound
	}

	return nil
}
