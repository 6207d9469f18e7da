package mongo

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"alcyxob/coaching-platform/internal/domain"
	"alcyxob/coaching-platform/internal/repository"
)

const (
	feedbackCollectionName = "session_feedback"
	activityCollectionName = "completed_activities"
)

// mongoSignalRepository implements repository.SignalRepository
type mongoSignalRepository struct {
	feedback   *mongo.Collection
	activities *mongo.Collection
}

// NewMongoSignalRepository creates a new feedback/activity repository.
func NewMongoSignalRepository(db *mongo.Database) repository.SignalRepository {
	return &mongoSignalRepository{
		feedback:   db.Collection(feedbackCollectionName),
		activities: db.Collection(activityCollectionName),
	}
}

func (r *mongoSignalRepository) AddFeedback(ctx context.Context, fb *domain.Feedback) error {
	_, err := r.feedback.InsertOne(ctx, fb)
	return mapErr(err)
}

func (r *mongoSignalRepository) AddActivity(ctx context.Context, a *domain.CompletedActivity) error {
	_, err := r.activities.InsertOne(ctx, a)
	return mapErr(err)
}

func (r *mongoSignalRepository) ListFeedback(ctx context.Context, athleteID string, from, to time.Time) ([]domain.Feedback, error) {
	out := []domain.Feedback{}
	filter := bson.M{"athleteId": athleteID, "createdAt": bson.M{"$gte": from, "$lte": to}}
	cursor, err := r.feedback.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}}))
	if err != nil {
		return nil, mapErr(err)
	}
	defer cursor.Close(ctx)

	if err = cursor.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *mongoSignalRepository) ListActivities(ctx context.Context, athleteID string, from, to time.Time) ([]domain.CompletedActivity, error) {
	out := []domain.CompletedActivity{}
	filter := bson.M{"athleteId": athleteID, "startTime": bson.M{"$gte": from, "$lte": to}}
	cursor, err := r.activities.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "startTime", Value: 1}}))
	if err != nil {
		return nil, mapErr(err)
	}
	defer cursor.Close(ctx)

	if err = cursor.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// EnsureSignalIndexes creates the athlete/time indexes used by detection windows.
func EnsureSignalIndexes(ctx context.Context, db *mongo.Database) error {
	if _, err := db.Collection(feedbackCollectionName).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "athleteId", Value: 1}, {Key: "createdAt", Value: 1}},
	}); err != nil {
		return err
	}
	_, err := db.Collection(activityCollectionName).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "athleteId", Value: 1}, {Key: "startTime", Value: 1}},
	})
	return err
}
