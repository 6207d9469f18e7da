package mongo

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"alcyxob/coaching-platform/internal/domain"
	"alcyxob/coaching-platform/internal/repository"
)

const triggerCollectionName = "adaptation_triggers"

// mongoTriggerRepository implements repository.TriggerRepository. The unique
// index on the window key does the deduplication.
type mongoTriggerRepository struct {
	collection *mongo.Collection
}

// NewMongoTriggerRepository creates a new trigger repository.
func NewMongoTriggerRepository(db *mongo.Database) repository.TriggerRepository {
	return &mongoTriggerRepository{collection: db.Collection(triggerCollectionName)}
}

func (r *mongoTriggerRepository) CreateIfAbsent(ctx context.Context, t *domain.AdaptationTrigger) (bool, error) {
	_, err := r.collection.InsertOne(ctx, t)
	if err == nil {
		return true, nil
	}
	if !mongo.IsDuplicateKeyError(err) {
		return false, mapErr(err)
	}
	filter := bson.M{
		"draftId":     t.DraftID,
		"triggerType": t.TriggerType,
		"windowStart": t.WindowStart,
		"windowEnd":   t.WindowEnd,
	}
	var existing domain.AdaptationTrigger
	if err := r.collection.FindOne(ctx, filter).Decode(&existing); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return false, repository.ErrNotFound
		}
		return false, mapErr(err)
	}
	*t = existing
	return false, nil
}

func (r *mongoTriggerRepository) GetByIDs(ctx context.Context, draftID string, ids []string) ([]domain.AdaptationTrigger, error) {
	if len(ids) == 0 {
		return []domain.AdaptationTrigger{}, nil
	}
	return r.find(ctx, bson.M{"draftId": draftID, "_id": bson.M{"$in": ids}})
}

func (r *mongoTriggerRepository) ListLatestWindow(ctx context.Context, draftID string) ([]domain.AdaptationTrigger, error) {
	var latest domain.AdaptationTrigger
	findOne := options.FindOne().SetSort(bson.D{{Key: "windowEnd", Value: -1}, {Key: "createdAt", Value: -1}})
	if err := r.collection.FindOne(ctx, bson.M{"draftId": draftID}, findOne).Decode(&latest); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return []domain.AdaptationTrigger{}, nil
		}
		return nil, mapErr(err)
	}
	return r.find(ctx, bson.M{"draftId": draftID, "windowStart": latest.WindowStart, "windowEnd": latest.WindowEnd})
}

func (r *mongoTriggerRepository) find(ctx context.Context, filter bson.M) ([]domain.AdaptationTrigger, error) {
	out := []domain.AdaptationTrigger{}
	sort := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "triggerType", Value: 1}})
	cursor, err := r.collection.Find(ctx, filter, sort)
	if err != nil {
		return nil, mapErr(err)
	}
	defer cursor.Close(ctx)

	if err = cursor.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// EnsureTriggerIndexes creates the dedup key. Detection relies on it.
func EnsureTriggerIndexes(ctx context.Context, db *mongo.Database) error {
	_, err := db.Collection(triggerCollectionName).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "draftId", Value: 1},
				{Key: "triggerType", Value: 1},
				{Key: "windowStart", Value: 1},
				{Key: "windowEnd", Value: 1},
			},
			Options: options.Index().SetUnique(true).SetName("trigger_window_dedup"),
		},
		{Keys: bson.D{{Key: "draftId", Value: 1}, {Key: "windowEnd", Value: -1}}},
	})
	return err
}
