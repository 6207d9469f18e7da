package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"alcyxob/coaching-platform/internal/domain"
	"alcyxob/coaching-platform/internal/repository"
)

const (
	draftCollectionName   = "draft_plans"
	weekCollectionName    = "plan_weeks"
	sessionCollectionName = "plan_sessions"
)

// mongoDraftRepository implements repository.DraftRepository
type mongoDraftRepository struct {
	collection *mongo.Collection
}

// NewMongoDraftRepository creates a new DraftPlan repository.
func NewMongoDraftRepository(db *mongo.Database) repository.DraftRepository {
	return &mongoDraftRepository{
		collection: db.Collection(draftCollectionName),
	}
}

// Create inserts a new draft plan.
func (r *mongoDraftRepository) Create(ctx context.Context, draft *domain.DraftPlan) error {
	if draft.ID == "" || draft.CoachID == "" || draft.AthleteID == "" {
		return errors.New("draft requires id, coachId and athleteId")
	}
	_, err := r.collection.InsertOne(ctx, draft)
	return mapErr(err)
}

// GetByID retrieves a single draft plan by its ID.
func (r *mongoDraftRepository) GetByID(ctx context.Context, id string) (*domain.DraftPlan, error) {
	var draft domain.DraftPlan
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&draft)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		return nil, mapErr(err)
	}
	return &draft, nil
}

// UpdateSnapshot replaces the cached snapshot JSON.
func (r *mongoDraftRepository) UpdateSnapshot(ctx context.Context, id, snapshotJSON string, updatedAt time.Time) error {
	result, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"snapshotJson": snapshotJSON, "updatedAt": updatedAt}},
	)
	if err != nil {
		return mapErr(err)
	}
	if result.MatchedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// mongoPlanRepository implements repository.PlanRepository over the week and
// session collections.
type mongoPlanRepository struct {
	weeks    *mongo.Collection
	sessions *mongo.Collection
}

// NewMongoPlanRepository creates a new week/session repository.
func NewMongoPlanRepository(db *mongo.Database) repository.PlanRepository {
	return &mongoPlanRepository{
		weeks:    db.Collection(weekCollectionName),
		sessions: db.Collection(sessionCollectionName),
	}
}

func (r *mongoPlanRepository) ListWeeks(ctx context.Context, draftID string) ([]domain.Week, error) {
	weeks := []domain.Week{}
	findOptions := options.Find().SetSort(bson.D{{Key: "weekIndex", Value: 1}})
	cursor, err := r.weeks.Find(ctx, bson.M{"draftId": draftID}, findOptions)
	if err != nil {
		return nil, mapErr(err)
	}
	defer cursor.Close(ctx)

	if err = cursor.All(ctx, &weeks); err != nil {
		return nil, err
	}
	return weeks, nil
}

func (r *mongoPlanRepository) ListSessions(ctx context.Context, draftID string) ([]domain.Session, error) {
	sessions := []domain.Session{}
	findOptions := options.Find().SetSort(bson.D{{Key: "weekIndex", Value: 1}, {Key: "ordinal", Value: 1}})
	cursor, err := r.sessions.Find(ctx, bson.M{"draftId": draftID}, findOptions)
	if err != nil {
		return nil, mapErr(err)
	}
	defer cursor.Close(ctx)

	if err = cursor.All(ctx, &sessions); err != nil {
		return nil, err
	}
	return sessions, nil
}

func (r *mongoPlanRepository) UpsertWeeks(ctx context.Context, weeks []domain.Week) error {
	for i := range weeks {
		_, err := r.weeks.ReplaceOne(ctx, bson.M{"_id": weeks[i].ID}, &weeks[i], options.Replace().SetUpsert(true))
		if err != nil {
			return mapErr(err)
		}
	}
	return nil
}

func (r *mongoPlanRepository) UpsertSessions(ctx context.Context, sessions []domain.Session) error {
	for i := range sessions {
		_, err := r.sessions.ReplaceOne(ctx, bson.M{"_id": sessions[i].ID}, &sessions[i], options.Replace().SetUpsert(true))
		if err != nil {
			return mapErr(err)
		}
	}
	return nil
}

func (r *mongoPlanRepository) DeleteSessions(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.sessions.DeleteMany(ctx, bson.M{"_id": bson.M{"$in": ids}})
	return mapErr(err)
}

// EnsureTrainingPlanIndexes creates the draft, week and session indexes.
func EnsureTrainingPlanIndexes(ctx context.Context, db *mongo.Database) error {
	if _, err := db.Collection(draftCollectionName).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "coachId", Value: 1}, {Key: "athleteId", Value: 1}}},
	}); err != nil {
		return err
	}
	if _, err := db.Collection(weekCollectionName).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "draftId", Value: 1}, {Key: "weekIndex", Value: 1}},
		Options: options.Index().SetUnique(true),
	}); err != nil {
		return err
	}
	_, err := db.Collection(sessionCollectionName).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "draftId", Value: 1}, {Key: "weekIndex", Value: 1}, {Key: "ordinal", Value: 1}},
	})
	return err
}
