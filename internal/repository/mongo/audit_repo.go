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

const (
	auditCollectionName      = "plan_change_audits"
	checkpointCollectionName = "plan_before_states"
)

// mongoAuditRepository implements repository.AuditRepository. Audits are
// insert-only.
type mongoAuditRepository struct {
	audits      *mongo.Collection
	checkpoints *mongo.Collection
}

// NewMongoAuditRepository creates a new audit repository.
func NewMongoAuditRepository(db *mongo.Database) repository.AuditRepository {
	return &mongoAuditRepository{
		audits:      db.Collection(auditCollectionName),
		checkpoints: db.Collection(checkpointCollectionName),
	}
}

func (r *mongoAuditRepository) Create(ctx context.Context, a *domain.PlanChangeAudit) error {
	_, err := r.audits.InsertOne(ctx, a)
	return mapErr(err)
}

func (r *mongoAuditRepository) ListByDraft(ctx context.Context, draftID string) ([]domain.PlanChangeAudit, error) {
	out := []domain.PlanChangeAudit{}
	findOptions := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := r.audits.Find(ctx, bson.M{"draftId": draftID}, findOptions)
	if err != nil {
		return nil, mapErr(err)
	}
	defer cursor.Close(ctx)

	if err = cursor.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *mongoAuditRepository) LatestForProposal(ctx context.Context, proposalID string, eventType domain.AuditEventType) (*domain.PlanChangeAudit, error) {
	var a domain.PlanChangeAudit
	findOne := options.FindOne().SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}})
	err := r.audits.FindOne(ctx, bson.M{"proposalId": proposalID, "eventType": eventType}, findOne).Decode(&a)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		return nil, mapErr(err)
	}
	return &a, nil
}

func (r *mongoAuditRepository) SaveCheckpoint(ctx context.Context, b *domain.BeforeState) error {
	_, err := r.checkpoints.InsertOne(ctx, b)
	return mapErr(err)
}

func (r *mongoAuditRepository) GetCheckpoint(ctx context.Context, id string) (*domain.BeforeState, error) {
	var b domain.BeforeState
	if err := r.checkpoints.FindOne(ctx, bson.M{"_id": id}).Decode(&b); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		return nil, mapErr(err)
	}
	return &b, nil
}

// EnsureAuditIndexes creates the per-proposal lookup index used by undo.
func EnsureAuditIndexes(ctx context.Context, db *mongo.Database) error {
	_, err := db.Collection(auditCollectionName).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "proposalId", Value: 1}, {Key: "eventType", Value: 1}, {Key: "createdAt", Value: -1}}},
		{Keys: bson.D{{Key: "draftId", Value: 1}, {Key: "createdAt", Value: 1}}},
	})
	return err
}
