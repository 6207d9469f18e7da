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

const proposalCollectionName = "plan_change_proposals"

// mongoProposalRepository implements repository.ProposalRepository
type mongoProposalRepository struct {
	collection *mongo.Collection
}

// NewMongoProposalRepository creates a new proposal repository.
func NewMongoProposalRepository(db *mongo.Database) repository.ProposalRepository {
	return &mongoProposalRepository{collection: db.Collection(proposalCollectionName)}
}

func (r *mongoProposalRepository) Create(ctx context.Context, p *domain.Proposal) error {
	if p.ID == "" || p.DraftID == "" {
		return errors.New("proposal requires id and draftId")
	}
	_, err := r.collection.InsertOne(ctx, p)
	return mapErr(err)
}

func (r *mongoProposalRepository) GetByID(ctx context.Context, id string) (*domain.Proposal, error) {
	var p domain.Proposal
	if err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&p); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		return nil, mapErr(err)
	}
	return &p, nil
}

// Update replaces the whole document; proposals are small and owned by one
// lifecycle call at a time.
func (r *mongoProposalRepository) Update(ctx context.Context, p *domain.Proposal) error {
	result, err := r.collection.ReplaceOne(ctx, bson.M{"_id": p.ID}, p)
	if err != nil {
		return mapErr(err)
	}
	if result.MatchedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *mongoProposalRepository) ListByDraft(ctx context.Context, draftID string, filter repository.ProposalFilter) ([]domain.Proposal, error) {
	q := bson.M{"draftId": draftID}
	if len(filter.Statuses) > 0 {
		q["status"] = bson.M{"$in": filter.Statuses}
	}
	if len(filter.IDs) > 0 {
		q["_id"] = bson.M{"$in": filter.IDs}
	}
	if !filter.CreatedAfter.IsZero() {
		q["createdAt"] = bson.M{"$gte": filter.CreatedAfter}
	}
	if filter.RespectsLocks != nil {
		q["respectsLocks"] = *filter.RespectsLocks
	}

	out := []domain.Proposal{}
	findOptions := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := r.collection.Find(ctx, q, findOptions)
	if err != nil {
		return nil, mapErr(err)
	}
	defer cursor.Close(ctx)

	if err = cursor.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// EnsureProposalIndexes creates the batch-approval selection index.
func EnsureProposalIndexes(ctx context.Context, db *mongo.Database) error {
	_, err := db.Collection(proposalCollectionName).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "draftId", Value: 1}, {Key: "status", Value: 1}, {Key: "createdAt", Value: 1}},
	})
	return err
}
