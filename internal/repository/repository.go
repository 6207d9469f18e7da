package repository

import (
	"context"
	"time"

	"alcyxob/coaching-platform/internal/domain"
)

var (
	ErrNotFound = RepositoryError("not found")
	// ErrRetryable marks a transaction that lost a write conflict and may be retried.
	ErrRetryable = RepositoryError("retryable transaction failure")
	ErrDuplicate = RepositoryError("duplicate key")
)

// RepositoryError helps distinguish repository errors
type RepositoryError string

func (e RepositoryError) Error() string {
	return string(e)
}

// DraftRepository reads and writes draft plan headers.
type DraftRepository interface {
	Create(ctx context.Context, draft *domain.DraftPlan) error
	GetByID(ctx context.Context, id string) (*domain.DraftPlan, error)
	UpdateSnapshot(ctx context.Context, id, snapshotJSON string, updatedAt time.Time) error
}

// PlanRepository holds the canonical week and session rows of drafts.
type PlanRepository interface {
	ListWeeks(ctx context.Context, draftID string) ([]domain.Week, error)
	ListSessions(ctx context.Context, draftID string) ([]domain.Session, error)
	// UpsertWeeks and UpsertSessions write rows by id.
	UpsertWeeks(ctx context.Context, weeks []domain.Week) error
	UpsertSessions(ctx context.Context, sessions []domain.Session) error
	DeleteSessions(ctx context.Context, ids []string) error
}

// SignalRepository reads athlete feedback and completed activities.
type SignalRepository interface {
	AddFeedback(ctx context.Context, fb *domain.Feedback) error
	AddActivity(ctx context.Context, a *domain.CompletedActivity) error
	ListFeedback(ctx context.Context, athleteID string, from, to time.Time) ([]domain.Feedback, error)
	ListActivities(ctx context.Context, athleteID string, from, to time.Time) ([]domain.CompletedActivity, error)
}

// TriggerRepository stores adaptation triggers, unique per
// (draftId, triggerType, windowStart, windowEnd).
type TriggerRepository interface {
	// CreateIfAbsent inserts t unless a trigger with the same dedup key exists,
	// in which case t is overwritten with the stored row and created is false.
	CreateIfAbsent(ctx context.Context, t *domain.AdaptationTrigger) (created bool, err error)
	GetByIDs(ctx context.Context, draftID string, ids []string) ([]domain.AdaptationTrigger, error)
	// ListLatestWindow returns the triggers sharing the most recent window end.
	ListLatestWindow(ctx context.Context, draftID string) ([]domain.AdaptationTrigger, error)
}

// ProposalFilter narrows ListByDraft. Zero values match everything.
type ProposalFilter struct {
	Statuses      []domain.ProposalStatus
	CreatedAfter  time.Time
	IDs           []string
	RespectsLocks *bool
}

// ProposalRepository stores plan change proposals.
type ProposalRepository interface {
	Create(ctx context.Context, p *domain.Proposal) error
	GetByID(ctx context.Context, id string) (*domain.Proposal, error)
	Update(ctx context.Context, p *domain.Proposal) error
	// ListByDraft returns matching proposals oldest first.
	ListByDraft(ctx context.Context, draftID string, filter ProposalFilter) ([]domain.Proposal, error)
}

// AuditRepository is the append-only audit trail plus undo checkpoints.
type AuditRepository interface {
	Create(ctx context.Context, a *domain.PlanChangeAudit) error
	ListByDraft(ctx context.Context, draftID string) ([]domain.PlanChangeAudit, error)
	// LatestForProposal returns the newest audit of the given type for a proposal.
	LatestForProposal(ctx context.Context, proposalID string, eventType domain.AuditEventType) (*domain.PlanChangeAudit, error)
	SaveCheckpoint(ctx context.Context, b *domain.BeforeState) error
	GetCheckpoint(ctx context.Context, id string) (*domain.BeforeState, error)
}

// TxRunner runs fn atomically. Repository calls made with the ctx passed to
// fn join the transaction. A lost write conflict surfaces as ErrRetryable.
type TxRunner interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Store bundles the repositories of one backend.
type Store struct {
	Drafts    DraftRepository
	Plans     PlanRepository
	Signals   SignalRepository
	Triggers  TriggerRepository
	Proposals ProposalRepository
	Audits    AuditRepository
	Tx        TxRunner
	Close     func(ctx context.Context) error
}
