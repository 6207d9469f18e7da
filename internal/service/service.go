package service

import (
	"context"
	"errors"
	"log/slog"

	"go.opentelemetry.io/otel"

	"alcyxob/coaching-platform/internal/domain"
	"alcyxob/coaching-platform/internal/observability"
	"alcyxob/coaching-platform/internal/plandiff"
	"alcyxob/coaching-platform/internal/repository"
	"alcyxob/coaching-platform/pkg/clock"
)

var tracer = otel.Tracer("coaching-platform/service")

// Deps are the collaborators shared by every service.
type Deps struct {
	Store   *repository.Store
	Clock   clock.Clock
	Logger  *slog.Logger
	Metrics *observability.Metrics
}

func (d Deps) withDefaults() Deps {
	if d.Clock == nil {
		d.Clock = clock.RealClock{}
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	return d
}

// ownedDraft loads a draft and asserts the caller coaches it.
func ownedDraft(ctx context.Context, store *repository.Store, coachID, draftID string) (*domain.DraftPlan, error) {
	draft, err := store.Drafts.GetByID(ctx, draftID)
	if err != nil {
		return nil, notFound(err, "draft %s not found", draftID)
	}
	if coachID == "" || draft.CoachID != coachID {
		return nil, domain.Errorf(domain.CodeForbidden, "coach does not own draft %s", draftID)
	}
	return draft, nil
}

// ownedProposal loads a proposal together with its draft, applying the same gate.
func ownedProposal(ctx context.Context, store *repository.Store, coachID, proposalID string) (*domain.Proposal, *domain.DraftPlan, error) {
	p, err := store.Proposals.GetByID(ctx, proposalID)
	if err != nil {
		return nil, nil, notFound(err, "proposal %s not found", proposalID)
	}
	draft, err := ownedDraft(ctx, store, coachID, p.DraftID)
	if err != nil {
		return nil, nil, err
	}
	return p, draft, nil
}

func loadPlanState(ctx context.Context, store *repository.Store, draftID string) (*plandiff.PlanState, error) {
	weeks, err := store.Plans.ListWeeks(ctx, draftID)
	if err != nil {
		return nil, err
	}
	sessions, err := store.Plans.ListSessions(ctx, draftID)
	if err != nil {
		return nil, err
	}
	return plandiff.NewPlanState(weeks, sessions), nil
}

// notFound converts repository.ErrNotFound into a NOT_FOUND engine error and
// passes anything else through.
func notFound(err error, format string, args ...any) error {
	if errors.Is(err, repository.ErrNotFound) {
		return domain.Errorf(domain.CodeNotFound, format, args...)
	}
	return err
}

// outcome labels an error for metrics.
func outcome(err error) string {
	if err == nil {
		return "applied"
	}
	if code := domain.CodeOf(err); code != "" {
		return string(code)
	}
	return "error"
}
