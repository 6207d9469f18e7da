package service

import (
	"context"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"alcyxob/coaching-platform/internal/domain"
	"alcyxob/coaching-platform/internal/trigger"
)

// DetectResult is the outcome of one detection run. Triggers holds every
// trigger that fired, newly stored or not; Created counts the new rows.
type DetectResult struct {
	Window   trigger.Window             `json:"window"`
	Triggers []domain.AdaptationTrigger `json:"triggers"`
	Created  int                        `json:"created"`
}

type TriggerService interface {
	Detect(ctx context.Context, coachID, draftID string, lookbackDays int) (*DetectResult, error)
}

type triggerService struct {
	deps                Deps
	defaultLookbackDays int
}

// NewTriggerService creates a trigger service. A lookbackDays of 0 passed to
// Detect uses defaultLookbackDays.
func NewTriggerService(deps Deps, defaultLookbackDays int) TriggerService {
	return &triggerService{deps: deps.withDefaults(), defaultLookbackDays: defaultLookbackDays}
}

// Detect evaluates the rolling window ending now and stores the triggers that
// fired. Re-running over an unchanged window stores nothing new.
func (s *triggerService) Detect(ctx context.Context, coachID, draftID string, lookbackDays int) (*DetectResult, error) {
	ctx, span := tracer.Start(ctx, "TriggerService.Detect", trace.WithAttributes(attribute.String("draft.id", draftID)))
	defer span.End()

	store := s.deps.Store
	draft, err := ownedDraft(ctx, store, coachID, draftID)
	if err != nil {
		return nil, err
	}

	now := s.deps.Clock.Now()
	window := trigger.NewWindow(now, trigger.ClampLookback(lookbackDays, s.defaultLookbackDays))

	in := trigger.Input{DraftID: draft.ID, AthleteID: draft.AthleteID, Window: window}
	var sessions []domain.Session
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		in.Feedback, err = store.Signals.ListFeedback(gctx, draft.AthleteID, window.Start, window.End)
		return err
	})
	g.Go(func() error {
		var err error
		in.Activities, err = store.Signals.ListActivities(gctx, draft.AthleteID, window.Start, window.End)
		return err
	})
	g.Go(func() error {
		var err error
		sessions, err = store.Plans.ListSessions(gctx, draft.ID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	in.Sessions = make(map[string]domain.Session, len(sessions))
	for _, sess := range sessions {
		in.Sessions[sess.ID] = sess
	}

	result := &DetectResult{Window: window, Triggers: []domain.AdaptationTrigger{}}
	for _, t := range trigger.Detect(in) {
		t.ID = uuid.NewString()
		t.CreatedAt = now
		created, err := store.Triggers.CreateIfAbsent(ctx, &t)
		if err != nil {
			return nil, err
		}
		if created {
			result.Created++
			s.deps.Metrics.TriggerDetected(string(t.TriggerType))
		}
		result.Triggers = append(result.Triggers, t)
	}

	span.SetAttributes(attribute.Int("triggers.fired", len(result.Triggers)), attribute.Int("triggers.created", result.Created))
	s.deps.Logger.InfoContext(ctx, "trigger detection finished",
		"draft_id", draft.ID, "window_start", window.Start, "window_end", window.End,
		"fired", len(result.Triggers), "created", result.Created)
	return result, nil
}
