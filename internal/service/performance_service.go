package service

import (
	"context"

	"golang.org/x/sync/errgroup"

	"alcyxob/coaching-platform/internal/domain"
	"alcyxob/coaching-platform/internal/performance"
)

type PerformanceService interface {
	Forecast(ctx context.Context, coachID, draftID string) (*performance.Model, error)
}

type performanceService struct {
	deps Deps
}

func NewPerformanceService(deps Deps) PerformanceService {
	return &performanceService{deps: deps.withDefaults()}
}

// Forecast projects CTL/ATL/TSB from the athlete's recent activities and the
// draft's remaining planned sessions.
func (s *performanceService) Forecast(ctx context.Context, coachID, draftID string) (*performance.Model, error) {
	ctx, span := tracer.Start(ctx, "PerformanceService.Forecast")
	defer span.End()

	store := s.deps.Store
	draft, err := ownedDraft(ctx, store, coachID, draftID)
	if err != nil {
		return nil, err
	}

	today := s.deps.Clock.Now().UTC()
	from := today.AddDate(0, 0, -performance.HistoryDays-1)

	var (
		activities []domain.CompletedActivity
		sessions   []domain.Session
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		activities, err = store.Signals.ListActivities(gctx, draft.AthleteID, from, today)
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

	model := performance.Forecast(performance.Input{
		Today:      today,
		Draft:      draft,
		Sessions:   sessions,
		Activities: activities,
	})
	return &model, nil
}
