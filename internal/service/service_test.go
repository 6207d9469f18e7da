package service

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"alcyxob/coaching-platform/internal/domain"
	"alcyxob/coaching-platform/internal/observability"
	"alcyxob/coaching-platform/internal/plandiff"
	"alcyxob/coaching-platform/internal/policy"
	"alcyxob/coaching-platform/internal/repository"
	"alcyxob/coaching-platform/internal/repository/sqlite"
	"alcyxob/coaching-platform/internal/storage"
	"alcyxob/coaching-platform/internal/suggest"
)

const (
	coachID   = "coach-1"
	athleteID = "athlete-1"
	draftID   = "draft-1"
)

// Tuesday of week 0; the plan starts Monday 2026-03-09.
var t0 = time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// stubProvider returns a fixed suggestion.
type stubProvider struct {
	diff          plandiff.Diff
	respectsLocks bool
}

func (p *stubProvider) Suggest(context.Context, suggest.Input) (*suggest.Output, error) {
	return &suggest.Output{
		Diff:          p.diff.Clone(),
		RationaleText: "back off after soreness",
		RespectsLocks: p.respectsLocks,
		Source:        domain.SourceAI,
	}, nil
}

type fixture struct {
	store     *repository.Store
	clock     *testClock
	metrics   *observability.Metrics
	provider  *stubProvider
	files     *memFiles
	triggers  TriggerService
	proposals ProposalService
	forecasts PerformanceService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	store, err := sqlite.NewStore(filepath.Join(t.TempDir(), "plans.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close(context.Background()) })

	seedPlan(t, store)

	registry, err := policy.NewRegistry(ctx, policy.DefaultProfileName, nil)
	require.NoError(t, err)

	f := &fixture{
		store:   store,
		clock:   &testClock{now: t0},
		metrics: observability.NewMetrics(prometheus.NewRegistry()),
		provider: &stubProvider{
			diff: plandiff.Diff{
				&plandiff.RemoveSession{SessionID: "s0"},
				&plandiff.AdjustWeekVolume{WeekIndex: 1, PctDelta: -0.30},
			},
			respectsLocks: true,
		},
		files: &memFiles{objects: map[string][]byte{}},
	}
	f.rebuild(registry)
	return f
}

func (f *fixture) deps() Deps {
	return Deps{Store: f.store, Clock: f.clock, Metrics: f.metrics}
}

func (f *fixture) rebuild(registry *policy.Registry) {
	f.triggers = NewTriggerService(f.deps(), 14)
	f.forecasts = NewPerformanceService(f.deps())
	f.proposals = NewProposalService(f.deps(), ProposalConfig{
		Policies:   registry,
		Provider:   f.provider,
		Archive:    storage.NewSnapshotArchive(f.files, time.Minute),
		RetryDelay: time.Millisecond,
	})
}

func seedPlan(t *testing.T, store *repository.Store) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, store.Drafts.Create(ctx, &domain.DraftPlan{
		ID: draftID, AthleteID: athleteID, CoachID: coachID, Name: "Spring 10k",
		Setup:        domain.PlanSetup{StartDate: time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC), WeekStart: domain.WeekStartMonday},
		PublishState: domain.PublishStateDraft,
		CreatedAt:    t0, UpdatedAt: t0,
	}))
	require.NoError(t, store.Plans.UpsertWeeks(ctx, []domain.Week{
		{ID: "w0", DraftID: draftID, WeekIndex: 0, Locked: true, SessionsCount: 1, TotalMinutes: 45, UpdatedAt: t0},
		{ID: "w1", DraftID: draftID, WeekIndex: 1, SessionsCount: 2, TotalMinutes: 130, UpdatedAt: t0},
		{ID: "w2", DraftID: draftID, WeekIndex: 2, SessionsCount: 1, TotalMinutes: 60, UpdatedAt: t0},
	}))
	long := "long run, easy pace"
	require.NoError(t, store.Plans.UpsertSessions(ctx, []domain.Session{
		{ID: "s0", DraftID: draftID, WeekIndex: 0, Ordinal: 0, DayOfWeek: time.Monday, Discipline: "Run", Type: "Tempo", DurationMinutes: 45, UpdatedAt: t0},
		{ID: "s1", DraftID: draftID, WeekIndex: 1, Ordinal: 0, DayOfWeek: time.Tuesday, Discipline: "Run", Type: "Tempo", DurationMinutes: 40, UpdatedAt: t0},
		{ID: "s2", DraftID: draftID, WeekIndex: 1, Ordinal: 1, DayOfWeek: time.Saturday, Discipline: "Run", Type: "Long", DurationMinutes: 90, Notes: &long, UpdatedAt: t0},
		{ID: "s3", DraftID: draftID, WeekIndex: 2, Ordinal: 0, DayOfWeek: time.Tuesday, Discipline: "Bike", Type: "Endurance", DurationMinutes: 60, UpdatedAt: t0},
	}))
}

// addSoreness stores a soreness report from yesterday.
func (f *fixture) addSoreness(t *testing.T, id string) {
	t.Helper()
	require.NoError(t, f.store.Signals.AddFeedback(context.Background(), &domain.Feedback{
		ID: id, AthleteID: athleteID, DraftID: draftID,
		Status: domain.FeedbackDone, Feel: domain.FeelHard, Soreness: true,
		CreatedAt: f.clock.Now().Add(-24 * time.Hour),
	}))
}

func (f *fixture) session(t *testing.T, id string) domain.Session {
	t.Helper()
	sessions, err := f.store.Plans.ListSessions(context.Background(), draftID)
	require.NoError(t, err)
	for _, s := range sessions {
		if s.ID == id {
			return s
		}
	}
	t.Fatalf("session %s not found", id)
	return domain.Session{}
}

// generate detects triggers and generates a proposal from the latest window.
func (f *fixture) generate(t *testing.T) *domain.Proposal {
	t.Helper()
	ctx := context.Background()
	_, err := f.triggers.Detect(ctx, coachID, draftID, 0)
	require.NoError(t, err)
	p, err := f.proposals.Generate(ctx, coachID, draftID, nil)
	require.NoError(t, err)
	return p
}

type memFiles struct {
	mu      sync.Mutex
	objects map[string][]byte
	putErr  error
}

func (m *memFiles) PutObject(_ context.Context, key, _ string, body []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.putErr != nil {
		return m.putErr
	}
	m.objects[key] = body
	return nil
}

func (m *memFiles) GeneratePresignedDownloadURL(_ context.Context, key string, _ time.Duration) (string, error) {
	return "https://files.test/" + key, nil
}
