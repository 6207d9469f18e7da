package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alcyxob/coaching-platform/internal/domain"
	"alcyxob/coaching-platform/internal/observability"
	"alcyxob/coaching-platform/internal/policy"
	"alcyxob/coaching-platform/internal/repository"
	"alcyxob/coaching-platform/internal/repository/sqlite"
	"alcyxob/coaching-platform/internal/service"
	"alcyxob/coaching-platform/pkg/clock"
)

const (
	testSecret = "test-secret"
	coachID    = "coach-1"
	athleteID  = "athlete-1"
	draftID    = "draft-1"
)

var now = time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)

func token(t *testing.T, uid string, role domain.Role, exp time.Time) string {
	t.Helper()
	claims := jwtClaims{
		UserID: uid,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(exp.Add(-time.Hour)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func newTestRouter(t *testing.T) (*gin.Engine, *repository.Store) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx := context.Background()

	store, err := sqlite.NewStore(filepath.Join(t.TempDir(), "plans.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close(context.Background()) })

	require.NoError(t, store.Drafts.Create(ctx, &domain.DraftPlan{
		ID: draftID, AthleteID: athleteID, CoachID: coachID, Name: "Spring 10k",
		Setup:        domain.PlanSetup{StartDate: time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC), WeekStart: domain.WeekStartMonday},
		PublishState: domain.PublishStateDraft,
		CreatedAt:    now, UpdatedAt: now,
	}))
	require.NoError(t, store.Plans.UpsertWeeks(ctx, []domain.Week{
		{ID: "w0", DraftID: draftID, WeekIndex: 0, Locked: true, SessionsCount: 1, TotalMinutes: 45, UpdatedAt: now},
		{ID: "w1", DraftID: draftID, WeekIndex: 1, SessionsCount: 1, TotalMinutes: 60, UpdatedAt: now},
	}))
	require.NoError(t, store.Plans.UpsertSessions(ctx, []domain.Session{
		{ID: "s0", DraftID: draftID, WeekIndex: 0, Ordinal: 0, DayOfWeek: time.Monday, Discipline: "Run", Type: "Tempo", DurationMinutes: 45, UpdatedAt: now},
		{ID: "s1", DraftID: draftID, WeekIndex: 1, Ordinal: 0, DayOfWeek: time.Tuesday, Discipline: "Run", Type: "Tempo", DurationMinutes: 60, UpdatedAt: now},
	}))
	require.NoError(t, store.Signals.AddFeedback(ctx, &domain.Feedback{
		ID: "fb-1", AthleteID: athleteID, DraftID: draftID,
		Status: domain.FeedbackDone, Feel: domain.FeelHard, Soreness: true,
		CreatedAt: now.Add(-24 * time.Hour),
	}))

	registry, err := policy.NewRegistry(ctx, policy.DefaultProfileName, nil)
	require.NoError(t, err)
	reg := prometheus.NewRegistry()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	deps := service.Deps{Store: store, Clock: clock.FixedClock{T: now}, Logger: logger, Metrics: observability.NewMetrics(reg)}

	router := gin.New()
	SetupRoutes(router, testSecret, Services{
		Proposals:   service.NewProposalService(deps, service.ProposalConfig{Policies: registry}),
		Triggers:    service.NewTriggerService(deps, 14),
		Performance: service.NewPerformanceService(deps),
		Policies:    registry,
		Gatherer:    reg,
		Logger:      logger,
	})
	return router, store
}

func do(router *gin.Engine, method, path, bearer, body string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v))
}

func TestAuthMiddleware(t *testing.T) {
	router, _ := newTestRouter(t)
	valid := time.Now().Add(time.Hour)

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized},
		{"garbage token", "Bearer not-a-jwt", http.StatusUnauthorized},
		{"expired", "Bearer " + token(t, coachID, domain.RoleCoach, time.Now().Add(-time.Hour)), http.StatusUnauthorized},
		{"athlete role", "Bearer " + token(t, athleteID, domain.RoleAthlete, valid), http.StatusForbidden},
		{"coach", "Bearer " + token(t, coachID, domain.RoleCoach, valid), http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/policies", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestPingAndMetrics(t *testing.T) {
	router, _ := newTestRouter(t)

	w := do(router, http.MethodGet, "/ping", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "pong")

	w = do(router, http.MethodGet, "/metrics", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestDetectGenerateAndRead(t *testing.T) {
	router, _ := newTestRouter(t)
	bearer := token(t, coachID, domain.RoleCoach, time.Now().Add(time.Hour))

	w := do(router, http.MethodPost, "/api/v1/drafts/"+draftID+"/triggers/detect", bearer, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var detected DetectTriggersResponse
	decode(t, w, &detected)
	require.Len(t, detected.Triggers, 1)
	assert.Equal(t, domain.TriggerSoreness, detected.Triggers[0].TriggerType)
	assert.Equal(t, 1, detected.Created)
	assert.Contains(t, detected.Triggers[0].EvidenceJSON, "fb-1")

	w = do(router, http.MethodPost, "/api/v1/drafts/"+draftID+"/proposals", bearer, "")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created ProposalResponse
	decode(t, w, &created)
	assert.Equal(t, draftID, created.DraftID)
	assert.Equal(t, []string{detected.Triggers[0].ID}, created.TriggerIDs)
	assert.Equal(t, domain.SourceDeterministic, created.Metadata.Source)

	w = do(router, http.MethodGet, "/api/v1/proposals/"+created.ID, bearer, "")
	require.Equal(t, http.StatusOK, w.Code)
	var fetched ProposalResponse
	decode(t, w, &fetched)
	assert.Equal(t, created.ID, fetched.ID)
	assert.JSONEq(t, string(created.Diff), string(fetched.Diff))

	w = do(router, http.MethodGet, "/api/v1/proposals/"+created.ID+"/preview", bearer, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "summary")

	w = do(router, http.MethodGet, "/api/v1/drafts/"+draftID+"/proposals?status=proposed,draft", bearer, "")
	require.Equal(t, http.StatusOK, w.Code)
	var listed []ProposalResponse
	decode(t, w, &listed)
	assert.Len(t, listed, 1)

	w = do(router, http.MethodGet, "/api/v1/drafts/"+draftID+"/proposals?status=bogus", bearer, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(router, http.MethodGet, "/api/v1/drafts/"+draftID+"/performance", bearer, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "projected")
}

func TestErrorMapping(t *testing.T) {
	router, _ := newTestRouter(t)
	bearer := token(t, coachID, domain.RoleCoach, time.Now().Add(time.Hour))
	other := token(t, "coach-2", domain.RoleCoach, time.Now().Add(time.Hour))

	w := do(router, http.MethodGet, "/api/v1/proposals/missing", bearer, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), string(domain.CodeNotFound))

	w = do(router, http.MethodPost, "/api/v1/drafts/"+draftID+"/triggers/detect", other, "")
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), string(domain.CodeForbidden))

	// No triggers detected yet.
	w = do(router, http.MethodPost, "/api/v1/drafts/"+draftID+"/proposals", bearer, "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(router, http.MethodPut, "/api/v1/proposals/any/diff", bearer, `{"diff": [{"op": "EXPLODE"}]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), string(domain.CodeInvalidDiff))

	w = do(router, http.MethodPost, "/api/v1/drafts/"+draftID+"/triggers/detect", bearer, `{"lookbackDays": -1}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStatusForCode(t *testing.T) {
	tests := []struct {
		code domain.ErrorCode
		want int
	}{
		{domain.CodeNotFound, http.StatusNotFound},
		{domain.CodeForbidden, http.StatusForbidden},
		{domain.CodeInvalidDiff, http.StatusBadRequest},
		{domain.CodeHardSafetyBlocked, http.StatusUnprocessableEntity},
		{domain.CodeWeekLocked, http.StatusConflict},
		{domain.CodeSessionLocked, http.StatusConflict},
		{domain.CodeProposalConflict, http.StatusConflict},
		{domain.CodeInvalidStatus, http.StatusConflict},
		{domain.CodeUndoNotAvailable, http.StatusConflict},
		{"", http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusForCode(tt.code), tt.code)
	}
}

func TestRespondWithErrorIncludesReasons(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/", nil)

	respondWithError(c, slog.New(slog.NewTextHandler(io.Discard, nil)), domain.HardSafetyBlocked([]string{"a", "b", "c", "d"}))

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	var body struct {
		Code    string   `json:"code"`
		Reasons []string `json:"reasons"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "HARD_SAFETY_BLOCKED", body.Code)
	assert.Equal(t, []string{"a", "b", "c"}, body.Reasons)
}

func TestPolicyRoutes(t *testing.T) {
	router, _ := newTestRouter(t)
	bearer := token(t, coachID, domain.RoleCoach, time.Now().Add(time.Hour))

	w := do(router, http.MethodGet, "/api/v1/policies", bearer, "")
	require.Equal(t, http.StatusOK, w.Code)
	var list PolicyListResponse
	decode(t, w, &list)
	assert.Equal(t, policy.DefaultProfileName, list.Default)
	assert.NotEmpty(t, list.Profiles)

	w = do(router, http.MethodGet, "/api/v1/policies/default", bearer, "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(router, http.MethodGet, "/api/v1/policies/nope", bearer, "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(router, http.MethodPost, "/api/v1/policies/refresh", bearer, "")
	assert.Equal(t, http.StatusOK, w.Code)
}
