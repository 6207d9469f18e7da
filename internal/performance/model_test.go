package performance

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"alcyxob/coaching-platform/internal/domain"
)

// 2026-03-15 is a Sunday.
var today = time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)

func intp(v int) *int { return &v }

func TestFactors(t *testing.T) {
	assert.Equal(t, 1.25, TypeFactor("Threshold"))
	assert.Equal(t, 1.15, TypeFactor("tempo"))
	assert.Equal(t, 0.70, TypeFactor("Recovery"))
	assert.Equal(t, 1.40, TypeFactor("race"))
	assert.Equal(t, 1.0, TypeFactor("Endurance"))
	assert.Equal(t, 1.0, RPEFactor(nil))
	assert.Equal(t, 1.6, RPEFactor(intp(8)))
}

func TestForecastEmpty(t *testing.T) {
	m := Forecast(Input{Today: today})
	assert.Equal(t, Model{}, m)
}

func TestForecastCurrentFromHistory(t *testing.T) {
	m := Forecast(Input{
		Today: today,
		Activities: []domain.CompletedActivity{
			{ID: "a1", StartTime: today.AddDate(0, 0, -1), DurationMinutes: 60, RPE: intp(5)},
			{ID: "old", StartTime: today.AddDate(0, 0, -200), DurationMinutes: 600},
			{ID: "today", StartTime: today, DurationMinutes: 600},
		},
	})

	ctl := 60 * (1 - math.Exp(-1/42.0))
	atl := 60 * (1 - math.Exp(-1/7.0))
	assert.InDelta(t, ctl, m.Current.CTL, 0.05)
	assert.InDelta(t, atl, m.Current.ATL, 0.05)
	assert.InDelta(t, ctl-atl, m.Current.TSB, 0.05)
	assert.Equal(t, m.Current, m.Projected)
	assert.Equal(t, 0, m.Upcoming.Days)
}

func TestForecastRespectsWeekStart(t *testing.T) {
	sessions := []domain.Session{
		{ID: "s1", WeekIndex: 1, DayOfWeek: time.Monday, Type: "Tempo", DurationMinutes: 40},
		{ID: "past", WeekIndex: 0, DayOfWeek: time.Monday, Type: "Easy", DurationMinutes: 40},
	}

	sunday := &domain.DraftPlan{ID: "d1", Setup: domain.PlanSetup{StartDate: today, WeekStart: domain.WeekStartSunday}}
	m := Forecast(Input{Today: today, Draft: sunday, Sessions: sessions})
	// Week 0 starts today; week 1 Monday is eight days out.
	assert.Equal(t, 9, m.Upcoming.Days)
	assert.InDelta(t, 40+46, m.Upcoming.PlannedLoad, 0.01)

	monday := &domain.DraftPlan{ID: "d1", Setup: domain.PlanSetup{StartDate: today, WeekStart: domain.WeekStartMonday}}
	m = Forecast(Input{Today: today, Draft: monday, Sessions: sessions})
	// Week 0 started six days ago; week 1 Monday is tomorrow and week 0 Monday is past.
	assert.Equal(t, 2, m.Upcoming.Days)
	assert.InDelta(t, 46, m.Upcoming.PlannedLoad, 0.01)
	assert.InDelta(t, 23, m.Upcoming.AvgDailyLoad, 0.01)
	assert.Greater(t, m.Projected.ATL, m.Current.ATL)
	assert.InDelta(t, m.Projected.CTL-m.Current.CTL, m.Delta.CTL, 0.11)
}
