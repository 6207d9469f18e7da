// Package performance forecasts training load (CTL/ATL/TSB) from completed
// activities and the planned sessions of a draft.
package performance

import (
	"math"
	"strings"
	"time"

	"alcyxob/coaching-platform/internal/domain"
)

const (
	HistoryDays = 120
	CTLHalfLife = 42.0
	ATLHalfLife = 7.0
)

// typeFactors maps lowercased session types to intensity factors.
var typeFactors = map[string]float64{
	"threshold": 1.25,
	"tempo":     1.15,
	"recovery":  0.70,
	"race":      1.40,
}

// TypeFactor returns the intensity factor for a planned session type.
func TypeFactor(sessionType string) float64 {
	if f, ok := typeFactors[strings.ToLower(strings.TrimSpace(sessionType))]; ok {
		return f
	}
	return 1.0
}

// RPEFactor returns the intensity factor for a completed activity.
func RPEFactor(rpe *int) float64 {
	if rpe == nil {
		return 1.0
	}
	return float64(*rpe) / 5
}

// Load is one point of the fitness/fatigue state.
type Load struct {
	CTL float64 `json:"ctl"`
	ATL float64 `json:"atl"`
	TSB float64 `json:"tsb"`
}

func (l Load) sub(o Load) Load {
	return Load{CTL: l.CTL - o.CTL, ATL: l.ATL - o.ATL, TSB: l.TSB - o.TSB}
}

func (l Load) rounded() Load {
	return Load{CTL: round1(l.CTL), ATL: round1(l.ATL), TSB: round1(l.TSB)}
}

// Upcoming summarizes the planned load from today to the last planned day.
type Upcoming struct {
	Days         int     `json:"days"`
	PlannedLoad  float64 `json:"plannedLoad"`
	AvgDailyLoad float64 `json:"avgDailyLoad"`
}

// Model is the forecast result.
type Model struct {
	Current   Load     `json:"current"`
	Projected Load     `json:"projected"`
	Delta     Load     `json:"delta"`
	Upcoming  Upcoming `json:"upcoming"`
}

// Input is what a forecast reads. Today is truncated to a UTC day.
type Input struct {
	Today      time.Time
	Draft      *domain.DraftPlan
	Sessions   []domain.Session
	Activities []domain.CompletedActivity
}

// Forecast smooths the historical daily loads, oldest first, to get the
// current state, then continues over the planned days to project it.
func Forecast(in Input) Model {
	today := day(in.Today)

	history := make([]float64, HistoryDays)
	first := today.AddDate(0, 0, -HistoryDays)
	for _, a := range in.Activities {
		i := daysBetween(first, day(a.StartTime))
		if i < 0 || i >= HistoryDays {
			continue
		}
		history[i] += float64(a.DurationMinutes) * RPEFactor(a.RPE)
	}

	var planned []float64
	if in.Draft != nil {
		for _, s := range in.Sessions {
			i := daysBetween(today, in.Draft.SessionDate(s.WeekIndex, s.DayOfWeek))
			if i < 0 {
				continue
			}
			for len(planned) <= i {
				planned = append(planned, 0)
			}
			planned[i] += float64(s.DurationMinutes) * TypeFactor(s.Type)
		}
	}

	current := smooth(Load{}, history)
	projected := smooth(current, planned)

	up := Upcoming{Days: len(planned)}
	for _, l := range planned {
		up.PlannedLoad += l
	}
	if up.Days > 0 {
		up.AvgDailyLoad = up.PlannedLoad / float64(up.Days)
	}
	up.PlannedLoad, up.AvgDailyLoad = round1(up.PlannedLoad), round1(up.AvgDailyLoad)

	return Model{
		Current:   current.rounded(),
		Projected: projected.rounded(),
		Delta:     projected.sub(current).rounded(),
		Upcoming:  up,
	}
}

func smooth(start Load, loads []float64) Load {
	kc := 1 - math.Exp(-1/CTLHalfLife)
	ka := 1 - math.Exp(-1/ATLHalfLife)
	l := start
	for _, load := range loads {
		l.CTL += (load - l.CTL) * kc
		l.ATL += (load - l.ATL) * ka
	}
	l.TSB = l.CTL - l.ATL
	return l
}

func day(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func daysBetween(from, to time.Time) int {
	return int(math.Round(to.Sub(from).Hours() / 24))
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
