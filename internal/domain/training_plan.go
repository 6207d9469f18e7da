// internal/domain/training_plan.go
package domain

import (
	"time"
)

// WeekStart is the plan's calendar convention for the first day of a week.
type WeekStart string

const (
	WeekStartMonday WeekStart = "MONDAY"
	WeekStartSunday WeekStart = "SUNDAY"
)

// Weekday returns the calendar weekday a plan week begins on. Anything other
// than SUNDAY is treated as MONDAY.
func (w WeekStart) Weekday() time.Weekday {
	if w == WeekStartSunday {
		return time.Sunday
	}
	return time.Monday
}

// PublishState tracks whether a draft has been pushed to the athlete's calendar.
type PublishState string

const (
	PublishStateDraft     PublishState = "DRAFT"
	PublishStatePublished PublishState = "PUBLISHED"
)

// PlanSetup holds the calendar anchor of a draft plan.
type PlanSetup struct {
	StartDate time.Time `bson:"startDate" json:"startDate"`
	WeekStart WeekStart `bson:"weekStart" json:"weekStart"`
}

// DraftPlan is the coach-owned, athlete-scoped training plan that proposals mutate.
// SnapshotJSON is a denormalized copy of weeks+sessions refreshed after every apply.
type DraftPlan struct {
	ID           string       `bson:"_id" json:"id"`
	AthleteID    string       `bson:"athleteId" json:"athleteId"`
	CoachID      string       `bson:"coachId" json:"coachId"`
	Name         string       `bson:"name" json:"name"`
	Setup        PlanSetup    `bson:"setup" json:"setup"`
	SnapshotJSON string       `bson:"snapshotJson" json:"-"`
	PublishState PublishState `bson:"publishState" json:"publishState"`
	PublishedAt  *time.Time   `bson:"publishedAt,omitempty" json:"publishedAt,omitempty"`
	CreatedAt    time.Time    `bson:"createdAt" json:"createdAt"`
	UpdatedAt    time.Time    `bson:"updatedAt" json:"updatedAt"`
}

// WeekZeroStart returns the first day (UTC midnight) of week 0: the most recent
// week-start weekday on or before Setup.StartDate.
func (p *DraftPlan) WeekZeroStart() time.Time {
	start := truncateDay(p.Setup.StartDate)
	offset := (int(start.Weekday()) - int(p.Setup.WeekStart.Weekday()) + 7) % 7
	return start.AddDate(0, 0, -offset)
}

// CurrentWeekIndex is the index of the plan week containing now. Weeks before
// it are in the past and immutable. Never negative.
func (p *DraftPlan) CurrentWeekIndex(now time.Time) int {
	days := int(truncateDay(now).Sub(p.WeekZeroStart()).Hours() / 24)
	if days < 0 {
		return 0
	}
	return days / 7
}

// SessionDate maps a (weekIndex, dayOfWeek) pair onto an absolute calendar day
// honouring the plan's week-start convention.
func (p *DraftPlan) SessionDate(weekIndex int, day time.Weekday) time.Time {
	offset := (int(day) - int(p.Setup.WeekStart.Weekday()) + 7) % 7
	return p.WeekZeroStart().AddDate(0, 0, weekIndex*7+offset)
}

// Week belongs to a DraftPlan. SessionsCount/TotalMinutes are caches recomputed
// after every diff apply.
type Week struct {
	ID            string    `bson:"_id" json:"id"`
	DraftID       string    `bson:"draftId" json:"draftId"`
	WeekIndex     int       `bson:"weekIndex" json:"weekIndex"`
	Locked        bool      `bson:"locked" json:"locked"`
	SessionsCount int       `bson:"sessionsCount" json:"sessionsCount"`
	TotalMinutes  int       `bson:"totalMinutes" json:"totalMinutes"`
	UpdatedAt     time.Time `bson:"updatedAt" json:"updatedAt"`
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
