// Package suggest produces raw plan diffs from triggers. Provider output is
// untrusted: callers always rewrite and validate it.
package suggest

import (
	"context"
	"time"

	"alcyxob/coaching-platform/internal/domain"
	"alcyxob/coaching-platform/internal/plandiff"
	"alcyxob/coaching-platform/internal/policy"
)

// WeekView is the provider-facing shape of a week.
type WeekView struct {
	WeekIndex int  `json:"weekIndex"`
	Locked    bool `json:"locked"`
}

// SessionView is the provider-facing shape of a session.
type SessionView struct {
	ID              string       `json:"id"`
	WeekIndex       int          `json:"weekIndex"`
	Ordinal         int          `json:"ordinal"`
	DayOfWeek       time.Weekday `json:"dayOfWeek"`
	Type            string       `json:"type"`
	DurationMinutes int          `json:"durationMinutes"`
	Notes           *string      `json:"notes"`
	Locked          bool         `json:"locked"`
}

// DraftView is the plan as a provider sees it.
type DraftView struct {
	Weeks    []WeekView    `json:"weeks"`
	Sessions []SessionView `json:"sessions"`
}

// Input is the provider contract's request.
type Input struct {
	TriggerTypes     []domain.TriggerType `json:"triggerTypes"`
	Draft            DraftView            `json:"draft"`
	CurrentWeekIndex int                  `json:"currentWeekIndex"`
	Policy           policy.Profile       `json:"-"`
}

// Output is the provider contract's response. Source and FallbackReason are
// filled by this package, not by the model.
type Output struct {
	Diff           plandiff.Diff
	RationaleText  string
	RespectsLocks  bool
	Source         domain.ProposalSource
	FallbackReason string
}

// Provider suggests a diff for the given triggers.
type Provider interface {
	Suggest(ctx context.Context, in Input) (*Output, error)
}

// NewInput builds the provider view of a plan state. A week's lock is
// reflected onto its sessions so providers see one flag per session.
func NewInput(s *plandiff.PlanState, triggers []domain.TriggerType, currentWeek int, profile policy.Profile) Input {
	in := Input{
		TriggerTypes:     triggers,
		CurrentWeekIndex: currentWeek,
		Policy:           profile,
		Draft: DraftView{
			Weeks:    make([]WeekView, 0, len(s.Weeks)),
			Sessions: make([]SessionView, 0, len(s.Sessions)),
		},
	}
	for _, w := range s.Weeks {
		in.Draft.Weeks = append(in.Draft.Weeks, WeekView{WeekIndex: w.WeekIndex, Locked: w.Locked})
	}
	for _, sess := range s.Sessions {
		in.Draft.Sessions = append(in.Draft.Sessions, SessionView{
			ID:              sess.ID,
			WeekIndex:       sess.WeekIndex,
			Ordinal:         sess.Ordinal,
			DayOfWeek:       sess.DayOfWeek,
			Type:            sess.Type,
			DurationMinutes: sess.DurationMinutes,
			Notes:           sess.Notes,
			Locked:          sess.Locked || s.WeekLocked(sess.WeekIndex),
		})
	}
	return in
}

func hasTrigger(in Input, types ...domain.TriggerType) bool {
	for _, have := range in.TriggerTypes {
		for _, want := range types {
			if have == want {
				return true
			}
		}
	}
	return false
}
