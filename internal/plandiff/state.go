package plandiff

import (
	"sort"

	"alcyxob/coaching-platform/internal/domain"
)

// PlanState is the mutable in-memory view of a draft's weeks and sessions.
// Apply, validation metrics and preview all operate on (clones of) it.
type PlanState struct {
	Weeks    []domain.Week
	Sessions []domain.Session
}

// NewPlanState copies weeks and sessions into canonical order
// (weekIndex, then ordinal).
func NewPlanState(weeks []domain.Week, sessions []domain.Session) *PlanState {
	s := &PlanState{
		Weeks:    append([]domain.Week(nil), weeks...),
		Sessions: make([]domain.Session, len(sessions)),
	}
	for i := range sessions {
		s.Sessions[i] = cloneSession(sessions[i])
	}
	s.sort()
	return s
}

// Clone deep-copies the state.
func (s *PlanState) Clone() *PlanState {
	return NewPlanState(s.Weeks, s.Sessions)
}

func (s *PlanState) sort() {
	sort.SliceStable(s.Weeks, func(i, j int) bool { return s.Weeks[i].WeekIndex < s.Weeks[j].WeekIndex })
	sort.SliceStable(s.Sessions, func(i, j int) bool {
		a, b := s.Sessions[i], s.Sessions[j]
		if a.WeekIndex != b.WeekIndex {
			return a.WeekIndex < b.WeekIndex
		}
		return a.Ordinal < b.Ordinal
	})
}

// Session returns the live session row with the given id.
func (s *PlanState) Session(id string) (*domain.Session, bool) {
	for i := range s.Sessions {
		if s.Sessions[i].ID == id {
			return &s.Sessions[i], true
		}
	}
	return nil, false
}

// Week returns the live week row with the given index.
func (s *PlanState) Week(index int) (*domain.Week, bool) {
	for i := range s.Weeks {
		if s.Weeks[i].WeekIndex == index {
			return &s.Weeks[i], true
		}
	}
	return nil, false
}

// WeekLocked reports whether the week with the given index exists and is locked.
func (s *PlanState) WeekLocked(index int) bool {
	w, ok := s.Week(index)
	return ok && w.Locked
}

// SessionsInWeek returns pointers to the live rows of a week, in ordinal order.
func (s *PlanState) SessionsInWeek(index int) []*domain.Session {
	var out []*domain.Session
	for i := range s.Sessions {
		if s.Sessions[i].WeekIndex == index {
			out = append(out, &s.Sessions[i])
		}
	}
	return out
}

// WeekMinutes sums the session durations of one week.
func (s *PlanState) WeekMinutes(index int) int {
	total := 0
	for _, sess := range s.SessionsInWeek(index) {
		total += sess.DurationMinutes
	}
	return total
}

// Recompute refreshes each week's cached session count and total minutes.
func (s *PlanState) Recompute() {
	for i := range s.Weeks {
		w := &s.Weeks[i]
		w.SessionsCount, w.TotalMinutes = 0, 0
		for _, sess := range s.Sessions {
			if sess.WeekIndex == w.WeekIndex {
				w.SessionsCount++
				w.TotalMinutes += sess.DurationMinutes
			}
		}
	}
}

func (s *PlanState) remove(id string) {
	for i := range s.Sessions {
		if s.Sessions[i].ID == id {
			s.Sessions = append(s.Sessions[:i], s.Sessions[i+1:]...)
			return
		}
	}
}

func cloneSession(in domain.Session) domain.Session {
	out := in
	out.Notes = cloneString(in.Notes)
	return out
}
