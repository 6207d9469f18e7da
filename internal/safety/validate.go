package safety

import (
	"fmt"
	"sort"

	"alcyxob/coaching-platform/internal/domain"
	"alcyxob/coaching-platform/internal/plandiff"
)

// Validate gates a diff without modifying it or the context state. Every
// violation is reported; metrics come from replaying the diff on a copy of
// the state.
func Validate(c Context, d plandiff.Diff) domain.HardSafetyResult {
	v := &validator{ctx: c, protective: c.ProtectiveMode()}
	for i, op := range d {
		v.index = i
		_ = op.Accept(v)
	}
	return domain.HardSafetyResult{
		OK:      len(v.reasons) == 0,
		Reasons: v.reasons,
		Metrics: Metrics(c.State, d),
	}
}

// Metrics simulates d on a clone of s and aggregates the volume effect.
func Metrics(s *plandiff.PlanState, d plandiff.Diff) domain.SafetyMetrics {
	after := s.Clone()
	plandiff.Replay(after, d)
	after.Recompute()

	before := map[int]int{}
	for _, sess := range s.Sessions {
		before[sess.WeekIndex] += sess.DurationMinutes
	}
	delta := map[int]int{}
	for w, m := range before {
		delta[w] -= m
	}
	for _, sess := range after.Sessions {
		delta[sess.WeekIndex] += sess.DurationMinutes
	}

	m := domain.SafetyMetrics{OpCounts: d.CountByType(), WeekVolumeDeltas: []domain.WeekVolumeDelta{}}
	for w, dm := range delta {
		m.TotalDurationDeltaMinutes += dm
		if dm != 0 {
			m.WeekVolumeDeltas = append(m.WeekVolumeDeltas, domain.WeekVolumeDelta{WeekIndex: w, DeltaMinutes: dm})
		}
	}
	sort.Slice(m.WeekVolumeDeltas, func(i, j int) bool {
		return m.WeekVolumeDeltas[i].WeekIndex < m.WeekVolumeDeltas[j].WeekIndex
	})
	return m
}

type validator struct {
	ctx        Context
	protective bool
	index      int
	reasons    []string
}

func (v *validator) fail(format string, args ...any) {
	v.reasons = append(v.reasons, fmt.Sprintf("op %d: ", v.index)+fmt.Sprintf(format, args...))
}

func (v *validator) session(op plandiff.Op, id string) (*domain.Session, bool) {
	s, ok := v.ctx.State.Session(id)
	if !ok {
		v.fail("%s references unknown session %s", op.Type(), id)
		return nil, false
	}
	if s.WeekIndex < v.ctx.CurrentWeekIndex {
		v.fail("%s targets session %s in past week %d", op.Type(), id, s.WeekIndex)
	}
	return s, true
}

func (v *validator) week(op plandiff.Op, week int) {
	if week < v.ctx.CurrentWeekIndex {
		v.fail("%s targets past week %d", op.Type(), week)
	}
}

func (v *validator) UpdateSession(op *plandiff.UpdateSession) error {
	s, ok := v.session(op, op.SessionID)
	if !ok {
		return nil
	}
	if p := op.Patch.DurationMinutes; p != nil && *p != s.DurationMinutes && !v.ctx.restores(op.SessionID, *p) {
		lo, hi := DurationBounds(s.DurationMinutes, v.ctx.Caps)
		if *p < lo || *p > hi {
			v.fail("duration of %s changes %d to %d min, outside [%d,%d]", op.SessionID, s.DurationMinutes, *p, lo, hi)
		}
	}
	if t := op.Patch.Type; v.protective && t != nil && isEscalation(s.Type, *t) {
		v.fail("escalates %s from %s to %s in protective mode", op.SessionID, s.Type, *t)
	}
	return nil
}

func (v *validator) SwapSessionType(op *plandiff.SwapSessionType) error {
	s, ok := v.session(op, op.SessionID)
	if ok && v.protective && isEscalation(s.Type, op.NewType) {
		v.fail("escalates %s from %s to %s in protective mode", op.SessionID, s.Type, op.NewType)
	}
	return nil
}

func (v *validator) RemoveSession(op *plandiff.RemoveSession) error {
	v.fail("REMOVE_SESSION %s is not permitted", op.SessionID)
	return nil
}

func (v *validator) AdjustWeekVolume(op *plandiff.AdjustWeekVolume) error {
	v.week(op, op.WeekIndex)
	caps := v.ctx.Caps
	if op.PctDelta > caps.MaxVolumeIncreasePct || op.PctDelta < -caps.MaxVolumeDecreasePct {
		v.fail("week %d volume delta %+.2f outside [%+.2f,%+.2f]", op.WeekIndex, op.PctDelta, -caps.MaxVolumeDecreasePct, caps.MaxVolumeIncreasePct)
	}
	return nil
}

func (v *validator) AddNote(op *plandiff.AddNote) error {
	if op.Target.Kind == plandiff.TargetSession {
		v.session(op, op.Target.SessionID)
		return nil
	}
	if op.Target.WeekIndex != nil {
		v.week(op, *op.Target.WeekIndex)
	}
	return nil
}
