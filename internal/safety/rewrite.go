package safety

import (
	"fmt"

	"alcyxob/coaching-platform/internal/domain"
	"alcyxob/coaching-platform/internal/plandiff"
)

// RewriteResult is the softened diff plus an account of what changed.
type RewriteResult struct {
	Diff       plandiff.Diff
	DroppedOps int
	Log        []string
}

// Rewrite drops ops that may never be auto-applied and clamps the rest into
// policy bounds. The input diff is not modified.
func Rewrite(c Context, d plandiff.Diff) RewriteResult {
	rw := &rewriter{ctx: c, protective: c.ProtectiveMode()}
	for i, op := range d.Clone() {
		rw.index, rw.keep = i, true
		_ = op.Accept(rw)
		if rw.keep {
			rw.out = append(rw.out, op)
		} else {
			rw.dropped++
		}
	}
	if rw.out == nil {
		rw.out = plandiff.Diff{}
	}
	return RewriteResult{Diff: rw.out, DroppedOps: rw.dropped, Log: rw.log}
}

type rewriter struct {
	ctx        Context
	protective bool

	index   int
	keep    bool
	out     plandiff.Diff
	dropped int
	log     []string
}

func (r *rewriter) logf(format string, args ...any) {
	r.log = append(r.log, fmt.Sprintf("op %d: ", r.index)+fmt.Sprintf(format, args...))
}

func (r *rewriter) drop(format string, args ...any) {
	r.keep = false
	r.logf("dropped, "+format, args...)
}

// session resolves a session-addressed op and drops it when the session is
// unknown or sits in a past week.
func (r *rewriter) session(op plandiff.Op, id string) (*domain.Session, bool) {
	s, found := r.ctx.State.Session(id)
	if !found {
		r.drop("%s references unknown session %s", op.Type(), id)
		return nil, false
	}
	if s.WeekIndex < r.ctx.CurrentWeekIndex {
		r.drop("%s targets session %s in past week %d", op.Type(), id, s.WeekIndex)
		return nil, false
	}
	return s, true
}

func (r *rewriter) pastWeek(op plandiff.Op, week int) bool {
	if week < r.ctx.CurrentWeekIndex {
		r.drop("%s targets past week %d", op.Type(), week)
		return true
	}
	return false
}

func (r *rewriter) UpdateSession(op *plandiff.UpdateSession) error {
	cur, ok := r.session(op, op.SessionID)
	if !ok {
		return nil
	}
	if p := op.Patch.DurationMinutes; p != nil && *p != cur.DurationMinutes && !r.ctx.restores(op.SessionID, *p) {
		lo, hi := DurationBounds(cur.DurationMinutes, r.ctx.Caps)
		if v := clampInt(*p, lo, hi); v != *p {
			r.logf("clamped duration of %s from %d to %d min", op.SessionID, *p, v)
			*p = v
		}
	}
	if t := op.Patch.Type; r.protective && t != nil && isEscalation(cur.Type, *t) {
		r.logf("protective mode, downgraded %s type %s to %s", op.SessionID, *t, ProtectiveType)
		op.Patch.Type = plandiff.StringPtr(ProtectiveType)
	}
	return nil
}

func (r *rewriter) SwapSessionType(op *plandiff.SwapSessionType) error {
	cur, ok := r.session(op, op.SessionID)
	if !ok {
		return nil
	}
	if r.protective && isEscalation(cur.Type, op.NewType) {
		r.logf("protective mode, downgraded %s swap %s to %s", op.SessionID, op.NewType, ProtectiveType)
		op.NewType = ProtectiveType
	}
	return nil
}

func (r *rewriter) RemoveSession(op *plandiff.RemoveSession) error {
	r.drop("REMOVE_SESSION %s is never auto-applied", op.SessionID)
	return nil
}

func (r *rewriter) AdjustWeekVolume(op *plandiff.AdjustWeekVolume) error {
	if r.pastWeek(op, op.WeekIndex) {
		return nil
	}
	caps := r.ctx.Caps
	if v := clampFloat(op.PctDelta, -caps.MaxVolumeDecreasePct, caps.MaxVolumeIncreasePct); v != op.PctDelta {
		r.logf("clamped week %d volume delta from %+.2f to %+.2f", op.WeekIndex, op.PctDelta, v)
		op.PctDelta = v
	}
	return nil
}

func (r *rewriter) AddNote(op *plandiff.AddNote) error {
	if op.Target.Kind == plandiff.TargetSession {
		r.session(op, op.Target.SessionID)
		return nil
	}
	if op.Target.WeekIndex != nil {
		r.pastWeek(op, *op.Target.WeekIndex)
	}
	return nil
}
