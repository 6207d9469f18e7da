package plandiff

import (
	"fmt"
	"math"

	"alcyxob/coaching-platform/internal/domain"
)

// NoteSeparator joins appended notes. Notes are never overwritten by ADD_NOTE.
const NoteSeparator = "\n\n"

// Skip reasons reported by Replay.
const (
	SkipUnknownSession = "unknown session"
	SkipUnknownWeek    = "unknown week"
	SkipSessionLocked  = "session locked"
	SkipWeekLocked     = "week locked"
)

// Skip records an op (or part of one) Replay could not perform.
type Skip struct {
	Index  int
	Op     Op
	Reason string
	Ref    string
}

// ReplayResult lists what a replay did, in op order.
type ReplayResult struct {
	Skips []Skip
	// Changed holds the ids of sessions whose content was written, first-touch order.
	Changed []string
	Removed []string
}

// ScaleDuration applies a percentage delta, rounds, and floors at zero.
func ScaleDuration(minutes int, pctDelta float64) int {
	v := int(math.Round(float64(minutes) * (1 + pctDelta)))
	if v < 0 {
		return 0
	}
	return v
}

// AppendNote appends text to existing notes with a blank-line separator.
func AppendNote(existing *string, text string) *string {
	if existing == nil || *existing == "" {
		return StringPtr(text)
	}
	return StringPtr(*existing + NoteSeparator + text)
}

// Replay applies every op it can resolve, in order, and reports the rest as
// skips. Locked sessions inside a week-scoped op are passed over silently.
// Replay never fails; Apply layers strict resolution on top of it.
func Replay(s *PlanState, d Diff) *ReplayResult {
	r := &replayer{state: s, result: &ReplayResult{}, seen: map[string]bool{}}
	for i, op := range d {
		r.index, r.op = i, op
		_ = op.Accept(r)
	}
	return r.result
}

type replayer struct {
	state  *PlanState
	result *ReplayResult
	seen   map[string]bool
	index  int
	op     Op
}

func (r *replayer) skip(reason, ref string) {
	r.result.Skips = append(r.result.Skips, Skip{Index: r.index, Op: r.op, Reason: reason, Ref: ref})
}

func (r *replayer) changed(id string) {
	if !r.seen[id] {
		r.seen[id] = true
		r.result.Changed = append(r.result.Changed, id)
	}
}

// target resolves a session for a content-changing op.
func (r *replayer) target(id string) (*domain.Session, bool) {
	sess, ok := r.state.Session(id)
	if !ok {
		r.skip(SkipUnknownSession, id)
		return nil, false
	}
	if r.state.WeekLocked(sess.WeekIndex) {
		r.skip(SkipWeekLocked, fmt.Sprintf("week %d", sess.WeekIndex))
		return nil, false
	}
	if sess.Locked {
		r.skip(SkipSessionLocked, id)
		return nil, false
	}
	return sess, true
}

// week resolves an unlocked week for a week-scoped op.
func (r *replayer) week(index int) bool {
	w, ok := r.state.Week(index)
	if !ok {
		r.skip(SkipUnknownWeek, fmt.Sprintf("week %d", index))
		return false
	}
	if w.Locked {
		r.skip(SkipWeekLocked, fmt.Sprintf("week %d", index))
		return false
	}
	return true
}

func (r *replayer) UpdateSession(op *UpdateSession) error {
	sess, ok := r.target(op.SessionID)
	if !ok {
		return nil
	}
	p := op.Patch
	if p.Discipline != nil {
		sess.Discipline = *p.Discipline
	}
	if p.Type != nil {
		sess.Type = *p.Type
	}
	if p.DurationMinutes != nil {
		sess.DurationMinutes = *p.DurationMinutes
	}
	if p.ClearNotes {
		sess.Notes = nil
	} else if p.Notes != nil {
		sess.Notes = StringPtr(*p.Notes)
	}
	r.changed(sess.ID)
	return nil
}

func (r *replayer) SwapSessionType(op *SwapSessionType) error {
	sess, ok := r.target(op.SessionID)
	if !ok {
		return nil
	}
	sess.Type = op.NewType
	r.changed(sess.ID)
	return nil
}

func (r *replayer) RemoveSession(op *RemoveSession) error {
	if _, ok := r.target(op.SessionID); !ok {
		return nil
	}
	r.state.remove(op.SessionID)
	r.result.Removed = append(r.result.Removed, op.SessionID)
	return nil
}

func (r *replayer) AdjustWeekVolume(op *AdjustWeekVolume) error {
	if !r.week(op.WeekIndex) {
		return nil
	}
	for _, sess := range r.state.SessionsInWeek(op.WeekIndex) {
		if sess.Locked {
			continue
		}
		sess.DurationMinutes = ScaleDuration(sess.DurationMinutes, op.PctDelta)
		r.changed(sess.ID)
	}
	return nil
}

func (r *replayer) AddNote(op *AddNote) error {
	if op.Target.Kind == TargetSession {
		sess, ok := r.target(op.Target.SessionID)
		if !ok {
			return nil
		}
		sess.Notes = AppendNote(sess.Notes, op.Text)
		r.changed(sess.ID)
		return nil
	}
	if op.Target.WeekIndex == nil || !r.week(*op.Target.WeekIndex) {
		return nil
	}
	for _, sess := range r.state.SessionsInWeek(*op.Target.WeekIndex) {
		if sess.Locked {
			continue
		}
		sess.Notes = AppendNote(sess.Notes, op.Text)
		r.changed(sess.ID)
	}
	return nil
}
