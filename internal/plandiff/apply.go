package plandiff

import (
	"alcyxob/coaching-platform/internal/domain"
)

// ApplyResult describes a successful strict apply.
type ApplyResult struct {
	ChangedSessionIDs []string
	RemovedSessionIDs []string
	TouchedWeeks      []int
}

// CheckRefs resolves every week and session the diff references against s.
// Missing references fail with NOT_FOUND before any lock is considered; then a
// locked touched week fails with WEEK_LOCKED and a content op on a locked
// session with SESSION_LOCKED. It does not mutate s.
func CheckRefs(s *PlanState, d Diff) error {
	var weeks []int
	seenWeek := map[int]bool{}
	touchWeek := func(i int) {
		if !seenWeek[i] {
			seenWeek[i] = true
			weeks = append(weeks, i)
		}
	}

	for i, op := range d {
		if id := SessionRef(op); id != "" {
			sess, ok := s.Session(id)
			if !ok {
				return domain.Errorf(domain.CodeNotFound, "op %d: session %s not found", i, id)
			}
			touchWeek(sess.WeekIndex)
			continue
		}
		if idx, ok := WeekRef(op); ok {
			if _, found := s.Week(idx); !found {
				return domain.Errorf(domain.CodeNotFound, "op %d: week %d not found", i, idx)
			}
			touchWeek(idx)
		}
	}

	for _, idx := range weeks {
		if s.WeekLocked(idx) {
			return domain.Errorf(domain.CodeWeekLocked, "week %d is locked", idx)
		}
	}
	for i, op := range d {
		if id := SessionRef(op); id != "" {
			if sess, _ := s.Session(id); sess.Locked {
				return domain.Errorf(domain.CodeSessionLocked, "op %d: session %s is locked", i, id)
			}
		}
	}
	return nil
}

// Apply strictly applies d to s in op order: references are resolved and
// lock-checked up front, ops run in array order, then week caches are
// recomputed. On error s is left untouched.
func Apply(s *PlanState, d Diff) (*ApplyResult, error) {
	if err := CheckRefs(s, d); err != nil {
		return nil, err
	}
	work := s.Clone()
	replay := Replay(work, d)
	if len(replay.Skips) > 0 {
		// Only reachable when an earlier op in the same diff removed a session
		// a later op addresses.
		sk := replay.Skips[0]
		return nil, domain.Errorf(domain.CodeNotFound, "op %d: %s %s", sk.Index, sk.Reason, sk.Ref)
	}
	work.Recompute()
	*s = *work

	res := &ApplyResult{
		ChangedSessionIDs: replay.Changed,
		RemovedSessionIDs: replay.Removed,
	}
	seen := map[int]bool{}
	for _, op := range d {
		idx, ok := WeekRef(op)
		if !ok {
			if sess, found := s.Session(SessionRef(op)); found {
				idx, ok = sess.WeekIndex, true
			}
		}
		if ok && !seen[idx] {
			seen[idx] = true
			res.TouchedWeeks = append(res.TouchedWeeks, idx)
		}
	}
	return res, nil
}

// TouchedSessionIDs lists every session the diff would write, in first-touch
// order: directly addressed sessions plus the unlocked sessions of weeks
// targeted by week-scoped ops. Unknown references are ignored.
func TouchedSessionIDs(s *PlanState, d Diff) []string {
	var out []string
	seen := map[string]bool{}
	add := func(id string) {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	for _, op := range d {
		if id := SessionRef(op); id != "" {
			if _, ok := s.Session(id); ok {
				add(id)
			}
			continue
		}
		if idx, ok := WeekRef(op); ok {
			for _, sess := range s.SessionsInWeek(idx) {
				if !sess.Locked {
					add(sess.ID)
				}
			}
		}
	}
	return out
}
