// Package safety softens and then gates plan diffs before they can become
// approvable proposals. Rewrite is the auto-fixer; Validate is the pure gate.
// Both read the same Context so their verdicts agree.
package safety

import (
	"math"

	"alcyxob/coaching-platform/internal/domain"
	"alcyxob/coaching-platform/internal/plandiff"
	"alcyxob/coaching-platform/internal/policy"
)

// ProtectiveType replaces intensity types in protective mode.
const ProtectiveType = "Endurance"

// Context is the plan state and policy a diff is judged against. State is
// read, never written.
type Context struct {
	CurrentWeekIndex int
	TriggerTypes     []domain.TriggerType
	Caps             policy.SafetyCaps
	State            *plandiff.PlanState
	// Restore maps session ids to checkpointed durations. Putting a session
	// back to exactly that value is exempt from the duration caps.
	Restore map[string]int
}

// RestoreFrom collects the checkpointed durations of b.
func RestoreFrom(b *domain.BeforeState) map[string]int {
	m := make(map[string]int, len(b.Sessions))
	for _, s := range b.Sessions {
		m[s.SessionID] = s.DurationMinutes
	}
	return m
}

// restores reports whether setting id to minutes puts back its checkpoint.
func (c Context) restores(id string, minutes int) bool {
	want, ok := c.Restore[id]
	return ok && want == minutes
}

// ProtectiveMode is on when any trigger calls for backing off.
func (c Context) ProtectiveMode() bool {
	for _, t := range c.TriggerTypes {
		if t.IsProtective() {
			return true
		}
	}
	return false
}

// DurationBounds returns the permitted duration range for a session currently
// at current minutes: within MaxDurationChangePct of current, then within the
// global session band.
func DurationBounds(current int, caps policy.SafetyCaps) (lo, hi int) {
	lo = clampInt(int(math.Round(float64(current)*(1-caps.MaxDurationChangePct))), caps.MinSessionMinutes, caps.MaxSessionMinutes)
	hi = clampInt(int(math.Round(float64(current)*(1+caps.MaxDurationChangePct))), caps.MinSessionMinutes, caps.MaxSessionMinutes)
	return lo, hi
}

// isEscalation reports whether moving a session from current to next type
// raises it into an intensity type.
func isEscalation(current, next string) bool {
	return domain.IsIntensityType(next) && !domain.IsIntensityType(current)
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampFloat(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
