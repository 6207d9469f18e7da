package safety

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alcyxob/coaching-platform/internal/domain"
	"alcyxob/coaching-platform/internal/plandiff"
	"alcyxob/coaching-platform/internal/policy"
)

var defaultCaps = policy.SafetyCaps{
	MaxVolumeIncreasePct: 0.12,
	MaxVolumeDecreasePct: 0.20,
	MaxDurationChangePct: 0.25,
	MinSessionMinutes:    20,
	MaxSessionMinutes:    240,
}

// week 0 locked (s0), week 1 open with a Tuesday tempo run (s1) and an
// endurance ride (s2), week 2 open with a long run (s3).
func fixture() *plandiff.PlanState {
	return plandiff.NewPlanState(
		[]domain.Week{
			{ID: "w0", DraftID: "d1", WeekIndex: 0, Locked: true},
			{ID: "w1", DraftID: "d1", WeekIndex: 1},
			{ID: "w2", DraftID: "d1", WeekIndex: 2},
		},
		[]domain.Session{
			{ID: "s0", DraftID: "d1", WeekIndex: 0, Ordinal: 0, DayOfWeek: time.Monday, Discipline: "Run", Type: "Easy", DurationMinutes: 30},
			{ID: "s1", DraftID: "d1", WeekIndex: 1, Ordinal: 0, DayOfWeek: time.Tuesday, Discipline: "Run", Type: "Tempo", DurationMinutes: 40},
			{ID: "s2", DraftID: "d1", WeekIndex: 1, Ordinal: 1, DayOfWeek: time.Thursday, Discipline: "Bike", Type: "Endurance", DurationMinutes: 60},
			{ID: "s3", DraftID: "d1", WeekIndex: 2, Ordinal: 0, DayOfWeek: time.Sunday, Discipline: "Run", Type: "Long", DurationMinutes: 200},
		},
	)
}

func ctx(current int, triggers ...domain.TriggerType) Context {
	return Context{CurrentWeekIndex: current, TriggerTypes: triggers, Caps: defaultCaps, State: fixture()}
}

func TestSorenessScenario(t *testing.T) {
	c := ctx(0, domain.TriggerSoreness)
	raw := plandiff.Diff{
		&plandiff.RemoveSession{SessionID: "s0"},
		&plandiff.AdjustWeekVolume{WeekIndex: 1, PctDelta: -0.30},
	}

	rw := Rewrite(c, raw)
	assert.Equal(t, 1, rw.DroppedOps)
	require.Len(t, rw.Diff, 1)
	vol, ok := rw.Diff[0].(*plandiff.AdjustWeekVolume)
	require.True(t, ok)
	assert.Equal(t, -0.20, vol.PctDelta)
	assert.Len(t, rw.Log, 2)

	res := Validate(c, rw.Diff)
	assert.True(t, res.OK, res.Reasons)
	assert.Equal(t, -20, res.Metrics.TotalDurationDeltaMinutes)
	assert.Equal(t, []domain.WeekVolumeDelta{{WeekIndex: 1, DeltaMinutes: -20}}, res.Metrics.WeekVolumeDeltas)
	assert.Equal(t, 1, res.Metrics.OpCounts["ADJUST_WEEK_VOLUME"])

	state := fixture()
	_, err := plandiff.Apply(state, rw.Diff)
	require.NoError(t, err)
	s1, _ := state.Session("s1")
	assert.Equal(t, 32, s1.DurationMinutes)

	// The raw diff is left untouched.
	assert.Equal(t, -0.30, raw[1].(*plandiff.AdjustWeekVolume).PctDelta)
}

func TestRewriteNeverKeepsRemovals(t *testing.T) {
	diffs := []plandiff.Diff{
		{&plandiff.RemoveSession{SessionID: "s1"}},
		{&plandiff.RemoveSession{SessionID: "s2"}, &plandiff.RemoveSession{SessionID: "s3"}},
		{&plandiff.AdjustWeekVolume{WeekIndex: 2, PctDelta: 0.05}, &plandiff.RemoveSession{SessionID: "ghost"}},
	}
	for _, d := range diffs {
		rw := Rewrite(ctx(0), d)
		assert.GreaterOrEqual(t, rw.DroppedOps, 1)
		for _, op := range rw.Diff {
			assert.NotEqual(t, plandiff.OpRemoveSession, op.Type())
		}
	}
}

func TestRewriteClampsDuration(t *testing.T) {
	tests := []struct {
		name    string
		session string
		request int
		want    int
	}{
		{"increase capped at 25 percent", "s1", 80, 50},
		{"decrease capped at 25 percent", "s1", 10, 30},
		{"within bounds kept", "s2", 70, 70},
		{"global maximum", "s3", 300, 240},
		{"unchanged value passes", "s3", 200, 200},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := ctx(1)
			d := plandiff.Diff{&plandiff.UpdateSession{SessionID: tt.session, Patch: plandiff.SessionPatch{DurationMinutes: plandiff.IntPtr(tt.request)}}}
			rw := Rewrite(c, d)
			require.Len(t, rw.Diff, 1)
			got := *rw.Diff[0].(*plandiff.UpdateSession).Patch.DurationMinutes
			assert.Equal(t, tt.want, got)
			assert.True(t, Validate(c, rw.Diff).OK)
		})
	}
}

func TestDurationBounds(t *testing.T) {
	lo, hi := DurationBounds(40, defaultCaps)
	assert.Equal(t, 30, lo)
	assert.Equal(t, 50, hi)

	lo, hi = DurationBounds(10, defaultCaps)
	assert.Equal(t, 20, lo)
	assert.Equal(t, 20, hi)

	lo, hi = DurationBounds(300, defaultCaps)
	assert.Equal(t, 225, lo)
	assert.Equal(t, 240, hi)
}

func TestRestoreIsExemptFromDurationCaps(t *testing.T) {
	c := ctx(1)
	c.Restore = RestoreFrom(&domain.BeforeState{Sessions: []domain.SessionBeforeState{
		{SessionID: "s1", DurationMinutes: 60},
		{SessionID: "s2", DurationMinutes: 15},
	}})
	d := plandiff.Diff{
		&plandiff.UpdateSession{SessionID: "s1", Patch: plandiff.SessionPatch{DurationMinutes: plandiff.IntPtr(60)}},
		&plandiff.UpdateSession{SessionID: "s2", Patch: plandiff.SessionPatch{DurationMinutes: plandiff.IntPtr(15)}},
	}

	res := Validate(c, d)
	assert.True(t, res.OK, res.Reasons)
	rw := Rewrite(c, d)
	assert.Empty(t, rw.Log)
	assert.Equal(t, 60, *rw.Diff[0].(*plandiff.UpdateSession).Patch.DurationMinutes)

	// Only the checkpointed value is exempt.
	d[0].(*plandiff.UpdateSession).Patch.DurationMinutes = plandiff.IntPtr(70)
	res = Validate(c, d)
	assert.False(t, res.OK)
	assert.Len(t, res.Reasons, 1)
	assert.Contains(t, res.Reasons[0], "duration of s1")

	// Without a checkpoint the same restore breaks the caps.
	c.Restore = nil
	d[0].(*plandiff.UpdateSession).Patch.DurationMinutes = plandiff.IntPtr(60)
	assert.Len(t, Validate(c, d).Reasons, 2)
}

func TestProtectiveModeBlocksEscalation(t *testing.T) {
	escalate := plandiff.Diff{
		&plandiff.SwapSessionType{SessionID: "s2", NewType: "Threshold"},
		&plandiff.UpdateSession{SessionID: "s3", Patch: plandiff.SessionPatch{Type: plandiff.StringPtr("tempo")}},
		&plandiff.SwapSessionType{SessionID: "s1", NewType: "Threshold"},
	}

	for _, trig := range []domain.TriggerType{domain.TriggerSoreness, domain.TriggerTooHard, domain.TriggerMissedKey} {
		t.Run(string(trig), func(t *testing.T) {
			c := ctx(1, trig)
			assert.False(t, Validate(c, escalate).OK)
			assert.Len(t, Validate(c, escalate).Reasons, 2)

			rw := Rewrite(c, escalate)
			require.Len(t, rw.Diff, 3)
			assert.Equal(t, ProtectiveType, rw.Diff[0].(*plandiff.SwapSessionType).NewType)
			assert.Equal(t, ProtectiveType, *rw.Diff[1].(*plandiff.UpdateSession).Patch.Type)
			// s1 is already an intensity session; staying in intensity is not an escalation.
			assert.Equal(t, "Threshold", rw.Diff[2].(*plandiff.SwapSessionType).NewType)
			assert.True(t, Validate(c, rw.Diff).OK)
		})
	}

	t.Run("high compliance is not protective", func(t *testing.T) {
		c := ctx(1, domain.TriggerHighCompliance)
		assert.False(t, c.ProtectiveMode())
		rw := Rewrite(c, escalate)
		assert.Equal(t, "Threshold", rw.Diff[0].(*plandiff.SwapSessionType).NewType)
		assert.Empty(t, rw.Log)
		assert.True(t, Validate(c, escalate).OK)
	})
}

func TestPastWeekImmutability(t *testing.T) {
	c := ctx(2)
	raw := plandiff.Diff{
		&plandiff.UpdateSession{SessionID: "s1", Patch: plandiff.SessionPatch{Notes: plandiff.StringPtr("x")}},
		&plandiff.AdjustWeekVolume{WeekIndex: 1, PctDelta: -0.1},
		&plandiff.AddNote{Target: plandiff.NoteTarget{Kind: plandiff.TargetWeek, WeekIndex: plandiff.IntPtr(0)}, Text: "old"},
		&plandiff.AddNote{Target: plandiff.NoteTarget{Kind: plandiff.TargetSession, SessionID: "s3"}, Text: "current"},
	}

	res := Validate(c, raw)
	assert.False(t, res.OK)
	assert.Len(t, res.Reasons, 3)

	rw := Rewrite(c, raw)
	assert.Equal(t, 3, rw.DroppedOps)
	require.Len(t, rw.Diff, 1)
	assert.Equal(t, plandiff.OpAddNote, rw.Diff[0].Type())
	assert.True(t, Validate(c, rw.Diff).OK)
}

func TestValidateAccumulatesReasons(t *testing.T) {
	c := ctx(1)
	raw := plandiff.Diff{
		&plandiff.RemoveSession{SessionID: "s2"},
		&plandiff.AdjustWeekVolume{WeekIndex: 2, PctDelta: 0.5},
		&plandiff.UpdateSession{SessionID: "s1", Patch: plandiff.SessionPatch{DurationMinutes: plandiff.IntPtr(80)}},
		&plandiff.SwapSessionType{SessionID: "ghost", NewType: "Easy"},
	}
	before := raw.Clone()
	state := c.State.Clone()

	res := Validate(c, raw)
	assert.False(t, res.OK)
	assert.Len(t, res.Reasons, 4)
	assert.Equal(t, before, raw)
	assert.Equal(t, state, c.State)
}

func TestRewriteDropsUnknownSessions(t *testing.T) {
	rw := Rewrite(ctx(0), plandiff.Diff{&plandiff.SwapSessionType{SessionID: "ghost", NewType: "Easy"}})
	assert.Equal(t, 1, rw.DroppedOps)
	assert.Empty(t, rw.Diff)
	assert.NotNil(t, rw.Diff)
}
