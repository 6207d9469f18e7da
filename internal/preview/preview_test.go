package preview

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alcyxob/coaching-platform/internal/domain"
	"alcyxob/coaching-platform/internal/plandiff"
)

func fixture() *plandiff.PlanState {
	s := plandiff.NewPlanState(
		[]domain.Week{
			{ID: "w0", DraftID: "d1", WeekIndex: 0, Locked: true},
			{ID: "w1", DraftID: "d1", WeekIndex: 1},
		},
		[]domain.Session{
			{ID: "s0", DraftID: "d1", WeekIndex: 0, Ordinal: 0, DayOfWeek: time.Monday, Discipline: "Run", Type: "Easy", DurationMinutes: 30},
			{ID: "s1", DraftID: "d1", WeekIndex: 1, Ordinal: 0, DayOfWeek: time.Tuesday, Discipline: "Run", Type: "Tempo", DurationMinutes: 45},
			{ID: "s2", DraftID: "d1", WeekIndex: 1, Ordinal: 1, DayOfWeek: time.Thursday, Discipline: "Bike", Type: "Endurance", DurationMinutes: 60},
		},
	)
	s.Recompute()
	return s
}

func TestRenderChangeLine(t *testing.T) {
	d := plandiff.Diff{
		&plandiff.SwapSessionType{SessionID: "s1", NewType: "Endurance"},
		&plandiff.UpdateSession{SessionID: "s1", Patch: plandiff.SessionPatch{DurationMinutes: plandiff.IntPtr(34)}},
	}

	vm := RenderState(fixture(), d)
	require.Len(t, vm.Weeks, 1)
	w := vm.Weeks[0]
	assert.Equal(t, 1, w.WeekIndex)
	assert.Equal(t, 105, w.BeforeTotalMinutes)
	assert.Equal(t, 94, w.AfterTotalMinutes)
	require.Len(t, w.Items, 1)
	assert.Equal(t, Item{Kind: ItemChanged, SessionID: "s1", Ordinal: 0, Text: "Tue Run: Tempo → Endurance; 45 min → 34 min"}, w.Items[0])
	assert.Equal(t, "1 session(s) changed across 1 week(s); volume -11 min", vm.Summary)
	assert.Empty(t, vm.Warnings)
}

func TestRenderUnknownOps(t *testing.T) {
	d := plandiff.Diff{
		&plandiff.SwapSessionType{SessionID: "ghost", NewType: "Easy"},
		&plandiff.AdjustWeekVolume{WeekIndex: 9, PctDelta: 0.1},
	}

	vm := RenderState(fixture(), d)
	assert.Empty(t, vm.Weeks)
	assert.Equal(t, []string{
		"Unknown op #1 SWAP_SESSION_TYPE: session ghost not found",
		"Unknown op #2 ADJUST_WEEK_VOLUME: week 9 not found",
	}, vm.Warnings)
	assert.Contains(t, vm.Summary, "2 warning(s)")
}

func TestRenderLockedOpsWarnInTheirWeek(t *testing.T) {
	d := plandiff.Diff{
		&plandiff.AddNote{Target: plandiff.NoteTarget{Kind: plandiff.TargetSession, SessionID: "s0"}, Text: "easy"},
		&plandiff.AdjustWeekVolume{WeekIndex: 0, PctDelta: -0.1},
	}

	vm := RenderState(fixture(), d)
	require.Len(t, vm.Weeks, 1)
	w := vm.Weeks[0]
	assert.Equal(t, 0, w.WeekIndex)
	assert.Equal(t, w.BeforeTotalMinutes, w.AfterTotalMinutes)
	require.Len(t, w.Items, 2)
	assert.Equal(t, ItemWarning, w.Items[0].Kind)
	assert.Equal(t, -1, w.Items[0].Ordinal)
	assert.Equal(t, "Blocked op #2 ADJUST_WEEK_VOLUME: week locked (week 0)", w.Items[0].Text)
	assert.Equal(t, "Blocked op #1 ADD_NOTE: week locked (week 0)", w.Items[1].Text)
}

func TestRenderMatchesApply(t *testing.T) {
	d := plandiff.Diff{
		&plandiff.AdjustWeekVolume{WeekIndex: 1, PctDelta: -0.2},
		&plandiff.AddNote{Target: plandiff.NoteTarget{Kind: plandiff.TargetSession, SessionID: "s2"}, Text: "keep cadence high"},
		&plandiff.RemoveSession{SessionID: "s1"},
	}
	state := fixture()
	vm := RenderState(state, d)

	applied := fixture()
	_, err := plandiff.Apply(applied, d)
	require.NoError(t, err)

	require.Len(t, vm.Weeks, 1)
	w := vm.Weeks[0]
	assert.Equal(t, applied.WeekMinutes(1), w.AfterTotalMinutes)
	assert.Equal(t, 48, w.AfterTotalMinutes)
	assert.Equal(t, []Item{
		{Kind: ItemRemoved, SessionID: "s1", Ordinal: 0, Text: "Tue Run: removed"},
		{Kind: ItemChanged, SessionID: "s2", Ordinal: 1, Text: "Thu Bike: 60 min → 48 min; notes updated"},
	}, w.Items)
	assert.Equal(t, fixture(), state, "render must not write")
}

func TestRenderFromSnapshot(t *testing.T) {
	state := fixture()
	draft := &domain.DraftPlan{ID: "d1", Setup: domain.PlanSetup{WeekStart: domain.WeekStartMonday}}
	snap := plandiff.BuildSnapshot(draft, state)
	d := plandiff.Diff{&plandiff.AdjustWeekVolume{WeekIndex: 1, PctDelta: 0.1}}

	assert.Equal(t, RenderState(state, d), Render(snap, d))
}
