package suggest

import (
	"context"
	"fmt"
	"strings"

	"alcyxob/coaching-platform/internal/domain"
	"alcyxob/coaching-platform/internal/plandiff"
)

const missedKeyNote = "Key sessions were missed recently. Prioritise the key session this week and move it rather than skip it."

// Deterministic is the rule-based provider. It only ever targets the first
// unlocked week at or after the current week, so its output respects locks.
type Deterministic struct{}

func NewDeterministic() *Deterministic {
	return &Deterministic{}
}

func (Deterministic) Suggest(_ context.Context, in Input) (*Output, error) {
	out := &Output{Diff: plandiff.Diff{}, RespectsLocks: true, Source: domain.SourceDeterministic}

	target, ok := nextOpenWeek(in)
	if !ok {
		out.RationaleText = "No unlocked upcoming week to adapt."
		return out, nil
	}
	rec := in.Policy.Recovery
	var why []string

	switch {
	case hasTrigger(in, domain.TriggerSoreness, domain.TriggerTooHard):
		out.Diff = append(out.Diff, &plandiff.AdjustWeekVolume{WeekIndex: target, PctDelta: -rec.ReductionPct})
		swapTo := rec.ProtectiveSessionType
		if swapTo == "" || domain.IsIntensityType(swapTo) {
			swapTo = "Endurance"
		}
		for _, s := range in.Draft.Sessions {
			if s.WeekIndex == target && !s.Locked && domain.IsIntensityType(s.Type) {
				out.Diff = append(out.Diff, &plandiff.SwapSessionType{SessionID: s.ID, NewType: swapTo})
			}
		}
		why = append(why, fmt.Sprintf("Recent soreness or overload: week %d volume reduced by %.0f%% and intensity sessions eased to %s.", target+1, rec.ReductionPct*100, swapTo))
	case hasTrigger(in, domain.TriggerMissedKey):
		out.Diff = append(out.Diff, &plandiff.AdjustWeekVolume{WeekIndex: target, PctDelta: -rec.ReductionPct / 2})
		why = append(why, fmt.Sprintf("Key sessions were missed: week %d volume trimmed by %.0f%%.", target+1, rec.ReductionPct*50))
	case hasTrigger(in, domain.TriggerHighCompliance):
		if rec.DeloadEveryWeeks > 0 && (target+1)%rec.DeloadEveryWeeks == 0 {
			out.Diff = append(out.Diff, &plandiff.AdjustWeekVolume{WeekIndex: target, PctDelta: -rec.ReductionPct})
			why = append(why, fmt.Sprintf("Consistent training, but week %d is a scheduled deload week.", target+1))
		} else {
			out.Diff = append(out.Diff, &plandiff.AdjustWeekVolume{WeekIndex: target, PctDelta: rec.ProgressionPct})
			why = append(why, fmt.Sprintf("Consistent training with manageable effort: week %d volume progressed by %.0f%%.", target+1, rec.ProgressionPct*100))
		}
	}
	if hasTrigger(in, domain.TriggerMissedKey) {
		out.Diff = append(out.Diff, &plandiff.AddNote{
			Target: plandiff.NoteTarget{Kind: plandiff.TargetWeek, WeekIndex: plandiff.IntPtr(target)},
			Text:   missedKeyNote,
		})
	}

	if len(why) == 0 {
		why = append(why, "No adaptation needed.")
	}
	out.RationaleText = strings.Join(why, " ")
	return out, nil
}

func nextOpenWeek(in Input) (int, bool) {
	best, found := 0, false
	for _, w := range in.Draft.Weeks {
		if w.Locked || w.WeekIndex < in.CurrentWeekIndex {
			continue
		}
		if !found || w.WeekIndex < best {
			best, found = w.WeekIndex, true
		}
	}
	return best, found
}
