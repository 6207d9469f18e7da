// Package trigger classifies a rolling window of athlete signals into
// adaptation triggers. Detection is pure; persistence and dedup live in the
// service layer.
package trigger

import (
	"fmt"
	"sort"

	"alcyxob/coaching-platform/internal/domain"
)

// Rule thresholds.
const (
	SorenessDays  = 7
	TooHardDays   = 10
	MissedKeyDays = 7

	HighRPE         = 8
	PoorSleepMax    = 2
	MinComplianceN  = 4
	ComplianceRatio = 0.85
	ComplianceRPE   = 6.5
	MissedKeyRatio  = 0.5
	MissedKeyMinOpp = 3
)

// Input is everything a detection run looks at. Sessions resolves
// Feedback.SessionID to decide whether a skipped session was a key session.
type Input struct {
	DraftID    string
	AthleteID  string
	Window     Window
	Feedback   []domain.Feedback
	Activities []domain.CompletedActivity
	Sessions   map[string]domain.Session
}

// Detect evaluates every rule independently and returns the triggers that
// fired, in a fixed order. IDs and CreatedAt are left for the caller.
func Detect(in Input) []domain.AdaptationTrigger {
	var fired []domain.AdaptationTrigger
	add := func(t domain.TriggerType, ev *domain.TriggerEvidence) {
		if ev == nil {
			return
		}
		fired = append(fired, domain.AdaptationTrigger{
			DraftID:     in.DraftID,
			AthleteID:   in.AthleteID,
			TriggerType: t,
			WindowStart: in.Window.Start,
			WindowEnd:   in.Window.End,
			Evidence:    *ev,
		})
	}

	soreness := detectSoreness(in)
	tooHard := detectTooHard(in)
	add(domain.TriggerSoreness, soreness)
	add(domain.TriggerTooHard, tooHard)
	add(domain.TriggerMissedKey, detectMissedKey(in))
	if soreness == nil && tooHard == nil {
		add(domain.TriggerHighCompliance, detectHighCompliance(in))
	}
	return fired
}

func detectSoreness(in Input) *domain.TriggerEvidence {
	w := in.Window.Last(SorenessDays)
	var fb, act []string
	for _, f := range in.Feedback {
		if f.Soreness && w.Contains(f.CreatedAt) {
			fb = append(fb, f.ID)
		}
	}
	for _, a := range in.Activities {
		if a.PainFlag && w.Contains(a.StartTime) {
			act = append(act, a.ID)
		}
	}
	if len(fb)+len(act) == 0 {
		return nil
	}
	return &domain.TriggerEvidence{
		Rule:        fmt.Sprintf("soreness or pain reported in the last %d days", SorenessDays),
		FeedbackIDs: sorted(fb),
		ActivityIDs: sorted(act),
		Counts: map[string]float64{
			"sorenessFeedback": float64(len(fb)),
			"painActivities":   float64(len(act)),
		},
	}
}

func detectTooHard(in Input) *domain.TriggerEvidence {
	w := in.Window.Last(TooHardDays)
	var tooHard, highRPE, poorSleep int
	fbIDs := map[string]bool{}
	var actIDs []string
	for _, f := range in.Feedback {
		if !w.Contains(f.CreatedAt) {
			continue
		}
		if f.Feel == domain.FeelTooHard {
			tooHard++
			fbIDs[f.ID] = true
		}
		if f.RPE != nil && *f.RPE >= HighRPE {
			highRPE++
			fbIDs[f.ID] = true
		}
		if f.SleepQuality != nil && *f.SleepQuality <= PoorSleepMax {
			poorSleep++
			fbIDs[f.ID] = true
		}
	}
	for _, a := range in.Activities {
		if w.Contains(a.StartTime) && a.RPE != nil && *a.RPE >= HighRPE {
			highRPE++
			actIDs = append(actIDs, a.ID)
		}
	}

	var rule string
	switch {
	case tooHard >= 2:
		rule = fmt.Sprintf("%d sessions rated too hard in %d days", tooHard, TooHardDays)
	case highRPE >= 3:
		rule = fmt.Sprintf("%d entries with RPE >= %d in %d days", highRPE, HighRPE, TooHardDays)
	case tooHard >= 1 && (highRPE >= 2 || poorSleep >= 2):
		rule = fmt.Sprintf("too-hard rating compounded by high RPE (%d) or poor sleep (%d)", highRPE, poorSleep)
	default:
		return nil
	}
	return &domain.TriggerEvidence{
		Rule:        rule,
		FeedbackIDs: keys(fbIDs),
		ActivityIDs: sorted(actIDs),
		Counts: map[string]float64{
			"tooHard":   float64(tooHard),
			"highRpe":   float64(highRPE),
			"poorSleep": float64(poorSleep),
		},
	}
}

func detectMissedKey(in Input) *domain.TriggerEvidence {
	recent := in.Window.Last(MissedKeyDays)
	var opportunities, skipped, recentSkipped int
	var fb, sess []string
	for _, f := range in.Feedback {
		if f.SessionID == nil || !in.Window.Contains(f.CreatedAt) {
			continue
		}
		s, ok := in.Sessions[*f.SessionID]
		if !ok || !s.IsKey() {
			continue
		}
		opportunities++
		if f.Status != domain.FeedbackSkipped {
			continue
		}
		skipped++
		fb = append(fb, f.ID)
		sess = append(sess, s.ID)
		if recent.Contains(f.CreatedAt) {
			recentSkipped++
		}
	}

	var rule string
	switch {
	case recentSkipped >= 2:
		rule = fmt.Sprintf("%d key sessions skipped in %d days", recentSkipped, MissedKeyDays)
	case opportunities >= MissedKeyMinOpp && float64(skipped)/float64(opportunities) >= MissedKeyRatio:
		rule = fmt.Sprintf("%d of %d key sessions skipped", skipped, opportunities)
	default:
		return nil
	}
	return &domain.TriggerEvidence{
		Rule:        rule,
		FeedbackIDs: sorted(fb),
		SessionIDs:  sorted(sess),
		Counts: map[string]float64{
			"opportunities": float64(opportunities),
			"skipped":       float64(skipped),
			"recentSkipped": float64(recentSkipped),
		},
	}
}

func detectHighCompliance(in Input) *domain.TriggerEvidence {
	var total, completed, rpeN int
	var rpeSum float64
	var ids []string
	for _, f := range in.Feedback {
		if !in.Window.Contains(f.CreatedAt) {
			continue
		}
		total++
		ids = append(ids, f.ID)
		if f.Status == domain.FeedbackDone || f.Status == domain.FeedbackPartial {
			completed++
		}
		if f.RPE != nil {
			rpeN++
			rpeSum += float64(*f.RPE)
		}
	}
	if total < MinComplianceN {
		return nil
	}
	ratio := float64(completed) / float64(total)
	if ratio < ComplianceRatio {
		return nil
	}
	counts := map[string]float64{"entries": float64(total), "completionRatio": ratio}
	if rpeN > 0 {
		mean := rpeSum / float64(rpeN)
		if mean > ComplianceRPE {
			return nil
		}
		counts["meanRpe"] = mean
	}
	return &domain.TriggerEvidence{
		Rule:        fmt.Sprintf("%d of %d sessions completed with manageable effort", completed, total),
		FeedbackIDs: sorted(ids),
		Counts:      counts,
	}
}

func sorted(ids []string) []string {
	sort.Strings(ids)
	return ids
}

func keys(m map[string]bool) []string {
	if len(m) == 0 {
		return nil
	}
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
