package trigger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alcyxob/coaching-platform/internal/domain"
)

var now = time.Date(2026, 3, 18, 9, 30, 42, 0, time.UTC)

func daysAgo(d int) time.Time { return now.AddDate(0, 0, -d) }

func intp(v int) *int { return &v }

func strp(v string) *string { return &v }

func types(triggers []domain.AdaptationTrigger) []domain.TriggerType {
	return domain.TriggerTypes(triggers)
}

func baseInput() Input {
	return Input{
		DraftID:   "draft-1",
		AthleteID: "ath-1",
		Window:    NewWindow(now, DefaultLookbackDays),
		Sessions: map[string]domain.Session{
			"tempo": {ID: "tempo", Type: "Tempo", DurationMinutes: 45},
			"long":  {ID: "long", Type: "Endurance", DurationMinutes: 120},
			"easy":  {ID: "easy", Type: "Endurance", DurationMinutes: 40},
			"notes": {ID: "notes", Type: "Endurance", DurationMinutes: 60, Notes: strp("Long run, keep it steady")},
		},
	}
}

func TestWindowIsFlooredToMinute(t *testing.T) {
	w := NewWindow(now, 14)
	assert.Equal(t, time.Date(2026, 3, 18, 9, 30, 0, 0, time.UTC), w.End)
	assert.Equal(t, time.Date(2026, 3, 4, 9, 30, 0, 0, time.UTC), w.Start)
	assert.Equal(t, w, NewWindow(now.Add(15*time.Second), 14))
}

func TestClampLookback(t *testing.T) {
	assert.Equal(t, 14, ClampLookback(0, 14))
	assert.Equal(t, 10, ClampLookback(3, 14))
	assert.Equal(t, 60, ClampLookback(365, 14))
	assert.Equal(t, 21, ClampLookback(21, 14))
	assert.Equal(t, DefaultLookbackDays, ClampLookback(0, 0))
}

func TestDetectRules(t *testing.T) {
	tests := []struct {
		name       string
		feedback   []domain.Feedback
		activities []domain.CompletedActivity
		want       []domain.TriggerType
	}{
		{
			name: "nothing",
			want: nil,
		},
		{
			name:     "soreness from feedback",
			feedback: []domain.Feedback{{ID: "f1", Status: domain.FeedbackDone, Soreness: true, CreatedAt: daysAgo(2)}},
			want:     []domain.TriggerType{domain.TriggerSoreness},
		},
		{
			name:     "soreness older than seven days is ignored",
			feedback: []domain.Feedback{{ID: "f1", Status: domain.FeedbackDone, Soreness: true, CreatedAt: daysAgo(9)}},
			want:     nil,
		},
		{
			name:       "pain flag on activity",
			activities: []domain.CompletedActivity{{ID: "a1", PainFlag: true, StartTime: daysAgo(1)}},
			want:       []domain.TriggerType{domain.TriggerSoreness},
		},
		{
			name: "two too-hard ratings",
			feedback: []domain.Feedback{
				{ID: "f1", Status: domain.FeedbackDone, Feel: domain.FeelTooHard, CreatedAt: daysAgo(3)},
				{ID: "f2", Status: domain.FeedbackDone, Feel: domain.FeelTooHard, CreatedAt: daysAgo(8)},
			},
			want: []domain.TriggerType{domain.TriggerTooHard},
		},
		{
			name: "high rpe across feedback and activities",
			feedback: []domain.Feedback{
				{ID: "f1", Status: domain.FeedbackDone, RPE: intp(8), CreatedAt: daysAgo(1)},
			},
			activities: []domain.CompletedActivity{
				{ID: "a1", RPE: intp(9), StartTime: daysAgo(2)},
				{ID: "a2", RPE: intp(8), StartTime: daysAgo(4)},
			},
			want: []domain.TriggerType{domain.TriggerTooHard},
		},
		{
			name: "compounded too-hard with poor sleep",
			feedback: []domain.Feedback{
				{ID: "f1", Status: domain.FeedbackDone, Feel: domain.FeelTooHard, CreatedAt: daysAgo(1)},
				{ID: "f2", Status: domain.FeedbackDone, SleepQuality: intp(2), CreatedAt: daysAgo(2)},
				{ID: "f3", Status: domain.FeedbackDone, SleepQuality: intp(1), CreatedAt: daysAgo(3)},
			},
			want: []domain.TriggerType{domain.TriggerTooHard},
		},
		{
			name: "single too-hard alone does not fire",
			feedback: []domain.Feedback{
				{ID: "f1", Status: domain.FeedbackDone, Feel: domain.FeelTooHard, CreatedAt: daysAgo(1)},
				{ID: "f2", Status: domain.FeedbackDone, SleepQuality: intp(4), CreatedAt: daysAgo(2)},
			},
			want: nil,
		},
		{
			name: "two key sessions skipped in a week",
			feedback: []domain.Feedback{
				{ID: "f1", SessionID: strp("tempo"), Status: domain.FeedbackSkipped, CreatedAt: daysAgo(2)},
				{ID: "f2", SessionID: strp("long"), Status: domain.FeedbackSkipped, CreatedAt: daysAgo(5)},
				{ID: "f3", SessionID: strp("easy"), Status: domain.FeedbackDone, CreatedAt: daysAgo(4)},
			},
			want: []domain.TriggerType{domain.TriggerMissedKey},
		},
		{
			name: "half of key opportunities skipped over the window",
			feedback: []domain.Feedback{
				{ID: "f1", SessionID: strp("tempo"), Status: domain.FeedbackSkipped, CreatedAt: daysAgo(10)},
				{ID: "f2", SessionID: strp("notes"), Status: domain.FeedbackSkipped, CreatedAt: daysAgo(3)},
				{ID: "f3", SessionID: strp("long"), Status: domain.FeedbackDone, CreatedAt: daysAgo(6)},
				{ID: "f4", SessionID: strp("tempo"), Status: domain.FeedbackDone, CreatedAt: daysAgo(12)},
			},
			want: []domain.TriggerType{domain.TriggerMissedKey},
		},
		{
			name: "skipped easy sessions are not key",
			feedback: []domain.Feedback{
				{ID: "f1", SessionID: strp("easy"), Status: domain.FeedbackSkipped, CreatedAt: daysAgo(1)},
				{ID: "f2", SessionID: strp("easy"), Status: domain.FeedbackSkipped, CreatedAt: daysAgo(2)},
			},
			want: nil,
		},
		{
			name: "high compliance",
			feedback: []domain.Feedback{
				{ID: "f1", Status: domain.FeedbackDone, RPE: intp(5), CreatedAt: daysAgo(1)},
				{ID: "f2", Status: domain.FeedbackDone, RPE: intp(6), CreatedAt: daysAgo(3)},
				{ID: "f3", Status: domain.FeedbackPartial, RPE: intp(7), CreatedAt: daysAgo(5)},
				{ID: "f4", Status: domain.FeedbackDone, CreatedAt: daysAgo(7)},
			},
			want: []domain.TriggerType{domain.TriggerHighCompliance},
		},
		{
			name: "high compliance without rpe data",
			feedback: []domain.Feedback{
				{ID: "f1", Status: domain.FeedbackDone, CreatedAt: daysAgo(1)},
				{ID: "f2", Status: domain.FeedbackDone, CreatedAt: daysAgo(2)},
				{ID: "f3", Status: domain.FeedbackDone, CreatedAt: daysAgo(3)},
				{ID: "f4", Status: domain.FeedbackDone, CreatedAt: daysAgo(4)},
			},
			want: []domain.TriggerType{domain.TriggerHighCompliance},
		},
		{
			name: "compliance suppressed by soreness",
			feedback: []domain.Feedback{
				{ID: "f1", Status: domain.FeedbackDone, Soreness: true, CreatedAt: daysAgo(1)},
				{ID: "f2", Status: domain.FeedbackDone, CreatedAt: daysAgo(2)},
				{ID: "f3", Status: domain.FeedbackDone, CreatedAt: daysAgo(3)},
				{ID: "f4", Status: domain.FeedbackDone, CreatedAt: daysAgo(4)},
			},
			want: []domain.TriggerType{domain.TriggerSoreness},
		},
		{
			name: "compliance needs low effort",
			feedback: []domain.Feedback{
				{ID: "f1", Status: domain.FeedbackDone, RPE: intp(7), CreatedAt: daysAgo(1)},
				{ID: "f2", Status: domain.FeedbackDone, RPE: intp(7), CreatedAt: daysAgo(2)},
				{ID: "f3", Status: domain.FeedbackDone, RPE: intp(7), CreatedAt: daysAgo(3)},
				{ID: "f4", Status: domain.FeedbackDone, RPE: intp(6), CreatedAt: daysAgo(4)},
			},
			want: nil,
		},
		{
			name: "multiple rules fire together",
			feedback: []domain.Feedback{
				{ID: "f1", SessionID: strp("tempo"), Status: domain.FeedbackSkipped, Soreness: true, CreatedAt: daysAgo(1)},
				{ID: "f2", SessionID: strp("long"), Status: domain.FeedbackSkipped, CreatedAt: daysAgo(2)},
			},
			want: []domain.TriggerType{domain.TriggerSoreness, domain.TriggerMissedKey},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := baseInput()
			in.Feedback = tt.feedback
			in.Activities = tt.activities
			assert.Equal(t, tt.want, types(Detect(in)))
		})
	}
}

func TestDetectEvidence(t *testing.T) {
	in := baseInput()
	in.Feedback = []domain.Feedback{
		{ID: "f2", SessionID: strp("long"), Status: domain.FeedbackSkipped, CreatedAt: daysAgo(2)},
		{ID: "f1", SessionID: strp("tempo"), Status: domain.FeedbackSkipped, CreatedAt: daysAgo(1)},
	}

	got := Detect(in)
	require.Len(t, got, 1)
	tr := got[0]
	assert.Equal(t, "draft-1", tr.DraftID)
	assert.Equal(t, in.Window.Start, tr.WindowStart)
	assert.Equal(t, in.Window.End, tr.WindowEnd)
	assert.Equal(t, []string{"f1", "f2"}, tr.Evidence.FeedbackIDs)
	assert.Equal(t, []string{"long", "tempo"}, tr.Evidence.SessionIDs)
	assert.Equal(t, 2.0, tr.Evidence.Counts["recentSkipped"])
	assert.Contains(t, tr.EvidenceJSON(), `"rule"`)
}

func TestDetectIsDeterministic(t *testing.T) {
	in := baseInput()
	in.Feedback = []domain.Feedback{
		{ID: "f1", Status: domain.FeedbackDone, Feel: domain.FeelTooHard, CreatedAt: daysAgo(3)},
		{ID: "f2", Status: domain.FeedbackDone, Feel: domain.FeelTooHard, RPE: intp(9), CreatedAt: daysAgo(4)},
	}
	assert.Equal(t, Detect(in), Detect(in))
}
