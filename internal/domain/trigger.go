package domain

import (
	"encoding/json"
	"time"
)

// TriggerType names an adaptation signal.
type TriggerType string

const (
	TriggerSoreness       TriggerType = "SORENESS"
	TriggerTooHard        TriggerType = "TOO_HARD"
	TriggerMissedKey      TriggerType = "MISSED_KEY"
	TriggerHighCompliance TriggerType = "HIGH_COMPLIANCE"
)

// IsProtective reports whether the trigger puts rewriting into protective mode.
func (t TriggerType) IsProtective() bool {
	switch t {
	case TriggerSoreness, TriggerTooHard, TriggerMissedKey:
		return true
	}
	return false
}

// TriggerEvidence explains why a rule fired.
type TriggerEvidence struct {
	Rule        string             `json:"rule"`
	FeedbackIDs []string           `json:"feedbackIds,omitempty"`
	ActivityIDs []string           `json:"activityIds,omitempty"`
	SessionIDs  []string           `json:"sessionIds,omitempty"`
	Counts      map[string]float64 `json:"counts,omitempty"`
}

// AdaptationTrigger is immutable once stored and unique per
// (DraftID, TriggerType, WindowStart, WindowEnd).
type AdaptationTrigger struct {
	ID          string          `bson:"_id" json:"id"`
	DraftID     string          `bson:"draftId" json:"draftId"`
	AthleteID   string          `bson:"athleteId" json:"athleteId"`
	TriggerType TriggerType     `bson:"triggerType" json:"triggerType"`
	WindowStart time.Time       `bson:"windowStart" json:"windowStart"`
	WindowEnd   time.Time       `bson:"windowEnd" json:"windowEnd"`
	Evidence    TriggerEvidence `bson:"evidence" json:"-"`
	CreatedAt   time.Time       `bson:"createdAt" json:"createdAt"`
}

// EvidenceJSON renders the evidence payload for storage and API responses.
func (t *AdaptationTrigger) EvidenceJSON() string {
	b, err := json.Marshal(t.Evidence)
	if err != nil {
		return "{}"
	}
	return string(b)
}

// TriggerTypes extracts the distinct types of a trigger list, in input order.
func TriggerTypes(triggers []AdaptationTrigger) []TriggerType {
	seen := make(map[TriggerType]bool, len(triggers))
	var out []TriggerType
	for _, t := range triggers {
		if !seen[t.TriggerType] {
			seen[t.TriggerType] = true
			out = append(out, t.TriggerType)
		}
	}
	return out
}
