package domain

import (
	"strings"
	"time"
)

// Session duration bounds enforced by the diff schema.
const (
	MinSessionDuration = 0
	MaxSessionDuration = 10000
)

// Session is a single prescribed workout within a Week. ID is stable for the
// life of the draft; (WeekIndex, Ordinal) is the addressing key used in previews.
type Session struct {
	ID              string       `bson:"_id" json:"id"`
	DraftID         string       `bson:"draftId" json:"draftId"`
	WeekIndex       int          `bson:"weekIndex" json:"weekIndex"`
	Ordinal         int          `bson:"ordinal" json:"ordinal"`
	DayOfWeek       time.Weekday `bson:"dayOfWeek" json:"dayOfWeek"`
	Discipline      string       `bson:"discipline" json:"discipline"`
	Type            string       `bson:"type" json:"type"`
	DurationMinutes int          `bson:"durationMinutes" json:"durationMinutes"`
	Notes           *string      `bson:"notes,omitempty" json:"notes,omitempty"`
	Locked          bool         `bson:"locked" json:"locked"`
	UpdatedAt       time.Time    `bson:"updatedAt" json:"updatedAt"`
}

// IsIntensityType reports whether a session type is one of the recognised
// intensity types (tempo, threshold). Matching is case-insensitive.
func IsIntensityType(sessionType string) bool {
	switch strings.ToLower(strings.TrimSpace(sessionType)) {
	case "tempo", "threshold":
		return true
	}
	return false
}

// NotesText returns the notes or "" when unset.
func (s *Session) NotesText() string {
	if s.Notes == nil {
		return ""
	}
	return *s.Notes
}

// IsKey reports whether the session counts as a key session for missed-session
// detection: intensity typed, at least 90 minutes, or a long session by notes.
func (s *Session) IsKey() bool {
	if IsIntensityType(s.Type) || s.DurationMinutes >= 90 {
		return true
	}
	return strings.Contains(strings.ToLower(s.NotesText()), "long")
}
