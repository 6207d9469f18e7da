package domain

import "time"

// FeedbackStatus is the athlete's completion report for a planned session.
type FeedbackStatus string

const (
	FeedbackDone    FeedbackStatus = "DONE"
	FeedbackPartial FeedbackStatus = "PARTIAL"
	FeedbackSkipped FeedbackStatus = "SKIPPED"
)

// Feel is the athlete's subjective difficulty rating.
type Feel string

const (
	FeelEasy    Feel = "EASY"
	FeelOK      Feel = "OK"
	FeelHard    Feel = "HARD"
	FeelTooHard Feel = "TOO_HARD"
)

// Feedback is a post-session report submitted by the athlete. Read-only input
// for trigger detection.
type Feedback struct {
	ID           string         `bson:"_id" json:"id"`
	AthleteID    string         `bson:"athleteId" json:"athleteId"`
	DraftID      string         `bson:"draftId" json:"draftId"`
	SessionID    *string        `bson:"sessionId,omitempty" json:"sessionId,omitempty"`
	Status       FeedbackStatus `bson:"status" json:"status"`
	Feel         Feel           `bson:"feel,omitempty" json:"feel,omitempty"`
	RPE          *int           `bson:"rpe,omitempty" json:"rpe,omitempty"`
	Soreness     bool           `bson:"soreness" json:"soreness"`
	SleepQuality *int           `bson:"sleepQuality,omitempty" json:"sleepQuality,omitempty"` // 1-5
	CreatedAt    time.Time      `bson:"createdAt" json:"createdAt"`
}

// CompletedActivity is a recorded workout, typically synced from a device.
type CompletedActivity struct {
	ID              string    `bson:"_id" json:"id"`
	AthleteID       string    `bson:"athleteId" json:"athleteId"`
	Discipline      string    `bson:"discipline" json:"discipline"`
	StartTime       time.Time `bson:"startTime" json:"startTime"`
	DurationMinutes int       `bson:"durationMinutes" json:"durationMinutes"`
	RPE             *int      `bson:"rpe,omitempty" json:"rpe,omitempty"`
	PainFlag        bool      `bson:"painFlag" json:"painFlag"`
	Source          string    `bson:"source,omitempty" json:"source,omitempty"`
}
