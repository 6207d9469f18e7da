package plandiff

import (
	"encoding/json"
	"fmt"
	"time"

	"alcyxob/coaching-platform/internal/domain"
)

// Snapshot is the canonical, denormalized JSON view of a draft that reads,
// previews and archives are served from.
type Snapshot struct {
	DraftID string           `json:"draftId"`
	Setup   domain.PlanSetup `json:"setup"`
	Weeks   []SnapshotWeek   `json:"weeks"`
}

type SnapshotWeek struct {
	WeekIndex     int               `json:"weekIndex"`
	Locked        bool              `json:"locked"`
	SessionsCount int               `json:"sessionsCount"`
	TotalMinutes  int               `json:"totalMinutes"`
	Sessions      []SnapshotSession `json:"sessions"`
}

type SnapshotSession struct {
	ID              string       `json:"id"`
	Ordinal         int          `json:"ordinal"`
	DayOfWeek       time.Weekday `json:"dayOfWeek"`
	Discipline      string       `json:"discipline"`
	Type            string       `json:"type"`
	DurationMinutes int          `json:"durationMinutes"`
	Notes           *string      `json:"notes"`
	Locked          bool         `json:"locked"`
}

// BuildSnapshot renders the state in canonical order. Week caches are taken
// as-is, so callers recompute first.
func BuildSnapshot(draft *domain.DraftPlan, s *PlanState) Snapshot {
	snap := Snapshot{DraftID: draft.ID, Setup: draft.Setup, Weeks: make([]SnapshotWeek, 0, len(s.Weeks))}
	for _, w := range s.Weeks {
		sw := SnapshotWeek{
			WeekIndex:     w.WeekIndex,
			Locked:        w.Locked,
			SessionsCount: w.SessionsCount,
			TotalMinutes:  w.TotalMinutes,
			Sessions:      []SnapshotSession{},
		}
		for _, sess := range s.SessionsInWeek(w.WeekIndex) {
			sw.Sessions = append(sw.Sessions, SnapshotSession{
				ID:              sess.ID,
				Ordinal:         sess.Ordinal,
				DayOfWeek:       sess.DayOfWeek,
				Discipline:      sess.Discipline,
				Type:            sess.Type,
				DurationMinutes: sess.DurationMinutes,
				Notes:           cloneString(sess.Notes),
				Locked:          sess.Locked,
			})
		}
		snap.Weeks = append(snap.Weeks, sw)
	}
	return snap
}

// EncodeSnapshot builds and serializes the snapshot.
func EncodeSnapshot(draft *domain.DraftPlan, s *PlanState) (string, error) {
	b, err := json.Marshal(BuildSnapshot(draft, s))
	if err != nil {
		return "", fmt.Errorf("encode snapshot: %w", err)
	}
	return string(b), nil
}

// DecodeSnapshot parses a stored snapshot.
func DecodeSnapshot(raw string) (Snapshot, error) {
	var snap Snapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		return Snapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	return snap, nil
}

// State rebuilds a PlanState from the snapshot.
func (snap Snapshot) State() *PlanState {
	var weeks []domain.Week
	var sessions []domain.Session
	for _, w := range snap.Weeks {
		weeks = append(weeks, domain.Week{
			DraftID:       snap.DraftID,
			WeekIndex:     w.WeekIndex,
			Locked:        w.Locked,
			SessionsCount: w.SessionsCount,
			TotalMinutes:  w.TotalMinutes,
		})
		for _, s := range w.Sessions {
			sessions = append(sessions, domain.Session{
				ID:              s.ID,
				DraftID:         snap.DraftID,
				WeekIndex:       w.WeekIndex,
				Ordinal:         s.Ordinal,
				DayOfWeek:       s.DayOfWeek,
				Discipline:      s.Discipline,
				Type:            s.Type,
				DurationMinutes: s.DurationMinutes,
				Notes:           s.Notes,
				Locked:          s.Locked,
			})
		}
	}
	return NewPlanState(weeks, sessions)
}
