package sqlite

import (
	"context"
	"database/sql"
	"time"

	"alcyxob/coaching-platform/internal/domain"
)

type signalRepo struct {
	db *DB
}

func (r *signalRepo) AddFeedback(ctx context.Context, f *domain.Feedback) error {
	_, err := r.db.q(ctx).ExecContext(ctx,
		`INSERT INTO feedback(id, athlete_id, draft_id, session_id, status, feel, rpe, soreness, sleep_quality, created_at)
		 VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.ID, f.AthleteID, f.DraftID, nullString(f.SessionID), string(f.Status), string(f.Feel),
		nullInt(f.RPE), boolInt(f.Soreness), nullInt(f.SleepQuality), formatTime(f.CreatedAt),
	)
	return mapErr(err)
}

func (r *signalRepo) AddActivity(ctx context.Context, a *domain.CompletedActivity) error {
	_, err := r.db.q(ctx).ExecContext(ctx,
		`INSERT INTO activities(id, athlete_id, discipline, start_time, duration_minutes, rpe, pain_flag, source)
		 VALUES(?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.AthleteID, a.Discipline, formatTime(a.StartTime), a.DurationMinutes,
		nullInt(a.RPE), boolInt(a.PainFlag), a.Source,
	)
	return mapErr(err)
}

func (r *signalRepo) ListFeedback(ctx context.Context, athleteID string, from, to time.Time) ([]domain.Feedback, error) {
	rows, err := r.db.q(ctx).QueryContext(ctx,
		`SELECT id, athlete_id, draft_id, session_id, status, feel, rpe, soreness, sleep_quality, created_at
		 FROM feedback WHERE athlete_id = ? AND created_at >= ? AND created_at <= ?
		 ORDER BY created_at`,
		athleteID, formatTime(from), formatTime(to))
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	out := []domain.Feedback{}
	for rows.Next() {
		var (
			f                 domain.Feedback
			sessionID         sql.NullString
			status, feel      string
			rpe, sleepQuality sql.NullInt64
			soreness          int
			createdAt         string
		)
		if err := rows.Scan(&f.ID, &f.AthleteID, &f.DraftID, &sessionID, &status, &feel, &rpe, &soreness, &sleepQuality, &createdAt); err != nil {
			return nil, err
		}
		f.SessionID = stringPtr(sessionID)
		f.Status = domain.FeedbackStatus(status)
		f.Feel = domain.Feel(feel)
		f.RPE = intPtr(rpe)
		f.Soreness = soreness != 0
		f.SleepQuality = intPtr(sleepQuality)
		if f.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (r *signalRepo) ListActivities(ctx context.Context, athleteID string, from, to time.Time) ([]domain.CompletedActivity, error) {
	rows, err := r.db.q(ctx).QueryContext(ctx,
		`SELECT id, athlete_id, discipline, start_time, duration_minutes, rpe, pain_flag, source
		 FROM activities WHERE athlete_id = ? AND start_time >= ? AND start_time <= ?
		 ORDER BY start_time`,
		athleteID, formatTime(from), formatTime(to))
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	out := []domain.CompletedActivity{}
	for rows.Next() {
		var (
			a         domain.CompletedActivity
			startTime string
			rpe       sql.NullInt64
			pain      int
		)
		if err := rows.Scan(&a.ID, &a.AthleteID, &a.Discipline, &startTime, &a.DurationMinutes, &rpe, &pain, &a.Source); err != nil {
			return nil, err
		}
		a.RPE = intPtr(rpe)
		a.PainFlag = pain != 0
		if a.StartTime, err = parseTime(startTime); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
