package sqlite

import (
	"context"
	"database/sql"
	"time"

	"alcyxob/coaching-platform/internal/domain"
)

type planRepo struct {
	db *DB
}

func (r *planRepo) ListWeeks(ctx context.Context, draftID string) ([]domain.Week, error) {
	rows, err := r.db.q(ctx).QueryContext(ctx,
		`SELECT id, draft_id, week_index, locked, sessions_count, total_minutes, updated_at
		 FROM weeks WHERE draft_id = ? ORDER BY week_index`, draftID)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	weeks := []domain.Week{}
	for rows.Next() {
		var (
			w         domain.Week
			locked    int
			updatedAt string
		)
		if err := rows.Scan(&w.ID, &w.DraftID, &w.WeekIndex, &locked, &w.SessionsCount, &w.TotalMinutes, &updatedAt); err != nil {
			return nil, err
		}
		w.Locked = locked != 0
		if w.UpdatedAt, err = parseTime(updatedAt); err != nil {
			return nil, err
		}
		weeks = append(weeks, w)
	}
	return weeks, rows.Err()
}

func (r *planRepo) ListSessions(ctx context.Context, draftID string) ([]domain.Session, error) {
	rows, err := r.db.q(ctx).QueryContext(ctx,
		`SELECT id, draft_id, week_index, ordinal, day_of_week, discipline, type, duration_minutes, notes, locked, updated_at
		 FROM sessions WHERE draft_id = ? ORDER BY week_index, ordinal`, draftID)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	sessions := []domain.Session{}
	for rows.Next() {
		var (
			s         domain.Session
			day       int
			notes     sql.NullString
			locked    int
			updatedAt string
		)
		if err := rows.Scan(&s.ID, &s.DraftID, &s.WeekIndex, &s.Ordinal, &day, &s.Discipline, &s.Type, &s.DurationMinutes, &notes, &locked, &updatedAt); err != nil {
			return nil, err
		}
		s.DayOfWeek = time.Weekday(day)
		s.Notes = stringPtr(notes)
		s.Locked = locked != 0
		if s.UpdatedAt, err = parseTime(updatedAt); err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

func (r *planRepo) UpsertWeeks(ctx context.Context, weeks []domain.Week) error {
	for _, w := range weeks {
		_, err := r.db.q(ctx).ExecContext(ctx,
			`INSERT INTO weeks(id, draft_id, week_index, locked, sessions_count, total_minutes, updated_at)
			 VALUES(?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT(id) DO UPDATE SET
				locked = excluded.locked,
				sessions_count = excluded.sessions_count,
				total_minutes = excluded.total_minutes,
				updated_at = excluded.updated_at`,
			w.ID, w.DraftID, w.WeekIndex, boolInt(w.Locked), w.SessionsCount, w.TotalMinutes, formatTime(w.UpdatedAt),
		)
		if err != nil {
			return mapErr(err)
		}
	}
	return nil
}

func (r *planRepo) UpsertSessions(ctx context.Context, sessions []domain.Session) error {
	for _, s := range sessions {
		_, err := r.db.q(ctx).ExecContext(ctx,
			`INSERT INTO sessions(id, draft_id, week_index, ordinal, day_of_week, discipline, type, duration_minutes, notes, locked, updated_at)
			 VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT(id) DO UPDATE SET
				week_index = excluded.week_index,
				ordinal = excluded.ordinal,
				day_of_week = excluded.day_of_week,
				discipline = excluded.discipline,
				type = excluded.type,
				duration_minutes = excluded.duration_minutes,
				notes = excluded.notes,
				locked = excluded.locked,
				updated_at = excluded.updated_at`,
			s.ID, s.DraftID, s.WeekIndex, s.Ordinal, int(s.DayOfWeek), s.Discipline, s.Type, s.DurationMinutes,
			nullString(s.Notes), boolInt(s.Locked), formatTime(s.UpdatedAt),
		)
		if err != nil {
			return mapErr(err)
		}
	}
	return nil
}

func (r *planRepo) DeleteSessions(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	_, err := r.db.q(ctx).ExecContext(ctx, `DELETE FROM sessions WHERE id IN (`+placeholders(len(ids))+`)`, args...)
	return mapErr(err)
}
