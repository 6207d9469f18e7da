package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"alcyxob/coaching-platform/internal/domain"
	"alcyxob/coaching-platform/internal/repository"
)

type draftRepo struct {
	db *DB
}

func (r *draftRepo) Create(ctx context.Context, d *domain.DraftPlan) error {
	if d.ID == "" || d.CoachID == "" || d.AthleteID == "" {
		return errors.New("draft requires id, coachId and athleteId")
	}
	_, err := r.db.q(ctx).ExecContext(ctx,
		`INSERT INTO drafts(id, athlete_id, coach_id, name, start_date, week_start, snapshot_json, publish_state, published_at, created_at, updated_at)
		 VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.AthleteID, d.CoachID, d.Name,
		formatTime(d.Setup.StartDate), string(d.Setup.WeekStart),
		d.SnapshotJSON, string(d.PublishState), formatNullTime(d.PublishedAt),
		formatTime(d.CreatedAt), formatTime(d.UpdatedAt),
	)
	return mapErr(err)
}

func (r *draftRepo) GetByID(ctx context.Context, id string) (*domain.DraftPlan, error) {
	var (
		d                                  domain.DraftPlan
		startDate, weekStart, publishState string
		createdAt, updatedAt               string
		publishedAt                        sql.NullString
	)
	err := r.db.q(ctx).QueryRowContext(ctx,
		`SELECT id, athlete_id, coach_id, name, start_date, week_start, snapshot_json, publish_state, published_at, created_at, updated_at
		 FROM drafts WHERE id = ?`, id,
	).Scan(&d.ID, &d.AthleteID, &d.CoachID, &d.Name, &startDate, &weekStart, &d.SnapshotJSON, &publishState, &publishedAt, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, mapErr(err)
	}
	d.Setup.WeekStart = domain.WeekStart(weekStart)
	d.PublishState = domain.PublishState(publishState)
	if d.Setup.StartDate, err = parseTime(startDate); err != nil {
		return nil, fmt.Errorf("draft %s start_date: %w", id, err)
	}
	if d.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if d.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	if d.PublishedAt, err = parseNullTime(publishedAt); err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *draftRepo) UpdateSnapshot(ctx context.Context, id, snapshotJSON string, updatedAt time.Time) error {
	res, err := r.db.q(ctx).ExecContext(ctx,
		`UPDATE drafts SET snapshot_json = ?, updated_at = ? WHERE id = ?`,
		snapshotJSON, formatTime(updatedAt), id,
	)
	if err != nil {
		return mapErr(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return repository.ErrNotFound
	}
	return nil
}
