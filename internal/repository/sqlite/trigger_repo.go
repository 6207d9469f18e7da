package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"alcyxob/coaching-platform/internal/domain"
	"alcyxob/coaching-platform/internal/repository"
)

type triggerRepo struct {
	db *DB
}

const triggerColumns = `id, draft_id, athlete_id, trigger_type, window_start, window_end, evidence_json, created_at`

func (r *triggerRepo) CreateIfAbsent(ctx context.Context, t *domain.AdaptationTrigger) (bool, error) {
	res, err := r.db.q(ctx).ExecContext(ctx,
		`INSERT INTO triggers(`+triggerColumns+`)
		 VALUES(?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(draft_id, trigger_type, window_start, window_end) DO NOTHING`,
		t.ID, t.DraftID, t.AthleteID, string(t.TriggerType),
		formatTime(t.WindowStart), formatTime(t.WindowEnd), t.EvidenceJSON(), formatTime(t.CreatedAt),
	)
	if err != nil {
		return false, mapErr(err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return true, nil
	}

	existing, err := scanTriggers(r.db.q(ctx).QueryContext(ctx,
		`SELECT `+triggerColumns+` FROM triggers
		 WHERE draft_id = ? AND trigger_type = ? AND window_start = ? AND window_end = ?`,
		t.DraftID, string(t.TriggerType), formatTime(t.WindowStart), formatTime(t.WindowEnd)))
	if err != nil {
		return false, err
	}
	if len(existing) == 0 {
		return false, repository.ErrNotFound
	}
	*t = existing[0]
	return false, nil
}

func (r *triggerRepo) GetByIDs(ctx context.Context, draftID string, ids []string) ([]domain.AdaptationTrigger, error) {
	if len(ids) == 0 {
		return []domain.AdaptationTrigger{}, nil
	}
	args := []any{draftID}
	for _, id := range ids {
		args = append(args, id)
	}
	return scanTriggers(r.db.q(ctx).QueryContext(ctx,
		`SELECT `+triggerColumns+` FROM triggers
		 WHERE draft_id = ? AND id IN (`+placeholders(len(ids))+`)
		 ORDER BY created_at, trigger_type`, args...))
}

func (r *triggerRepo) ListLatestWindow(ctx context.Context, draftID string) ([]domain.AdaptationTrigger, error) {
	var start, end string
	err := r.db.q(ctx).QueryRowContext(ctx,
		`SELECT window_start, window_end FROM triggers WHERE draft_id = ?
		 ORDER BY window_end DESC, created_at DESC LIMIT 1`, draftID,
	).Scan(&start, &end)
	if errors.Is(err, sql.ErrNoRows) {
		return []domain.AdaptationTrigger{}, nil
	}
	if err != nil {
		return nil, mapErr(err)
	}
	return scanTriggers(r.db.q(ctx).QueryContext(ctx,
		`SELECT `+triggerColumns+` FROM triggers
		 WHERE draft_id = ? AND window_start = ? AND window_end = ?
		 ORDER BY created_at, trigger_type`, draftID, start, end))
}

func scanTriggers(rows *sql.Rows, err error) ([]domain.AdaptationTrigger, error) {
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	out := []domain.AdaptationTrigger{}
	for rows.Next() {
		var (
			t                             domain.AdaptationTrigger
			triggerType, evidence         string
			windowStart, windowEnd, added string
		)
		if err := rows.Scan(&t.ID, &t.DraftID, &t.AthleteID, &triggerType, &windowStart, &windowEnd, &evidence, &added); err != nil {
			return nil, err
		}
		t.TriggerType = domain.TriggerType(triggerType)
		if err := json.Unmarshal([]byte(evidence), &t.Evidence); err != nil {
			return nil, err
		}
		if t.WindowStart, err = parseTime(windowStart); err != nil {
			return nil, err
		}
		if t.WindowEnd, err = parseTime(windowEnd); err != nil {
			return nil, err
		}
		if t.CreatedAt, err = parseTime(added); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
