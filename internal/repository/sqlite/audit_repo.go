package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"alcyxob/coaching-platform/internal/domain"
	"alcyxob/coaching-platform/internal/repository"
)

type auditRepo struct {
	db *DB
}

const auditColumns = `id, draft_id, proposal_id, coach_id, event_type, diff_json, checkpoint_id, metadata_json, created_at`

func (r *auditRepo) Create(ctx context.Context, a *domain.PlanChangeAudit) error {
	meta := a.Metadata
	if meta == nil {
		meta = map[string]string{}
	}
	metaJSON, err := marshalJSON(meta)
	if err != nil {
		return fmt.Errorf("encode audit metadata: %w", err)
	}
	var checkpoint sql.NullString
	if a.CheckpointID != "" {
		checkpoint = sql.NullString{String: a.CheckpointID, Valid: true}
	}
	_, err = r.db.q(ctx).ExecContext(ctx,
		`INSERT INTO audits(`+auditColumns+`) VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.DraftID, a.ProposalID, a.CoachID, string(a.EventType), a.DiffJSON, checkpoint, metaJSON, formatTime(a.CreatedAt),
	)
	return mapErr(err)
}

func (r *auditRepo) ListByDraft(ctx context.Context, draftID string) ([]domain.PlanChangeAudit, error) {
	return scanAudits(r.db.q(ctx).QueryContext(ctx,
		`SELECT `+auditColumns+` FROM audits WHERE draft_id = ? ORDER BY created_at, id`, draftID))
}

func (r *auditRepo) LatestForProposal(ctx context.Context, proposalID string, eventType domain.AuditEventType) (*domain.PlanChangeAudit, error) {
	out, err := scanAudits(r.db.q(ctx).QueryContext(ctx,
		`SELECT `+auditColumns+` FROM audits WHERE proposal_id = ? AND event_type = ?
		 ORDER BY created_at DESC, id DESC LIMIT 1`, proposalID, string(eventType)))
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, repository.ErrNotFound
	}
	return &out[0], nil
}

func (r *auditRepo) SaveCheckpoint(ctx context.Context, b *domain.BeforeState) error {
	sessions, err := marshalJSON(b.Sessions)
	if err != nil {
		return fmt.Errorf("encode checkpoint: %w", err)
	}
	_, err = r.db.q(ctx).ExecContext(ctx,
		`INSERT INTO before_states(id, draft_id, proposal_id, sessions_json, created_at) VALUES(?, ?, ?, ?, ?)`,
		b.ID, b.DraftID, b.ProposalID, sessions, formatTime(b.CreatedAt),
	)
	return mapErr(err)
}

func (r *auditRepo) GetCheckpoint(ctx context.Context, id string) (*domain.BeforeState, error) {
	var (
		b                   domain.BeforeState
		sessions, createdAt string
	)
	err := r.db.q(ctx).QueryRowContext(ctx,
		`SELECT id, draft_id, proposal_id, sessions_json, created_at FROM before_states WHERE id = ?`, id,
	).Scan(&b.ID, &b.DraftID, &b.ProposalID, &sessions, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, mapErr(err)
	}
	if err := json.Unmarshal([]byte(sessions), &b.Sessions); err != nil {
		return nil, err
	}
	if b.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return &b, nil
}

func scanAudits(rows *sql.Rows, err error) ([]domain.PlanChangeAudit, error) {
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	out := []domain.PlanChangeAudit{}
	for rows.Next() {
		var (
			a               domain.PlanChangeAudit
			eventType, meta string
			checkpoint      sql.NullString
			createdAt       string
		)
		if err := rows.Scan(&a.ID, &a.DraftID, &a.ProposalID, &a.CoachID, &eventType, &a.DiffJSON, &checkpoint, &meta, &createdAt); err != nil {
			return nil, err
		}
		a.EventType = domain.AuditEventType(eventType)
		a.CheckpointID = checkpoint.String
		if err := json.Unmarshal([]byte(meta), &a.Metadata); err != nil {
			return nil, err
		}
		if len(a.Metadata) == 0 {
			a.Metadata = nil
		}
		if a.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
