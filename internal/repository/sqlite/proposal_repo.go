package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"alcyxob/coaching-platform/internal/domain"
	"alcyxob/coaching-platform/internal/repository"
)

type proposalRepo struct {
	db *DB
}

const proposalColumns = `id, draft_id, athlete_id, coach_id, status, diff_json, rationale_text, respects_locks,
	trigger_ids_json, baseline_json, metadata_json, created_at, updated_at, approved_at, applied_at, rejected_at`

// proposalRow holds the encoded columns of a proposal.
type proposalRow struct {
	triggerIDs, baseline, metadata string
}

func encodeProposal(p *domain.Proposal) (proposalRow, error) {
	var row proposalRow
	var err error
	ids := p.TriggerIDs
	if ids == nil {
		ids = []string{}
	}
	if row.triggerIDs, err = marshalJSON(ids); err != nil {
		return row, err
	}
	baseline := p.BaselineSessions
	if baseline == nil {
		baseline = map[string]string{}
	}
	if row.baseline, err = marshalJSON(baseline); err != nil {
		return row, err
	}
	if row.metadata, err = marshalJSON(p.Metadata); err != nil {
		return row, err
	}
	return row, nil
}

func (r *proposalRepo) Create(ctx context.Context, p *domain.Proposal) error {
	row, err := encodeProposal(p)
	if err != nil {
		return fmt.Errorf("encode proposal %s: %w", p.ID, err)
	}
	_, err = r.db.q(ctx).ExecContext(ctx,
		`INSERT INTO proposals(`+proposalColumns+`)
		 VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.DraftID, p.AthleteID, p.CoachID, string(p.Status), p.DiffJSON, p.RationaleText, boolInt(p.RespectsLocks),
		row.triggerIDs, row.baseline, row.metadata,
		formatTime(p.CreatedAt), formatTime(p.UpdatedAt),
		formatNullTime(p.ApprovedAt), formatNullTime(p.AppliedAt), formatNullTime(p.RejectedAt),
	)
	return mapErr(err)
}

func (r *proposalRepo) GetByID(ctx context.Context, id string) (*domain.Proposal, error) {
	out, err := scanProposals(r.db.q(ctx).QueryContext(ctx, `SELECT `+proposalColumns+` FROM proposals WHERE id = ?`, id))
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, repository.ErrNotFound
	}
	return &out[0], nil
}

func (r *proposalRepo) Update(ctx context.Context, p *domain.Proposal) error {
	row, err := encodeProposal(p)
	if err != nil {
		return fmt.Errorf("encode proposal %s: %w", p.ID, err)
	}
	res, err := r.db.q(ctx).ExecContext(ctx,
		`UPDATE proposals SET status = ?, diff_json = ?, rationale_text = ?, respects_locks = ?,
			trigger_ids_json = ?, baseline_json = ?, metadata_json = ?, updated_at = ?,
			approved_at = ?, applied_at = ?, rejected_at = ?
		 WHERE id = ?`,
		string(p.Status), p.DiffJSON, p.RationaleText, boolInt(p.RespectsLocks),
		row.triggerIDs, row.baseline, row.metadata, formatTime(p.UpdatedAt),
		formatNullTime(p.ApprovedAt), formatNullTime(p.AppliedAt), formatNullTime(p.RejectedAt),
		p.ID,
	)
	if err != nil {
		return mapErr(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *proposalRepo) ListByDraft(ctx context.Context, draftID string, filter repository.ProposalFilter) ([]domain.Proposal, error) {
	where := []string{"draft_id = ?"}
	args := []any{draftID}
	if len(filter.Statuses) > 0 {
		where = append(where, "status IN ("+placeholders(len(filter.Statuses))+")")
		for _, s := range filter.Statuses {
			args = append(args, string(s))
		}
	}
	if len(filter.IDs) > 0 {
		where = append(where, "id IN ("+placeholders(len(filter.IDs))+")")
		for _, id := range filter.IDs {
			args = append(args, id)
		}
	}
	if !filter.CreatedAfter.IsZero() {
		where = append(where, "created_at >= ?")
		args = append(args, formatTime(filter.CreatedAfter))
	}
	if filter.RespectsLocks != nil {
		where = append(where, "respects_locks = ?")
		args = append(args, boolInt(*filter.RespectsLocks))
	}
	return scanProposals(r.db.q(ctx).QueryContext(ctx,
		`SELECT `+proposalColumns+` FROM proposals WHERE `+strings.Join(where, " AND ")+` ORDER BY created_at, id`,
		args...))
}

func scanProposals(rows *sql.Rows, err error) ([]domain.Proposal, error) {
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	out := []domain.Proposal{}
	for rows.Next() {
		var (
			p                                 domain.Proposal
			status                            string
			respects                          int
			triggerIDs, baseline, metadata    string
			createdAt, updatedAt              string
			approvedAt, appliedAt, rejectedAt sql.NullString
		)
		if err := rows.Scan(&p.ID, &p.DraftID, &p.AthleteID, &p.CoachID, &status, &p.DiffJSON, &p.RationaleText, &respects,
			&triggerIDs, &baseline, &metadata, &createdAt, &updatedAt, &approvedAt, &appliedAt, &rejectedAt); err != nil {
			return nil, err
		}
		p.Status = domain.ProposalStatus(status)
		p.RespectsLocks = respects != 0
		if err := json.Unmarshal([]byte(triggerIDs), &p.TriggerIDs); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(baseline), &p.BaselineSessions); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(metadata), &p.Metadata); err != nil {
			return nil, err
		}
		if p.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		if p.UpdatedAt, err = parseTime(updatedAt); err != nil {
			return nil, err
		}
		if p.ApprovedAt, err = parseNullTime(approvedAt); err != nil {
			return nil, err
		}
		if p.AppliedAt, err = parseNullTime(appliedAt); err != nil {
			return nil, err
		}
		if p.RejectedAt, err = parseNullTime(rejectedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
