package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"alcyxob/coaching-platform/internal/domain"
	"alcyxob/coaching-platform/internal/plandiff"
	"alcyxob/coaching-platform/internal/repository"
	"alcyxob/coaching-platform/internal/safety"
)

// ApprovalResult is the outcome of a successful approval. ArchiveError
// reports a failed snapshot upload; the apply itself stands.
type ApprovalResult struct {
	Proposal       *domain.Proposal `json:"proposal"`
	AuditID        string           `json:"auditId"`
	AlreadyApplied bool             `json:"alreadyApplied,omitempty"`
	SnapshotKey    string           `json:"snapshotKey,omitempty"`
	SnapshotURL    string           `json:"snapshotUrl,omitempty"`
	ArchiveError   string           `json:"archiveError,omitempty"`
}

// BatchOptions narrows a batch approval. MaxHours > 0 limits it to proposals
// created within that many hours.
type BatchOptions struct {
	MaxHours    float64  `json:"maxHours,omitempty"`
	ProposalIDs []string `json:"proposalIds,omitempty"`
}

// BatchItem is the per-proposal outcome of a batch approval.
type BatchItem struct {
	ProposalID string                `json:"proposalId"`
	Status     domain.ProposalStatus `json:"status"`
	Applied    bool                  `json:"applied"`
	Code       domain.ErrorCode      `json:"code,omitempty"`
	Error      string                `json:"error,omitempty"`
}

type BatchResult struct {
	Results []BatchItem `json:"results"`
	Total   int         `json:"total"`
	Applied int         `json:"applied"`
	Failed  int         `json:"failed"`
}

// Approve re-checks a PROPOSED or APPROVED proposal against the live plan and
// applies it.
func (s *proposalService) Approve(ctx context.Context, coachID, proposalID string) (*ApprovalResult, error) {
	ctx, span := tracer.Start(ctx, "ProposalService.Approve", trace.WithAttributes(attribute.String("proposal.id", proposalID)))
	defer span.End()

	p, draft, err := ownedProposal(ctx, s.deps.Store, coachID, proposalID)
	if err != nil {
		return nil, err
	}
	res, err := s.approve(ctx, coachID, draft, p)
	s.deps.Metrics.Approval(outcome(err))
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return res, nil
}

// BatchApprove applies every lock-respecting PROPOSED proposal of the draft,
// oldest first, each in its own transaction. Failures are reported per item
// and do not stop the batch.
func (s *proposalService) BatchApprove(ctx context.Context, coachID, draftID string, opts BatchOptions) (*BatchResult, error) {
	ctx, span := tracer.Start(ctx, "ProposalService.BatchApprove", trace.WithAttributes(attribute.String("draft.id", draftID)))
	defer span.End()

	store := s.deps.Store
	draft, err := ownedDraft(ctx, store, coachID, draftID)
	if err != nil {
		return nil, err
	}
	respects := true
	filter := repository.ProposalFilter{
		Statuses:      []domain.ProposalStatus{domain.ProposalProposed},
		IDs:           opts.ProposalIDs,
		RespectsLocks: &respects,
	}
	if opts.MaxHours > 0 {
		filter.CreatedAfter = s.deps.Clock.Now().Add(-time.Duration(opts.MaxHours * float64(time.Hour)))
	}
	candidates, err := store.Proposals.ListByDraft(ctx, draft.ID, filter)
	if err != nil {
		return nil, err
	}

	result := &BatchResult{Results: make([]BatchItem, 0, len(candidates)), Total: len(candidates)}
	for i := range candidates {
		p := &candidates[i]
		item := BatchItem{ProposalID: p.ID}
		res, err := s.approve(ctx, coachID, draft, p)
		s.deps.Metrics.Approval(outcome(err))
		if err != nil {
			item.Status = p.Status
			item.Code = domain.CodeOf(err)
			item.Error = err.Error()
			result.Failed++
			s.deps.Logger.WarnContext(ctx, "batch approval item failed", "proposal_id", p.ID, "error", err)
		} else {
			item.Status = res.Proposal.Status
			item.Applied = true
			result.Applied++
		}
		result.Results = append(result.Results, item)
	}

	span.SetAttributes(attribute.Int("batch.total", result.Total), attribute.Int("batch.applied", result.Applied))
	s.deps.Logger.InfoContext(ctx, "batch approval finished",
		"draft_id", draft.ID, "total", result.Total, "applied", result.Applied, "failed", result.Failed)
	return result, nil
}

func (s *proposalService) approve(ctx context.Context, coachID string, draft *domain.DraftPlan, p *domain.Proposal) (*ApprovalResult, error) {
	if p.Status != domain.ProposalProposed && p.Status != domain.ProposalApproved {
		return nil, domain.Errorf(domain.CodeInvalidStatus, "cannot approve proposal %s in status %s", p.ID, p.Status)
	}
	d, err := plandiff.Decode(p.DiffJSON)
	if err != nil {
		return nil, err
	}

	// Judge against live state; the plan may have moved since generation.
	state, err := loadPlanState(ctx, s.deps.Store, draft.ID)
	if err != nil {
		return nil, err
	}
	now := s.deps.Clock.Now()
	sc, _, err := s.safetyContext(ctx, draft, state, p.TriggerIDs, p.Metadata.PolicyName, now)
	if err != nil {
		return nil, err
	}
	if err := s.withCheckpoint(ctx, &sc, p.Metadata.CheckpointID); err != nil {
		return nil, err
	}
	if hs := safety.Validate(sc, d); !hs.OK {
		return nil, domain.HardSafetyBlocked(hs.Reasons)
	}
	if err := plandiff.CheckRefs(state, d); err != nil {
		return nil, err
	}

	res, err := s.applyWithRetry(ctx, coachID, draft, p.ID, d)
	if err != nil {
		return nil, err
	}
	if !res.AlreadyApplied {
		s.archive(ctx, draft.ID, res)
	}
	*p = *res.Proposal
	return res, nil
}

// applyWithRetry runs the apply transaction, retrying exactly once after a
// retryable failure. A retry that finds the proposal already APPLIED returns
// the existing result.
func (s *proposalService) applyWithRetry(ctx context.Context, coachID string, draft *domain.DraftPlan, proposalID string, d plandiff.Diff) (*ApprovalResult, error) {
	start := time.Now()
	res, err := s.applyTx(ctx, coachID, draft, proposalID, d)
	if errors.Is(err, repository.ErrRetryable) {
		s.deps.Metrics.TxRetry()
		s.deps.Logger.WarnContext(ctx, "apply transaction failed, retrying once", "proposal_id", proposalID, "error", err)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.cfg.RetryDelay):
		}
		res, err = s.applyTx(ctx, coachID, draft, proposalID, d)
	}
	if err != nil {
		return nil, err
	}
	s.deps.Metrics.ObserveApply(time.Since(start).Seconds())
	return res, nil
}

// applyTx checks the baseline hashes, applies the diff to the plan rows,
// refreshes the snapshot and writes the undo checkpoint, the audit row and
// the approval with the APPLIED status, all in one transaction.
func (s *proposalService) applyTx(ctx context.Context, coachID string, draft *domain.DraftPlan, proposalID string, d plandiff.Diff) (*ApprovalResult, error) {
	store := s.deps.Store
	var res *ApprovalResult
	err := store.Tx.WithinTx(ctx, func(ctx context.Context) error {
		p, err := store.Proposals.GetByID(ctx, proposalID)
		if err != nil {
			return notFound(err, "proposal %s not found", proposalID)
		}
		if p.Status == domain.ProposalApplied {
			audit, err := store.Audits.LatestForProposal(ctx, p.ID, domain.AuditApplyProposal)
			if err != nil {
				return err
			}
			res = &ApprovalResult{Proposal: p, AuditID: audit.ID, AlreadyApplied: true}
			return nil
		}
		if p.Status != domain.ProposalProposed && p.Status != domain.ProposalApproved {
			return domain.Errorf(domain.CodeInvalidStatus, "cannot approve proposal %s in status %s", p.ID, p.Status)
		}

		state, err := loadPlanState(ctx, store, draft.ID)
		if err != nil {
			return err
		}
		if drifted := plandiff.Drift(state, p.BaselineSessions); len(drifted) > 0 {
			return domain.Errorf(domain.CodeProposalConflict, "sessions changed since the proposal was created: %v", drifted)
		}

		// Approval lands with the apply. A conflict above leaves the row untouched.
		now := s.deps.Clock.Now()
		if p.ApprovedAt == nil {
			p.ApprovedAt = &now
		}
		checkpoint := beforeState(state, d, draft.ID, p.ID, now)
		applied, err := plandiff.Apply(state, d)
		if err != nil {
			return err
		}
		if err := persistState(ctx, store, state, applied, now); err != nil {
			return err
		}
		snapshot, err := plandiff.EncodeSnapshot(draft, state)
		if err != nil {
			return err
		}
		if err := store.Drafts.UpdateSnapshot(ctx, draft.ID, snapshot, now); err != nil {
			return err
		}
		if err := store.Audits.SaveCheckpoint(ctx, checkpoint); err != nil {
			return err
		}
		audit := &domain.PlanChangeAudit{
			ID:           uuid.NewString(),
			DraftID:      draft.ID,
			ProposalID:   p.ID,
			CoachID:      coachID,
			EventType:    domain.AuditApplyProposal,
			DiffJSON:     p.DiffJSON,
			CheckpointID: checkpoint.ID,
			CreatedAt:    now,
		}
		if err := store.Audits.Create(ctx, audit); err != nil {
			return err
		}

		p.Status = domain.ProposalApplied
		p.AppliedAt = &now
		p.UpdatedAt = now
		if err := store.Proposals.Update(ctx, p); err != nil {
			return err
		}
		draft.SnapshotJSON = snapshot
		res = &ApprovalResult{Proposal: p, AuditID: audit.ID}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !res.AlreadyApplied {
		s.deps.Logger.InfoContext(ctx, "proposal applied", "proposal_id", proposalID, "draft_id", draft.ID, "audit_id", res.AuditID)
	}
	return res, nil
}

// archive uploads the refreshed snapshot. It runs after commit, so a failure
// is recorded on the result and never undoes the apply.
func (s *proposalService) archive(ctx context.Context, draftID string, res *ApprovalResult) {
	if s.cfg.Archive == nil {
		return
	}
	draft, err := s.deps.Store.Drafts.GetByID(ctx, draftID)
	if err == nil {
		res.SnapshotKey, res.SnapshotURL, err = s.cfg.Archive.Archive(ctx, draftID, res.AuditID, draft.SnapshotJSON)
	}
	if err != nil {
		res.ArchiveError = err.Error()
		s.deps.Logger.ErrorContext(ctx, "snapshot archive failed", "draft_id", draftID, "audit_id", res.AuditID, "error", err)
	}
}

func beforeState(state *plandiff.PlanState, d plandiff.Diff, draftID, proposalID string, now time.Time) *domain.BeforeState {
	b := &domain.BeforeState{
		ID:         uuid.NewString(),
		DraftID:    draftID,
		ProposalID: proposalID,
		Sessions:   []domain.SessionBeforeState{},
		CreatedAt:  now,
	}
	for _, id := range plandiff.TouchedSessionIDs(state, d) {
		sess, _ := state.Session(id)
		var notes *string
		if sess.Notes != nil {
			notes = plandiff.StringPtr(*sess.Notes)
		}
		b.Sessions = append(b.Sessions, domain.SessionBeforeState{
			SessionID:       sess.ID,
			WeekIndex:       sess.WeekIndex,
			Ordinal:         sess.Ordinal,
			Discipline:      sess.Discipline,
			Type:            sess.Type,
			DurationMinutes: sess.DurationMinutes,
			Notes:           notes,
		})
	}
	return b
}

// persistState writes the rows an apply changed: touched sessions, removed
// sessions and the recomputed caches of touched weeks.
func persistState(ctx context.Context, store *repository.Store, state *plandiff.PlanState, applied *plandiff.ApplyResult, now time.Time) error {
	removed := map[string]bool{}
	for _, id := range applied.RemovedSessionIDs {
		removed[id] = true
	}
	sessions := make([]domain.Session, 0, len(applied.ChangedSessionIDs))
	for _, id := range applied.ChangedSessionIDs {
		if removed[id] {
			continue
		}
		if sess, ok := state.Session(id); ok {
			row := *sess
			row.UpdatedAt = now
			sessions = append(sessions, row)
		}
	}
	if len(sessions) > 0 {
		if err := store.Plans.UpsertSessions(ctx, sessions); err != nil {
			return err
		}
	}
	if len(applied.RemovedSessionIDs) > 0 {
		if err := store.Plans.DeleteSessions(ctx, applied.RemovedSessionIDs); err != nil {
			return err
		}
	}
	touched := applied.TouchedWeeks
	if len(applied.RemovedSessionIDs) > 0 {
		// A removed session's week is no longer resolvable by session id.
		touched = make([]int, 0, len(state.Weeks))
		for _, w := range state.Weeks {
			touched = append(touched, w.WeekIndex)
		}
	}
	weeks := make([]domain.Week, 0, len(touched))
	for _, idx := range touched {
		if w, ok := state.Week(idx); ok {
			row := *w
			row.UpdatedAt = now
			weeks = append(weeks, row)
		}
	}
	if len(weeks) > 0 {
		return store.Plans.UpsertWeeks(ctx, weeks)
	}
	return nil
}
