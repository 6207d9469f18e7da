package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"alcyxob/coaching-platform/internal/domain"
	"alcyxob/coaching-platform/internal/plandiff"
	"alcyxob/coaching-platform/internal/policy"
	"alcyxob/coaching-platform/internal/preview"
	"alcyxob/coaching-platform/internal/repository"
	"alcyxob/coaching-platform/internal/safety"
	"alcyxob/coaching-platform/internal/storage"
	"alcyxob/coaching-platform/internal/suggest"
)

// ProposalService owns the plan change proposal lifecycle.
type ProposalService interface {
	Generate(ctx context.Context, coachID, draftID string, triggerIDs []string) (*domain.Proposal, error)
	Get(ctx context.Context, coachID, proposalID string) (*domain.Proposal, error)
	List(ctx context.Context, coachID, draftID string, statuses []domain.ProposalStatus) ([]domain.Proposal, error)
	Preview(ctx context.Context, coachID, proposalID string) (*preview.DiffViewModel, error)
	EditDraft(ctx context.Context, coachID, proposalID string, diff plandiff.Diff) (*domain.Proposal, error)
	Approve(ctx context.Context, coachID, proposalID string) (*ApprovalResult, error)
	Reject(ctx context.Context, coachID, proposalID, reason string) (*domain.Proposal, error)
	BatchApprove(ctx context.Context, coachID, draftID string, opts BatchOptions) (*BatchResult, error)
	Reopen(ctx context.Context, coachID, proposalID string) (*domain.Proposal, error)
	Undo(ctx context.Context, coachID, proposalID string) (*domain.Proposal, error)
}

// ProposalConfig configures a ProposalService. Archive may be nil.
type ProposalConfig struct {
	Policies   *policy.Registry
	PolicyName string
	Provider   suggest.Provider
	Archive    *storage.SnapshotArchive
	RetryDelay time.Duration
}

type proposalService struct {
	deps Deps
	cfg  ProposalConfig
}

func NewProposalService(deps Deps, cfg ProposalConfig) ProposalService {
	if cfg.Provider == nil {
		cfg.Provider = suggest.NewDeterministic()
	}
	return &proposalService{deps: deps.withDefaults(), cfg: cfg}
}

// Generate asks the suggestion provider for a diff against the given triggers
// (or the latest detection window's), rewrites and validates it, and stores
// the result as PROPOSED when clean or DRAFT otherwise.
func (s *proposalService) Generate(ctx context.Context, coachID, draftID string, triggerIDs []string) (*domain.Proposal, error) {
	ctx, span := tracer.Start(ctx, "ProposalService.Generate", trace.WithAttributes(attribute.String("draft.id", draftID)))
	defer span.End()

	store := s.deps.Store
	draft, err := ownedDraft(ctx, store, coachID, draftID)
	if err != nil {
		return nil, err
	}
	triggers, err := s.selectTriggers(ctx, draft.ID, triggerIDs)
	if err != nil {
		return nil, err
	}
	state, err := loadPlanState(ctx, store, draft.ID)
	if err != nil {
		return nil, err
	}
	profile, err := s.profile(s.cfg.PolicyName)
	if err != nil {
		return nil, err
	}

	now := s.deps.Clock.Now()
	sc := safety.Context{
		CurrentWeekIndex: draft.CurrentWeekIndex(now),
		TriggerTypes:     domain.TriggerTypes(triggers),
		Caps:             profile.Safety,
		State:            state,
	}

	out, err := s.cfg.Provider.Suggest(ctx, suggest.NewInput(state, sc.TriggerTypes, sc.CurrentWeekIndex, profile))
	if err != nil {
		return nil, fmt.Errorf("suggest diff: %w", err)
	}
	if err := plandiff.Validate(out.Diff); err != nil {
		return nil, err
	}

	rw := safety.Rewrite(sc, out.Diff)
	s.deps.Metrics.DroppedOps(rw.DroppedOps)

	ids := make([]string, 0, len(triggers))
	for _, t := range triggers {
		ids = append(ids, t.ID)
	}
	p, err := s.newProposal(draft, state, sc, rw.Diff, now)
	if err != nil {
		return nil, err
	}
	p.RationaleText = out.RationaleText
	p.RespectsLocks = p.RespectsLocks && out.RespectsLocks
	p.Status = statusFor(p)
	p.TriggerIDs = ids
	p.Metadata.Source = out.Source
	p.Metadata.FallbackReason = out.FallbackReason
	p.Metadata.DroppedOps = rw.DroppedOps
	p.Metadata.RewriteLog = rw.Log
	p.Metadata.PolicyName = profile.Name
	p.Metadata.PolicyVersion = profile.Version

	if err := store.Proposals.Create(ctx, p); err != nil {
		return nil, err
	}
	s.deps.Metrics.ProposalCreated(string(p.Status), string(p.Metadata.Source))
	span.SetAttributes(attribute.String("proposal.id", p.ID), attribute.String("proposal.status", string(p.Status)))
	s.deps.Logger.InfoContext(ctx, "proposal generated",
		"proposal_id", p.ID, "draft_id", draft.ID, "status", p.Status, "source", p.Metadata.Source,
		"dropped_ops", rw.DroppedOps, "hard_safety_ok", p.Metadata.HardSafety.OK)
	return p, nil
}

func (s *proposalService) Get(ctx context.Context, coachID, proposalID string) (*domain.Proposal, error) {
	p, _, err := ownedProposal(ctx, s.deps.Store, coachID, proposalID)
	return p, err
}

func (s *proposalService) List(ctx context.Context, coachID, draftID string, statuses []domain.ProposalStatus) ([]domain.Proposal, error) {
	if _, err := ownedDraft(ctx, s.deps.Store, coachID, draftID); err != nil {
		return nil, err
	}
	return s.deps.Store.Proposals.ListByDraft(ctx, draftID, repository.ProposalFilter{Statuses: statuses})
}

// Preview renders the proposal's diff against the draft's current snapshot.
// It never writes.
func (s *proposalService) Preview(ctx context.Context, coachID, proposalID string) (*preview.DiffViewModel, error) {
	p, draft, err := ownedProposal(ctx, s.deps.Store, coachID, proposalID)
	if err != nil {
		return nil, err
	}
	d, err := plandiff.Decode(p.DiffJSON)
	if err != nil {
		return nil, err
	}
	if draft.SnapshotJSON != "" {
		snap, err := plandiff.DecodeSnapshot(draft.SnapshotJSON)
		if err != nil {
			return nil, err
		}
		vm := preview.Render(snap, d)
		return &vm, nil
	}
	state, err := loadPlanState(ctx, s.deps.Store, draft.ID)
	if err != nil {
		return nil, err
	}
	vm := preview.RenderState(state, d)
	return &vm, nil
}

// EditDraft replaces the diff of a DRAFT proposal with a coach-edited one. The
// edit is validated as written, without rewriting, and promotes the proposal
// to PROPOSED once it is lock-respecting and hard-safety clean.
func (s *proposalService) EditDraft(ctx context.Context, coachID, proposalID string, diff plandiff.Diff) (*domain.Proposal, error) {
	store := s.deps.Store
	p, draft, err := ownedProposal(ctx, store, coachID, proposalID)
	if err != nil {
		return nil, err
	}
	if p.Status != domain.ProposalDraft {
		return nil, domain.Errorf(domain.CodeInvalidStatus, "only DRAFT proposals can be edited, proposal %s is %s", p.ID, p.Status)
	}
	if err := plandiff.Validate(diff); err != nil {
		return nil, err
	}
	state, err := loadPlanState(ctx, store, draft.ID)
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

	edited, err := s.newProposal(draft, state, sc, diff, now)
	if err != nil {
		return nil, err
	}
	p.DiffJSON = edited.DiffJSON
	p.BaselineSessions = edited.BaselineSessions
	p.RespectsLocks = edited.RespectsLocks
	p.Metadata.HardSafety = edited.Metadata.HardSafety
	p.Metadata.Source = domain.SourceManual
	p.Metadata.DroppedOps = 0
	p.Metadata.RewriteLog = nil
	if statusFor(p) == domain.ProposalProposed && p.Status.CanTransition(domain.ProposalProposed) {
		p.Status = domain.ProposalProposed
	}
	p.UpdatedAt = now
	if err := store.Proposals.Update(ctx, p); err != nil {
		return nil, err
	}
	s.deps.Logger.InfoContext(ctx, "draft proposal edited", "proposal_id", p.ID, "status", p.Status)
	return p, nil
}

// Reject moves a PROPOSED or APPROVED proposal to REJECTED.
func (s *proposalService) Reject(ctx context.Context, coachID, proposalID, reason string) (*domain.Proposal, error) {
	p, _, err := ownedProposal(ctx, s.deps.Store, coachID, proposalID)
	if err != nil {
		return nil, err
	}
	if !p.Status.CanTransition(domain.ProposalRejected) {
		return nil, domain.Errorf(domain.CodeInvalidStatus, "cannot reject proposal %s in status %s", p.ID, p.Status)
	}
	now := s.deps.Clock.Now()
	p.Status = domain.ProposalRejected
	p.RejectedAt = &now
	p.UpdatedAt = now
	p.Metadata.RejectReason = strings.TrimSpace(reason)
	if err := s.deps.Store.Proposals.Update(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// Reopen clones a REJECTED or APPLIED proposal's diff into a new proposal
// judged against the current plan.
func (s *proposalService) Reopen(ctx context.Context, coachID, proposalID string) (*domain.Proposal, error) {
	ctx, span := tracer.Start(ctx, "ProposalService.Reopen", trace.WithAttributes(attribute.String("proposal.id", proposalID)))
	defer span.End()

	store := s.deps.Store
	src, draft, err := ownedProposal(ctx, store, coachID, proposalID)
	if err != nil {
		return nil, err
	}
	if src.Status != domain.ProposalRejected && src.Status != domain.ProposalApplied {
		return nil, domain.Errorf(domain.CodeInvalidStatus, "only REJECTED or APPLIED proposals can be reopened, proposal %s is %s", src.ID, src.Status)
	}
	d, err := plandiff.Decode(src.DiffJSON)
	if err != nil {
		return nil, err
	}
	state, err := loadPlanState(ctx, store, draft.ID)
	if err != nil {
		return nil, err
	}
	now := s.deps.Clock.Now()
	sc, profile, err := s.safetyContext(ctx, draft, state, src.TriggerIDs, src.Metadata.PolicyName, now)
	if err != nil {
		return nil, err
	}
	if err := s.withCheckpoint(ctx, &sc, src.Metadata.CheckpointID); err != nil {
		return nil, err
	}

	p, err := s.newProposal(draft, state, sc, d, now)
	if err != nil {
		return nil, err
	}
	p.Status = statusFor(p)
	p.RationaleText = src.RationaleText
	p.TriggerIDs = append([]string{}, src.TriggerIDs...)
	p.Metadata.Source = domain.SourceReopen
	p.Metadata.SourceProposalID = src.ID
	p.Metadata.SourceStatus = src.Status
	p.Metadata.CheckpointID = src.Metadata.CheckpointID
	p.Metadata.PolicyName = profile.Name
	p.Metadata.PolicyVersion = profile.Version

	audit := &domain.PlanChangeAudit{
		ID:         uuid.NewString(),
		DraftID:    draft.ID,
		ProposalID: src.ID,
		CoachID:    coachID,
		EventType:  domain.AuditReopenProposal,
		DiffJSON:   p.DiffJSON,
		Metadata:   map[string]string{"newProposalId": p.ID, "sourceStatus": string(src.Status)},
		CreatedAt:  now,
	}
	if err := s.createWithAudit(ctx, p, audit); err != nil {
		return nil, err
	}
	s.deps.Logger.InfoContext(ctx, "proposal reopened", "source_proposal_id", src.ID, "proposal_id", p.ID, "status", p.Status)
	return p, nil
}

// Undo builds a proposal that restores every session an APPLIED proposal
// touched to its pre-apply content, from the apply's undo checkpoint.
func (s *proposalService) Undo(ctx context.Context, coachID, proposalID string) (*domain.Proposal, error) {
	ctx, span := tracer.Start(ctx, "ProposalService.Undo", trace.WithAttributes(attribute.String("proposal.id", proposalID)))
	defer span.End()

	store := s.deps.Store
	src, draft, err := ownedProposal(ctx, store, coachID, proposalID)
	if err != nil {
		return nil, err
	}
	if src.Status != domain.ProposalApplied {
		return nil, domain.Errorf(domain.CodeInvalidStatus, "only APPLIED proposals can be undone, proposal %s is %s", src.ID, src.Status)
	}
	applied, err := store.Audits.LatestForProposal(ctx, src.ID, domain.AuditApplyProposal)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domain.Errorf(domain.CodeUndoNotAvailable, "no apply audit for proposal %s", src.ID)
		}
		return nil, err
	}
	if applied.CheckpointID == "" {
		return nil, domain.Errorf(domain.CodeUndoNotAvailable, "apply audit %s has no undo checkpoint", applied.ID)
	}
	checkpoint, err := store.Audits.GetCheckpoint(ctx, applied.CheckpointID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domain.Errorf(domain.CodeUndoNotAvailable, "undo checkpoint %s not found", applied.CheckpointID)
		}
		return nil, err
	}

	state, err := loadPlanState(ctx, store, draft.ID)
	if err != nil {
		return nil, err
	}
	reverse, skipped := reverseDiff(state, checkpoint)

	now := s.deps.Clock.Now()
	sc, profile, err := s.safetyContext(ctx, draft, state, nil, src.Metadata.PolicyName, now)
	if err != nil {
		return nil, err
	}
	sc.Restore = safety.RestoreFrom(checkpoint)
	p, err := s.newProposal(draft, state, sc, reverse, now)
	if err != nil {
		return nil, err
	}
	p.Status = statusFor(p)
	p.RationaleText = fmt.Sprintf("Undo of proposal %s.", src.ID)
	p.TriggerIDs = []string{}
	p.Metadata.Source = domain.SourceUndo
	p.Metadata.SourceProposalID = src.ID
	p.Metadata.SourceStatus = src.Status
	p.Metadata.CheckpointID = checkpoint.ID
	p.Metadata.RewriteLog = skipped
	p.Metadata.PolicyName = profile.Name
	p.Metadata.PolicyVersion = profile.Version

	audit := &domain.PlanChangeAudit{
		ID:           uuid.NewString(),
		DraftID:      draft.ID,
		ProposalID:   src.ID,
		CoachID:      coachID,
		EventType:    domain.AuditUndoProposalCreated,
		DiffJSON:     p.DiffJSON,
		CheckpointID: checkpoint.ID,
		Metadata:     map[string]string{"undoProposalId": p.ID},
		CreatedAt:    now,
	}
	if err := s.createWithAudit(ctx, p, audit); err != nil {
		return nil, err
	}
	s.deps.Logger.InfoContext(ctx, "undo proposal created", "source_proposal_id", src.ID, "proposal_id", p.ID, "status", p.Status)
	return p, nil
}

// reverseDiff restores each checkpointed session with one UPDATE_SESSION.
// Sessions that no longer exist are reported instead.
func reverseDiff(state *plandiff.PlanState, b *domain.BeforeState) (plandiff.Diff, []string) {
	d := plandiff.Diff{}
	var skipped []string
	for _, before := range b.Sessions {
		if _, ok := state.Session(before.SessionID); !ok {
			skipped = append(skipped, fmt.Sprintf("session %s no longer exists", before.SessionID))
			continue
		}
		patch := plandiff.SessionPatch{
			Discipline:      plandiff.StringPtr(before.Discipline),
			Type:            plandiff.StringPtr(before.Type),
			DurationMinutes: plandiff.IntPtr(before.DurationMinutes),
		}
		if before.Notes == nil {
			patch.ClearNotes = true
		} else {
			patch.Notes = plandiff.StringPtr(*before.Notes)
		}
		d = append(d, &plandiff.UpdateSession{SessionID: before.SessionID, Patch: patch})
	}
	return d, skipped
}

func (s *proposalService) createWithAudit(ctx context.Context, p *domain.Proposal, audit *domain.PlanChangeAudit) error {
	err := s.deps.Store.Tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.deps.Store.Proposals.Create(ctx, p); err != nil {
			return err
		}
		return s.deps.Store.Audits.Create(ctx, audit)
	})
	if err != nil {
		return err
	}
	s.deps.Metrics.ProposalCreated(string(p.Status), string(p.Metadata.Source))
	return nil
}

// selectTriggers resolves explicit trigger ids, or the latest window's
// triggers when none are given.
func (s *proposalService) selectTriggers(ctx context.Context, draftID string, ids []string) ([]domain.AdaptationTrigger, error) {
	repo := s.deps.Store.Triggers
	if len(ids) == 0 {
		triggers, err := repo.ListLatestWindow(ctx, draftID)
		if err != nil {
			return nil, err
		}
		if len(triggers) == 0 {
			return nil, domain.Errorf(domain.CodeNotFound, "no triggers detected for draft %s", draftID)
		}
		return triggers, nil
	}

	unique := make([]string, 0, len(ids))
	seen := map[string]bool{}
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			unique = append(unique, id)
		}
	}
	triggers, err := repo.GetByIDs(ctx, draftID, unique)
	if err != nil {
		return nil, err
	}
	if len(triggers) != len(unique) {
		found := map[string]bool{}
		for _, t := range triggers {
			found[t.ID] = true
		}
		for _, id := range unique {
			if !found[id] {
				return nil, domain.Errorf(domain.CodeNotFound, "trigger %s not found", id)
			}
		}
	}
	return triggers, nil
}

func (s *proposalService) profile(name string) (policy.Profile, error) {
	p, err := s.cfg.Policies.Resolve(name)
	if errors.Is(err, policy.ErrUnknownProfile) && name != "" {
		// Proposals outlive renamed profiles; judge them by the default.
		return s.cfg.Policies.Default(), nil
	}
	return p, err
}

// safetyContext rebuilds the judgement context for an existing proposal
// against the live plan.
func (s *proposalService) safetyContext(ctx context.Context, draft *domain.DraftPlan, state *plandiff.PlanState, triggerIDs []string, profileName string, now time.Time) (safety.Context, policy.Profile, error) {
	profile, err := s.profile(profileName)
	if err != nil {
		return safety.Context{}, policy.Profile{}, err
	}
	var types []domain.TriggerType
	if len(triggerIDs) > 0 {
		triggers, err := s.deps.Store.Triggers.GetByIDs(ctx, draft.ID, triggerIDs)
		if err != nil {
			return safety.Context{}, policy.Profile{}, err
		}
		types = domain.TriggerTypes(triggers)
	}
	return safety.Context{
		CurrentWeekIndex: draft.CurrentWeekIndex(now),
		TriggerTypes:     types,
		Caps:             profile.Safety,
		State:            state,
	}, profile, nil
}

// withCheckpoint exempts the durations an undo puts back from the change
// caps. Proposals without a checkpoint are judged as they are.
func (s *proposalService) withCheckpoint(ctx context.Context, sc *safety.Context, checkpointID string) error {
	if checkpointID == "" {
		return nil
	}
	b, err := s.deps.Store.Audits.GetCheckpoint(ctx, checkpointID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.Errorf(domain.CodeUndoNotAvailable, "undo checkpoint %s not found", checkpointID)
		}
		return err
	}
	sc.Restore = safety.RestoreFrom(b)
	return nil
}

// newProposal judges d against sc and fills in everything derived from it:
// the encoded diff, the lock and hard-safety verdicts and the baseline hashes.
// Status is left for the caller.
func (s *proposalService) newProposal(draft *domain.DraftPlan, state *plandiff.PlanState, sc safety.Context, d plandiff.Diff, now time.Time) (*domain.Proposal, error) {
	raw, err := plandiff.Encode(d)
	if err != nil {
		return nil, err
	}
	hs := safety.Validate(sc, d)
	return &domain.Proposal{
		ID:               uuid.NewString(),
		DraftID:          draft.ID,
		AthleteID:        draft.AthleteID,
		CoachID:          draft.CoachID,
		Status:           domain.ProposalDraft,
		DiffJSON:         raw,
		RespectsLocks:    plandiff.CheckRefs(state, d) == nil,
		TriggerIDs:       []string{},
		BaselineSessions: plandiff.Baseline(state, d),
		Metadata:         domain.ProposalMetadata{HardSafety: &hs},
		CreatedAt:        now,
		UpdatedAt:        now,
	}, nil
}

// statusFor is PROPOSED only for lock-respecting, hard-safety clean diffs.
func statusFor(p *domain.Proposal) domain.ProposalStatus {
	if p.RespectsLocks && p.Metadata.HardSafety != nil && p.Metadata.HardSafety.OK {
		return domain.ProposalProposed
	}
	return domain.ProposalDraft
}
