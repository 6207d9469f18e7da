package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alcyxob/coaching-platform/internal/domain"
	"alcyxob/coaching-platform/internal/plandiff"
	"alcyxob/coaching-platform/internal/repository"
)

func TestApproveAppliesRewrittenDiff(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.addSoreness(t, "fb-1")
	p := f.generate(t)
	require.Equal(t, domain.ProposalProposed, p.Status)

	res, err := f.proposals.Approve(ctx, coachID, p.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ProposalApplied, res.Proposal.Status)
	assert.NotNil(t, res.Proposal.ApprovedAt)
	assert.NotNil(t, res.Proposal.AppliedAt)
	assert.False(t, res.AlreadyApplied)

	assert.Equal(t, 32, f.session(t, "s1").DurationMinutes)
	assert.Equal(t, 72, f.session(t, "s2").DurationMinutes)
	assert.Equal(t, 45, f.session(t, "s0").DurationMinutes, "locked week untouched")

	weeks, err := f.store.Plans.ListWeeks(ctx, draftID)
	require.NoError(t, err)
	assert.Equal(t, 104, weeks[1].TotalMinutes)
	assert.Equal(t, 2, weeks[1].SessionsCount)

	draft, err := f.store.Drafts.GetByID(ctx, draftID)
	require.NoError(t, err)
	snap, err := plandiff.DecodeSnapshot(draft.SnapshotJSON)
	require.NoError(t, err)
	assert.Equal(t, 32, snap.Weeks[1].Sessions[0].DurationMinutes)

	audit, err := f.store.Audits.LatestForProposal(ctx, p.ID, domain.AuditApplyProposal)
	require.NoError(t, err)
	assert.Equal(t, res.AuditID, audit.ID)
	checkpoint, err := f.store.Audits.GetCheckpoint(ctx, audit.CheckpointID)
	require.NoError(t, err)
	require.Len(t, checkpoint.Sessions, 2)
	assert.Equal(t, 40, checkpoint.Sessions[0].DurationMinutes)

	assert.Equal(t, "drafts/draft-1/snapshots/"+res.AuditID+".json", res.SnapshotKey)
	assert.Equal(t, "https://files.test/"+res.SnapshotKey, res.SnapshotURL)
	assert.Empty(t, res.ArchiveError)
	assert.JSONEq(t, draft.SnapshotJSON, string(f.files.objects[res.SnapshotKey]))

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Approvals.WithLabelValues("applied")))

	_, err = f.proposals.Approve(ctx, coachID, p.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidStatus)
}

func TestApproveDetectsConflict(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.addSoreness(t, "fb-1")
	p := f.generate(t)

	edited := f.session(t, "s1")
	edited.DurationMinutes = 50
	require.NoError(t, f.store.Plans.UpsertSessions(ctx, []domain.Session{edited}))

	_, err := f.proposals.Approve(ctx, coachID, p.ID)
	require.ErrorIs(t, err, domain.ErrProposalConflict)
	assert.Equal(t, 50, f.session(t, "s1").DurationMinutes)
	assert.Equal(t, 90, f.session(t, "s2").DurationMinutes)

	got, err := f.proposals.Get(ctx, coachID, p.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ProposalProposed, got.Status)
	assert.Nil(t, got.ApprovedAt)

	audits, err := f.store.Audits.ListByDraft(ctx, draftID)
	require.NoError(t, err)
	assert.Empty(t, audits)
}

func TestApproveDetectsSessionAddedToScaledWeek(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.addSoreness(t, "fb-1")
	p := f.generate(t)

	require.NoError(t, f.store.Plans.UpsertSessions(ctx, []domain.Session{
		{ID: "s4", DraftID: draftID, WeekIndex: 1, Ordinal: 2, DayOfWeek: time.Thursday, Discipline: "Swim", Type: "Technique", DurationMinutes: 30, UpdatedAt: t0},
	}))

	_, err := f.proposals.Approve(ctx, coachID, p.ID)
	require.ErrorIs(t, err, domain.ErrProposalConflict)
	assert.Contains(t, err.Error(), "week:1")
	assert.Equal(t, 30, f.session(t, "s4").DurationMinutes)
	assert.Equal(t, 40, f.session(t, "s1").DurationMinutes)

	got, err := f.proposals.Get(ctx, coachID, p.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ProposalProposed, got.Status)
}

func TestApproveRechecksLiveLocks(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.addSoreness(t, "fb-1")
	p := f.generate(t)

	weeks, err := f.store.Plans.ListWeeks(ctx, draftID)
	require.NoError(t, err)
	weeks[1].Locked = true
	require.NoError(t, f.store.Plans.UpsertWeeks(ctx, weeks[1:2]))

	_, err = f.proposals.Approve(ctx, coachID, p.ID)
	assert.ErrorIs(t, err, domain.ErrWeekLocked)
	got, err := f.proposals.Get(ctx, coachID, p.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ProposalProposed, got.Status)
}

func TestApproveDraftIsInvalid(t *testing.T) {
	f := newFixture(t)
	f.addSoreness(t, "fb-1")
	f.provider.respectsLocks = false
	p := f.generate(t)

	_, err := f.proposals.Approve(context.Background(), coachID, p.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidStatus)
}

func TestApplyUndoRoundTrip(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.addSoreness(t, "fb-1")
	f.provider.diff = plandiff.Diff{
		&plandiff.AdjustWeekVolume{WeekIndex: 1, PctDelta: -0.2},
		&plandiff.AddNote{Target: plandiff.NoteTarget{Kind: plandiff.TargetSession, SessionID: "s2"}, Text: "keep it conversational"},
		&plandiff.SwapSessionType{SessionID: "s1", NewType: "Endurance"},
	}
	before := map[string]domain.Session{"s1": f.session(t, "s1"), "s2": f.session(t, "s2")}

	p := f.generate(t)
	require.Equal(t, domain.ProposalProposed, p.Status)

	_, err := f.proposals.Undo(ctx, coachID, p.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidStatus)

	_, err = f.proposals.Approve(ctx, coachID, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Endurance", f.session(t, "s1").Type)
	assert.Equal(t, "long run, easy pace\n\nkeep it conversational", *f.session(t, "s2").Notes)

	f.clock.Advance(time.Hour)
	undo, err := f.proposals.Undo(ctx, coachID, p.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SourceUndo, undo.Metadata.Source)
	assert.Equal(t, p.ID, undo.Metadata.SourceProposalID)
	require.Equal(t, domain.ProposalProposed, undo.Status)

	f.clock.Advance(time.Minute)
	_, err = f.proposals.Approve(ctx, coachID, undo.ID)
	require.NoError(t, err)

	for id, want := range before {
		got := f.session(t, id)
		assert.Equal(t, want.Discipline, got.Discipline, id)
		assert.Equal(t, want.Type, got.Type, id)
		assert.Equal(t, want.DurationMinutes, got.DurationMinutes, id)
		assert.Equal(t, want.Notes, got.Notes, id)
	}

	audits, err := f.store.Audits.ListByDraft(ctx, draftID)
	require.NoError(t, err)
	var events []domain.AuditEventType
	for _, a := range audits {
		events = append(events, a.EventType)
	}
	assert.Equal(t, []domain.AuditEventType{domain.AuditApplyProposal, domain.AuditUndoProposalCreated, domain.AuditApplyProposal}, events)
}

func TestUndoRestoresFullDurationCut(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.addSoreness(t, "fb-1")
	f.provider.diff = plandiff.Diff{
		&plandiff.UpdateSession{SessionID: "s3", Patch: plandiff.SessionPatch{DurationMinutes: plandiff.IntPtr(45)}},
	}

	p := f.generate(t)
	require.Equal(t, domain.ProposalProposed, p.Status)
	_, err := f.proposals.Approve(ctx, coachID, p.ID)
	require.NoError(t, err)
	require.Equal(t, 45, f.session(t, "s3").DurationMinutes)

	// 45 back to 60 is a 33 percent change, above the 25 percent cap.
	f.clock.Advance(time.Hour)
	undo, err := f.proposals.Undo(ctx, coachID, p.ID)
	require.NoError(t, err)
	require.Equal(t, domain.ProposalProposed, undo.Status, undo.Metadata.HardSafety.Reasons)
	assert.True(t, undo.Metadata.HardSafety.OK)
	assert.NotEmpty(t, undo.Metadata.CheckpointID)

	// A rejected undo reopens with the same exemption.
	_, err = f.proposals.Reject(ctx, coachID, undo.ID, "not yet")
	require.NoError(t, err)
	reopened, err := f.proposals.Reopen(ctx, coachID, undo.ID)
	require.NoError(t, err)
	require.Equal(t, domain.ProposalProposed, reopened.Status)
	assert.Equal(t, undo.Metadata.CheckpointID, reopened.Metadata.CheckpointID)

	f.clock.Advance(time.Minute)
	res, err := f.proposals.Approve(ctx, coachID, reopened.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ProposalApplied, res.Proposal.Status)
	assert.Equal(t, 60, f.session(t, "s3").DurationMinutes)
}

func TestUndoWithoutCheckpoint(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	now := f.clock.Now()
	p := &domain.Proposal{
		ID: "applied-elsewhere", DraftID: draftID, AthleteID: athleteID, CoachID: coachID,
		Status: domain.ProposalApplied, DiffJSON: "[]", TriggerIDs: []string{},
		BaselineSessions: map[string]string{}, CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, f.store.Proposals.Create(ctx, p))

	_, err := f.proposals.Undo(ctx, coachID, p.ID)
	assert.ErrorIs(t, err, domain.ErrUndoNotAvailable)
}

func TestBatchApproveIsolatesFailures(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.addSoreness(t, "fb-1")

	first := f.generate(t)
	f.clock.Advance(time.Minute)
	second, err := f.proposals.Generate(ctx, coachID, draftID, nil)
	require.NoError(t, err)
	f.clock.Advance(time.Minute)
	f.provider.respectsLocks = false
	draftOnly, err := f.proposals.Generate(ctx, coachID, draftID, nil)
	require.NoError(t, err)
	require.Equal(t, domain.ProposalDraft, draftOnly.Status)

	res, err := f.proposals.BatchApprove(ctx, coachID, draftID, BatchOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Total)
	assert.Equal(t, 1, res.Applied)
	assert.Equal(t, 1, res.Failed)
	require.Len(t, res.Results, 2)

	assert.Equal(t, first.ID, res.Results[0].ProposalID)
	assert.True(t, res.Results[0].Applied)
	assert.Equal(t, domain.ProposalApplied, res.Results[0].Status)

	// Both proposals scale week 1; the first apply moves the second's baseline.
	assert.Equal(t, second.ID, res.Results[1].ProposalID)
	assert.False(t, res.Results[1].Applied)
	assert.Equal(t, domain.CodeProposalConflict, res.Results[1].Code)
	assert.Equal(t, domain.ProposalProposed, res.Results[1].Status)

	assert.Equal(t, 32, f.session(t, "s1").DurationMinutes)

	stored, err := f.proposals.Get(ctx, coachID, second.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ProposalProposed, stored.Status)
	assert.Nil(t, stored.ApprovedAt)

	// The conflicted proposal stays eligible for the next batch.
	res, err = f.proposals.BatchApprove(ctx, coachID, draftID, BatchOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Total)
	require.Len(t, res.Results, 1)
	assert.Equal(t, second.ID, res.Results[0].ProposalID)
	assert.Equal(t, domain.CodeProposalConflict, res.Results[0].Code)
}

func TestBatchApproveFilters(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.addSoreness(t, "fb-1")

	old := f.generate(t)
	f.clock.Advance(48 * time.Hour)

	res, err := f.proposals.BatchApprove(ctx, coachID, draftID, BatchOptions{MaxHours: 24})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Total)

	res, err = f.proposals.BatchApprove(ctx, coachID, draftID, BatchOptions{ProposalIDs: []string{old.ID}})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Applied)
}

// flakyTx fails the first transaction with ErrRetryable. With commitFirst
// the first transaction's work is committed before the failure is reported.
type flakyTx struct {
	inner       repository.TxRunner
	commitFirst bool
	calls       int
}

func (f *flakyTx) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	f.calls++
	if f.calls > 1 {
		return f.inner.WithinTx(ctx, fn)
	}
	if f.commitFirst {
		if err := f.inner.WithinTx(ctx, fn); err != nil {
			return err
		}
	}
	return repository.ErrRetryable
}

func TestApproveRetriesOnce(t *testing.T) {
	for _, commitFirst := range []bool{false, true} {
		t.Run(map[bool]string{false: "rolled back", true: "committed"}[commitFirst], func(t *testing.T) {
			ctx := context.Background()
			f := newFixture(t)
			f.addSoreness(t, "fb-1")
			p := f.generate(t)

			flaky := &flakyTx{inner: f.store.Tx, commitFirst: commitFirst}
			f.store.Tx = flaky

			res, err := f.proposals.Approve(ctx, coachID, p.ID)
			require.NoError(t, err)
			assert.Equal(t, 2, flaky.calls)
			assert.Equal(t, domain.ProposalApplied, res.Proposal.Status)
			assert.Equal(t, commitFirst, res.AlreadyApplied)
			assert.Equal(t, 32, f.session(t, "s1").DurationMinutes)
			assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.TxRetries))
		})
	}
}

type alwaysRetryable struct{}

func (alwaysRetryable) WithinTx(context.Context, func(context.Context) error) error {
	return repository.ErrRetryable
}

func TestApproveGivesUpAfterOneRetry(t *testing.T) {
	f := newFixture(t)
	f.addSoreness(t, "fb-1")
	p := f.generate(t)
	f.store.Tx = alwaysRetryable{}

	_, err := f.proposals.Approve(context.Background(), coachID, p.ID)
	assert.ErrorIs(t, err, repository.ErrRetryable)
	assert.Equal(t, 90, f.session(t, "s2").DurationMinutes)
}

func TestArchiveFailureDoesNotUndoApply(t *testing.T) {
	f := newFixture(t)
	f.addSoreness(t, "fb-1")
	p := f.generate(t)
	f.files.putErr = errors.New("bucket unavailable")

	res, err := f.proposals.Approve(context.Background(), coachID, p.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ProposalApplied, res.Proposal.Status)
	assert.Contains(t, res.ArchiveError, "bucket unavailable")
	assert.Equal(t, 32, f.session(t, "s1").DurationMinutes)
}
