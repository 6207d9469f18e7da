package domain

import "time"

// ProposalStatus is the lifecycle state of a PlanChangeProposal.
type ProposalStatus string

const (
	ProposalDraft    ProposalStatus = "DRAFT"    // needs a manual coach edit before approval
	ProposalProposed ProposalStatus = "PROPOSED" // lock-respecting and hard-safety clean
	ProposalApproved ProposalStatus = "APPROVED" // approved, not yet applied
	ProposalApplied  ProposalStatus = "APPLIED"
	ProposalRejected ProposalStatus = "REJECTED"
)

// CanTransition reports whether moving from s to next is a legal lifecycle step.
// APPLIED and REJECTED are terminal.
func (s ProposalStatus) CanTransition(next ProposalStatus) bool {
	switch s {
	case ProposalDraft:
		return next == ProposalProposed
	case ProposalProposed:
		return next == ProposalApproved || next == ProposalApplied || next == ProposalRejected
	case ProposalApproved:
		return next == ProposalApplied || next == ProposalRejected
	}
	return false
}

// ProposalSource records what produced a proposal's diff.
type ProposalSource string

const (
	SourceAI            ProposalSource = "AI"
	SourceDeterministic ProposalSource = "DETERMINISTIC"
	SourceManual        ProposalSource = "MANUAL"
	SourceReopen        ProposalSource = "REOPEN"
	SourceUndo          ProposalSource = "UNDO"
)

// WeekVolumeDelta is the simulated change in a week's total minutes.
type WeekVolumeDelta struct {
	WeekIndex    int `bson:"weekIndex" json:"weekIndex"`
	DeltaMinutes int `bson:"deltaMinutes" json:"deltaMinutes"`
}

// SafetyMetrics aggregates the simulated effect of a diff.
type SafetyMetrics struct {
	TotalDurationDeltaMinutes int               `bson:"totalDurationDeltaMinutes" json:"totalDurationDeltaMinutes"`
	OpCounts                  map[string]int    `bson:"opCounts" json:"opCounts"`
	WeekVolumeDeltas          []WeekVolumeDelta `bson:"weekVolumeDeltas" json:"weekVolumeDeltas"`
}

// HardSafetyResult is the outcome of the hard validator. Reasons accumulate;
// the validator never short-circuits.
type HardSafetyResult struct {
	OK      bool          `bson:"ok" json:"ok"`
	Reasons []string      `bson:"reasons" json:"reasons"`
	Metrics SafetyMetrics `bson:"metrics" json:"metrics"`
}

// ProposalMetadata carries provenance and gate results for a proposal.
type ProposalMetadata struct {
	Source           ProposalSource    `bson:"source" json:"source"`
	FallbackReason   string            `bson:"fallbackReason,omitempty" json:"fallbackReason,omitempty"`
	SourceProposalID string            `bson:"sourceProposalId,omitempty" json:"sourceProposalId,omitempty"`
	SourceStatus     ProposalStatus    `bson:"sourceStatus,omitempty" json:"sourceStatus,omitempty"`
	CheckpointID     string            `bson:"checkpointId,omitempty" json:"checkpointId,omitempty"`
	DroppedOps       int               `bson:"droppedOps" json:"droppedOps"`
	RewriteLog       []string          `bson:"rewriteLog,omitempty" json:"rewriteLog,omitempty"`
	HardSafety       *HardSafetyResult `bson:"hardSafety,omitempty" json:"hardSafety,omitempty"`
	PolicyName       string            `bson:"policyName,omitempty" json:"policyName,omitempty"`
	PolicyVersion    int               `bson:"policyVersion,omitempty" json:"policyVersion,omitempty"`
	RejectReason     string            `bson:"rejectReason,omitempty" json:"rejectReason,omitempty"`
}

// Proposal is a plan-change proposal. DiffJSON holds the ordered op list;
// BaselineSessions maps every touched session id to its content hash at
// creation time, plus a "week:N" membership hash per week-level target, and
// drives conflict detection at approval.
type Proposal struct {
	ID               string            `bson:"_id" json:"id"`
	DraftID          string            `bson:"draftId" json:"draftId"`
	AthleteID        string            `bson:"athleteId" json:"athleteId"`
	CoachID          string            `bson:"coachId" json:"coachId"`
	Status           ProposalStatus    `bson:"status" json:"status"`
	DiffJSON         string            `bson:"diffJson" json:"diffJson"`
	RationaleText    string            `bson:"rationaleText" json:"rationaleText"`
	RespectsLocks    bool              `bson:"respectsLocks" json:"respectsLocks"`
	TriggerIDs       []string          `bson:"triggerIds" json:"triggerIds"`
	BaselineSessions map[string]string `bson:"baselineSessions" json:"-"`
	Metadata         ProposalMetadata  `bson:"metadata" json:"metadata"`
	CreatedAt        time.Time         `bson:"createdAt" json:"createdAt"`
	UpdatedAt        time.Time         `bson:"updatedAt" json:"updatedAt"`
	ApprovedAt       *time.Time        `bson:"approvedAt,omitempty" json:"approvedAt,omitempty"`
	AppliedAt        *time.Time        `bson:"appliedAt,omitempty" json:"appliedAt,omitempty"`
	RejectedAt       *time.Time        `bson:"rejectedAt,omitempty" json:"rejectedAt,omitempty"`
}
