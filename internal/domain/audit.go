package domain

import "time"

// AuditEventType names an append-only plan change event.
type AuditEventType string

const (
	AuditApplyProposal       AuditEventType = "APPLY_PROPOSAL"
	AuditReopenProposal      AuditEventType = "REOPEN_PROPOSAL"
	AuditUndoProposalCreated AuditEventType = "UNDO_PROPOSAL_CREATED"
)

// PlanChangeAudit is an append-only record of a lifecycle event. Apply events
// reference the BeforeState captured just before the diff landed.
type PlanChangeAudit struct {
	ID           string            `bson:"_id" json:"id"`
	DraftID      string            `bson:"draftId" json:"draftId"`
	ProposalID   string            `bson:"proposalId" json:"proposalId"`
	CoachID      string            `bson:"coachId" json:"coachId"`
	EventType    AuditEventType    `bson:"eventType" json:"eventType"`
	DiffJSON     string            `bson:"diffJson" json:"diffJson"`
	CheckpointID string            `bson:"checkpointId,omitempty" json:"checkpointId,omitempty"`
	Metadata     map[string]string `bson:"metadata,omitempty" json:"metadata,omitempty"`
	CreatedAt    time.Time         `bson:"createdAt" json:"createdAt"`
}

// SessionBeforeState is the pre-apply content of one touched session.
type SessionBeforeState struct {
	SessionID       string  `bson:"sessionId" json:"sessionId"`
	WeekIndex       int     `bson:"weekIndex" json:"weekIndex"`
	Ordinal         int     `bson:"ordinal" json:"ordinal"`
	Discipline      string  `bson:"discipline" json:"discipline"`
	Type            string  `bson:"type" json:"type"`
	DurationMinutes int     `bson:"durationMinutes" json:"durationMinutes"`
	Notes           *string `bson:"notes,omitempty" json:"notes,omitempty"`
}

// BeforeState is the undo checkpoint of an apply: a snapshot of every session
// the diff touched, taken inside the apply transaction.
type BeforeState struct {
	ID         string               `bson:"_id" json:"id"`
	DraftID    string               `bson:"draftId" json:"draftId"`
	ProposalID string               `bson:"proposalId" json:"proposalId"`
	Sessions   []SessionBeforeState `bson:"sessions" json:"sessions"`
	CreatedAt  time.Time            `bson:"createdAt" json:"createdAt"`
}
