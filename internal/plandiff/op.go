// Package plandiff defines the closed set of plan mutation operations, their
// wire format, and the in-memory semantics shared by apply, validation and
// preview.
package plandiff

// OpType is the wire discriminator of an operation.
type OpType string

const (
	OpUpdateSession    OpType = "UPDATE_SESSION"
	OpSwapSessionType  OpType = "SWAP_SESSION_TYPE"
	OpRemoveSession    OpType = "REMOVE_SESSION"
	OpAdjustWeekVolume OpType = "ADJUST_WEEK_VOLUME"
	OpAddNote          OpType = "ADD_NOTE"
)

// AllOpTypes lists every operation type in declaration order.
var AllOpTypes = []OpType{OpUpdateSession, OpSwapSessionType, OpRemoveSession, OpAdjustWeekVolume, OpAddNote}

// Visitor is implemented by every consumer that dispatches on the operation
// kind. Adding an operation adds a method here, so every dispatcher fails to
// compile until it handles the new case.
type Visitor interface {
	UpdateSession(op *UpdateSession) error
	SwapSessionType(op *SwapSessionType) error
	RemoveSession(op *RemoveSession) error
	AdjustWeekVolume(op *AdjustWeekVolume) error
	AddNote(op *AddNote) error
}

// Op is one typed plan mutation. The set of implementations is closed.
type Op interface {
	Type() OpType
	Accept(v Visitor) error
	sealed()
}

// Diff is an ordered list of operations. Order is significant.
type Diff []Op

// SessionPatch lists the fields UPDATE_SESSION may change. Nil fields are left
// untouched. Notes replaces the current notes; ClearNotes resets them to null.
type SessionPatch struct {
	Discipline      *string `json:"discipline,omitempty" validate:"omitempty,min=1,max=64"`
	Type            *string `json:"type,omitempty" validate:"omitempty,min=1,max=64"`
	DurationMinutes *int    `json:"durationMinutes,omitempty" validate:"omitempty,min=0,max=10000"`
	Notes           *string `json:"notes,omitempty" validate:"omitempty,max=4000"`
	ClearNotes      bool    `json:"clearNotes,omitempty"`
}

// IsEmpty reports whether the patch changes nothing.
func (p SessionPatch) IsEmpty() bool {
	return p.Discipline == nil && p.Type == nil && p.DurationMinutes == nil && p.Notes == nil && !p.ClearNotes
}

type UpdateSession struct {
	SessionID string       `json:"sessionId" validate:"required"`
	Patch     SessionPatch `json:"patch"`
}

type SwapSessionType struct {
	SessionID string `json:"sessionId" validate:"required"`
	NewType   string `json:"newType" validate:"required,max=64"`
}

type RemoveSession struct {
	SessionID string `json:"sessionId" validate:"required"`
}

// AdjustWeekVolume scales every unlocked session in a week by (1+PctDelta).
type AdjustWeekVolume struct {
	WeekIndex int     `json:"weekIndex" validate:"min=0"`
	PctDelta  float64 `json:"pctDelta" validate:"min=-0.9,max=1"`
}

// Note target kinds.
const (
	TargetSession = "session"
	TargetWeek    = "week"
)

// NoteTarget addresses either one session or every unlocked session of a week.
type NoteTarget struct {
	Kind      string `json:"kind" validate:"required,oneof=session week"`
	SessionID string `json:"sessionId,omitempty" validate:"required_if=Kind session"`
	WeekIndex *int   `json:"weekIndex,omitempty" validate:"required_if=Kind week"`
}

type AddNote struct {
	Target NoteTarget `json:"target"`
	Text   string     `json:"text" validate:"required,max=2000"`
}

func (*UpdateSession) Type() OpType    { return OpUpdateSession }
func (*SwapSessionType) Type() OpType  { return OpSwapSessionType }
func (*RemoveSession) Type() OpType    { return OpRemoveSession }
func (*AdjustWeekVolume) Type() OpType { return OpAdjustWeekVolume }
func (*AddNote) Type() OpType          { return OpAddNote }

func (o *UpdateSession) Accept(v Visitor) error    { return v.UpdateSession(o) }
func (o *SwapSessionType) Accept(v Visitor) error  { return v.SwapSessionType(o) }
func (o *RemoveSession) Accept(v Visitor) error    { return v.RemoveSession(o) }
func (o *AdjustWeekVolume) Accept(v Visitor) error { return v.AdjustWeekVolume(o) }
func (o *AddNote) Accept(v Visitor) error          { return v.AddNote(o) }

func (*UpdateSession) sealed()    {}
func (*SwapSessionType) sealed()  {}
func (*RemoveSession) sealed()    {}
func (*AdjustWeekVolume) sealed() {}
func (*AddNote) sealed()          {}

// SessionRef returns the session id an op addresses directly, or "" for
// week-scoped ops.
func SessionRef(op Op) string {
	switch o := op.(type) {
	case *UpdateSession:
		return o.SessionID
	case *SwapSessionType:
		return o.SessionID
	case *RemoveSession:
		return o.SessionID
	case *AddNote:
		if o.Target.Kind == TargetSession {
			return o.Target.SessionID
		}
	}
	return ""
}

// WeekRef returns the week index a week-scoped op addresses.
func WeekRef(op Op) (int, bool) {
	switch o := op.(type) {
	case *AdjustWeekVolume:
		return o.WeekIndex, true
	case *AddNote:
		if o.Target.Kind == TargetWeek && o.Target.WeekIndex != nil {
			return *o.Target.WeekIndex, true
		}
	}
	return 0, false
}

// Clone deep-copies the diff so rewriting never mutates the caller's ops.
func (d Diff) Clone() Diff {
	out := make(Diff, 0, len(d))
	for _, op := range d {
		switch o := op.(type) {
		case *UpdateSession:
			c := *o
			c.Patch = SessionPatch{
				Discipline:      cloneString(o.Patch.Discipline),
				Type:            cloneString(o.Patch.Type),
				DurationMinutes: cloneInt(o.Patch.DurationMinutes),
				Notes:           cloneString(o.Patch.Notes),
				ClearNotes:      o.Patch.ClearNotes,
			}
			out = append(out, &c)
		case *SwapSessionType:
			c := *o
			out = append(out, &c)
		case *RemoveSession:
			c := *o
			out = append(out, &c)
		case *AdjustWeekVolume:
			c := *o
			out = append(out, &c)
		case *AddNote:
			c := *o
			c.Target.WeekIndex = cloneInt(o.Target.WeekIndex)
			out = append(out, &c)
		}
	}
	return out
}

// CountByType tallies ops per type.
func (d Diff) CountByType() map[string]int {
	counts := make(map[string]int, len(AllOpTypes))
	for _, op := range d {
		counts[string(op.Type())]++
	}
	return counts
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneInt(i *int) *int {
	if i == nil {
		return nil
	}
	v := *i
	return &v
}

// StringPtr and IntPtr are small helpers for building patches.
func StringPtr(s string) *string { return &s }
func IntPtr(i int) *int          { return &i }
