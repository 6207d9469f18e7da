package plandiff

import (
	"encoding/json"
	"fmt"

	"alcyxob/coaching-platform/internal/domain"
)

// envelope is the flat wire shape of one op: {"op": "...", ...fields}.
type envelope struct {
	Op        OpType        `json:"op"`
	SessionID string        `json:"sessionId,omitempty"`
	Patch     *SessionPatch `json:"patch,omitempty"`
	NewType   string        `json:"newType,omitempty"`
	WeekIndex *int          `json:"weekIndex,omitempty"`
	PctDelta  *float64      `json:"pctDelta,omitempty"`
	Target    *NoteTarget   `json:"target,omitempty"`
	Text      string        `json:"text,omitempty"`
}

// MarshalJSON encodes the diff as an ordered JSON array of tagged ops.
func (d Diff) MarshalJSON() ([]byte, error) {
	out := make([]envelope, 0, len(d))
	for _, op := range d {
		env := envelope{Op: op.Type()}
		switch o := op.(type) {
		case *UpdateSession:
			patch := o.Patch
			env.SessionID, env.Patch = o.SessionID, &patch
		case *SwapSessionType:
			env.SessionID, env.NewType = o.SessionID, o.NewType
		case *RemoveSession:
			env.SessionID = o.SessionID
		case *AdjustWeekVolume:
			w, p := o.WeekIndex, o.PctDelta
			env.WeekIndex, env.PctDelta = &w, &p
		case *AddNote:
			t := o.Target
			env.Target, env.Text = &t, o.Text
		default:
			return nil, fmt.Errorf("plandiff: unsupported op %T", op)
		}
		out = append(out, env)
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes a tagged op array. Unknown op tags are rejected.
func (d *Diff) UnmarshalJSON(data []byte) error {
	var envs []envelope
	if err := json.Unmarshal(data, &envs); err != nil {
		return err
	}
	ops := make(Diff, 0, len(envs))
	for i, env := range envs {
		switch env.Op {
		case OpUpdateSession:
			op := &UpdateSession{SessionID: env.SessionID}
			if env.Patch != nil {
				op.Patch = *env.Patch
			}
			ops = append(ops, op)
		case OpSwapSessionType:
			ops = append(ops, &SwapSessionType{SessionID: env.SessionID, NewType: env.NewType})
		case OpRemoveSession:
			ops = append(ops, &RemoveSession{SessionID: env.SessionID})
		case OpAdjustWeekVolume:
			if env.WeekIndex == nil || env.PctDelta == nil {
				return fmt.Errorf("op %d: %s requires weekIndex and pctDelta", i, env.Op)
			}
			ops = append(ops, &AdjustWeekVolume{WeekIndex: *env.WeekIndex, PctDelta: *env.PctDelta})
		case OpAddNote:
			if env.Target == nil {
				return fmt.Errorf("op %d: %s requires target", i, env.Op)
			}
			ops = append(ops, &AddNote{Target: *env.Target, Text: env.Text})
		default:
			return fmt.Errorf("op %d: unknown op %q", i, env.Op)
		}
	}
	*d = ops
	return nil
}

// Parse decodes and schema-validates a diff. Any failure is INVALID_DIFF.
func Parse(raw []byte) (Diff, error) {
	var d Diff
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, domain.Errorf(domain.CodeInvalidDiff, "malformed diff: %v", err)
	}
	if err := Validate(d); err != nil {
		return nil, err
	}
	return d, nil
}

// Encode renders the diff as its canonical JSON string.
func Encode(d Diff) (string, error) {
	if d == nil {
		d = Diff{}
	}
	b, err := json.Marshal(d)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Decode decodes a stored diff that was validated when it was written.
func Decode(raw string) (Diff, error) {
	if raw == "" {
		return Diff{}, nil
	}
	return Parse([]byte(raw))
}
