package plandiff

import (
	"fmt"

	"alcyxob/coaching-platform/internal/domain"

	"github.com/go-playground/validator/v10"
)

// MaxOps bounds the size of a single diff.
const MaxOps = 200

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the diff against the operation schema. It does not consult
// plan state; existence and lock checks happen at apply time.
func Validate(d Diff) error {
	if len(d) > MaxOps {
		return domain.Errorf(domain.CodeInvalidDiff, "diff has %d ops, max %d", len(d), MaxOps)
	}
	for i, op := range d {
		if op == nil {
			return domain.Errorf(domain.CodeInvalidDiff, "op %d is null", i)
		}
		if err := validate.Struct(op); err != nil {
			return domain.Errorf(domain.CodeInvalidDiff, "op %d (%s): %v", i, op.Type(), err)
		}
		if err := op.Accept(schemaChecks{}); err != nil {
			return domain.Errorf(domain.CodeInvalidDiff, "op %d (%s): %v", i, op.Type(), err)
		}
	}
	return nil
}

// schemaChecks covers rules struct tags cannot express.
type schemaChecks struct{}

func (schemaChecks) UpdateSession(op *UpdateSession) error {
	if op.Patch.IsEmpty() {
		return fmt.Errorf("patch is empty")
	}
	if op.Patch.ClearNotes && op.Patch.Notes != nil {
		return fmt.Errorf("patch cannot both set and clear notes")
	}
	return nil
}

func (schemaChecks) SwapSessionType(*SwapSessionType) error { return nil }

func (schemaChecks) RemoveSession(*RemoveSession) error { return nil }

func (schemaChecks) AdjustWeekVolume(*AdjustWeekVolume) error { return nil }

func (schemaChecks) AddNote(op *AddNote) error {
	if op.Target.Kind == TargetWeek && op.Target.WeekIndex != nil && *op.Target.WeekIndex < 0 {
		return fmt.Errorf("target weekIndex must be >= 0")
	}
	return nil
}
