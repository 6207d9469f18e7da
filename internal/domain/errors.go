package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode is the stable machine-readable code carried by every engine error.
type ErrorCode string

const (
	CodeNotFound          ErrorCode = "NOT_FOUND"
	CodeForbidden         ErrorCode = "FORBIDDEN"
	CodeWeekLocked        ErrorCode = "WEEK_LOCKED"
	CodeSessionLocked     ErrorCode = "SESSION_LOCKED"
	CodeInvalidDiff       ErrorCode = "INVALID_DIFF"
	CodeHardSafetyBlocked ErrorCode = "HARD_SAFETY_BLOCKED"
	CodeProposalConflict  ErrorCode = "PROPOSAL_CONFLICT"
	CodeInvalidStatus     ErrorCode = "INVALID_STATUS"
	CodeUndoNotAvailable  ErrorCode = "UNDO_NOT_AVAILABLE"
)

// maxErrorReasons caps the reasons surfaced by HARD_SAFETY_BLOCKED.
const maxErrorReasons = 3

// Sentinels for errors.Is matching; Is compares by code only.
var (
	ErrNotFound          = &Error{Code: CodeNotFound}
	ErrForbidden         = &Error{Code: CodeForbidden}
	ErrWeekLocked        = &Error{Code: CodeWeekLocked}
	ErrSessionLocked     = &Error{Code: CodeSessionLocked}
	ErrInvalidDiff       = &Error{Code: CodeInvalidDiff}
	ErrHardSafetyBlocked = &Error{Code: CodeHardSafetyBlocked}
	ErrProposalConflict  = &Error{Code: CodeProposalConflict}
	ErrInvalidStatus     = &Error{Code: CodeInvalidStatus}
	ErrUndoNotAvailable  = &Error{Code: CodeUndoNotAvailable}
)

// Error is a typed engine error. It propagates unmodified to callers.
type Error struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Reasons []string  `json:"reasons,omitempty"`
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Code)
	}
	if len(e.Reasons) > 0 {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, strings.Join(e.Reasons, "; "))
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is matches any *Error with the same code.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// Errorf builds a coded error.
func Errorf(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// HardSafetyBlocked builds a HARD_SAFETY_BLOCKED error carrying at most three reasons.
func HardSafetyBlocked(reasons []string) *Error {
	r := reasons
	if len(r) > maxErrorReasons {
		r = r[:maxErrorReasons]
	}
	return &Error{
		Code:    CodeHardSafetyBlocked,
		Message: fmt.Sprintf("diff failed %d hard safety check(s)", len(reasons)),
		Reasons: append([]string(nil), r...),
	}
}

// CodeOf returns the code of err, or "" when err is not an engine error.
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
