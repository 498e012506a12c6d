// Package apperr holds the error taxonomy surfaced to callers of the league engine.
package apperr

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

type Kind int

const (
	KindValidation Kind = iota
	KindState
	KindNotFound
	KindPermission
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindState:
		return "state"
	case KindNotFound:
		return "not_found"
	case KindPermission:
		return "permission"
	}
	return "unknown"
}

// Error is a recoverable failure of a single engine call. It is never retried.
type Error struct {
	Kind    Kind
	Code    string
	Message string

	// Context for diagnosing the failure without re-deriving state
	LeagueID uuid.UUID
	State    string

	Err error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if e.LeagueID != uuid.Nil {
		msg += fmt.Sprintf(" (league %s", e.LeagueID)
		if e.State != "" {
			msg += ", status " + e.State
		}
		msg += ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// WithLeague attaches the league id and its current status.
func (e *Error) WithLeague(id uuid.UUID, state string) *Error {
	e.LeagueID = id
	e.State = state
	return e
}

func Validation(code, format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Code: code, Message: fmt.Sprintf(format, args...)}
}

func State(code, format string, args ...any) *Error {
	return &Error{Kind: KindState, Code: code, Message: fmt.Sprintf(format, args...)}
}

func NotFound(code, format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Code: code, Message: fmt.Sprintf(format, args...)}
}

func Permission(code, format string, args ...any) *Error {
	return &Error{Kind: KindPermission, Code: code, Message: fmt.Sprintf(format, args...)}
}

// IsKind reports whether any error in the chain is an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind == kind
	}
	return false
}

// CodeOf returns the code of the first *Error in the chain, or "".
func CodeOf(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}
