// Package apperr holds the error vocabulary shared by the reminder and poll
// managers. Errors in this package are safe to show to the requesting user
// verbatim.
package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrPermissionDenied = errors.New("you can only cancel reminders you created or that were set for you")
	ErrNotFound         = errors.New("no active reminder with that id")
)

// Kind classifies a validation failure.
type Kind string

const (
	InvalidTimeFormat  Kind = "invalid_time_format"
	DurationOutOfRange Kind = "duration_out_of_range"
	InvalidTarget      Kind = "invalid_target"
	TooFewOptions      Kind = "too_few_options"
	TooManyOptions     Kind = "too_many_options"
	DuplicateOptions   Kind = "duplicate_options"
	EmptyQuestion      Kind = "empty_question"
	EmptyMessage       Kind = "empty_message"
	TooManyOpenPolls   Kind = "too_many_open_polls"
)

// ValidationError rejects a request before any state is created.
type ValidationError struct {
	Kind Kind
	Msg  string
}

func (e *ValidationError) Error() string { return e.Msg }

// Invalid builds a ValidationError with a formatted message.
//
// Example:
//
//	return apperr.Invalid(apperr.TooManyOptions, "at most %d options", 10)
func Invalid(kind Kind, format string, args ...any) error {
	return &ValidationError{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// KindOf returns the validation kind of err, or "" when err is not a
// ValidationError.
func KindOf(err error) Kind {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Kind
	}
	return ""
}

// IsUserFacing reports whether err may be shown to the requester as-is.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	if KindOf(err) != "" {
		return true
	}
	return errors.Is(err, ErrPermissionDenied) || errors.Is(err, ErrNotFound)
}
