package tide

import (
	"context"
	"errors"
	"fmt"
)

// ErrorKind classifies a failure of the calendar pipeline.
type ErrorKind string

const (
	KindInvalidSelection    ErrorKind = "InvalidSelection"
	KindInvalidDateRange    ErrorKind = "InvalidDateRange"
	KindMissingCredentials  ErrorKind = "MissingCredentials"
	KindUpstreamUnavailable ErrorKind = "UpstreamUnavailable"
	KindUpstreamFormat      ErrorKind = "UpstreamFormatError"
	KindNoData              ErrorKind = "NoData"
	// KindInternal covers failures that are not the caller's or an upstream's doing.
	KindInternal ErrorKind = "Internal"
)

// Sentinels for errors.Is; matching is by kind only.
var (
	ErrInvalidSelection    = &Error{Kind: KindInvalidSelection}
	ErrInvalidDateRange    = &Error{Kind: KindInvalidDateRange}
	ErrMissingCredentials  = &Error{Kind: KindMissingCredentials}
	ErrUpstreamUnavailable = &Error{Kind: KindUpstreamUnavailable}
	ErrUpstreamFormat      = &Error{Kind: KindUpstreamFormat}
	ErrNoData              = &Error{Kind: KindNoData}
	ErrInternal            = &Error{Kind: KindInternal}
)

// Error is a user-facing pipeline failure. Message is written for the end
// user; Err keeps the technical cause.
type Error struct {
	Kind    ErrorKind
	Stage   Stage
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Stage != "" {
		msg = fmt.Sprintf("%s: %s", e.Stage, msg)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func newError(kind ErrorKind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func NewInvalidSelectionError(message string) *Error {
	return newError(KindInvalidSelection, message, nil)
}

func NewInvalidRangeError(message string, err error) *Error {
	return newError(KindInvalidDateRange, message, err)
}

func NewMissingCredentialsError(message string) *Error {
	return newError(KindMissingCredentials, message, nil)
}

func NewUpstreamUnavailableError(message string, err error) *Error {
	return newError(KindUpstreamUnavailable, message, err)
}

func NewUpstreamFormatError(message string, err error) *Error {
	return newError(KindUpstreamFormat, message, err)
}

func NewNoDataError(message string) *Error {
	return newError(KindNoData, message, nil)
}

// KindOf returns the kind of the first *Error in err's chain, or "".
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// UserMessage is the human-readable part of err, without the technical cause.
func UserMessage(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	if err == nil {
		return ""
	}
	return err.Error()
}

// atStage stamps err with the stage it escaped from, keeping an earlier stamp.
func atStage(err error, stage Stage) error {
	var e *Error
	if !errors.As(err, &e) {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return &Error{Kind: KindUpstreamUnavailable, Stage: stage, Message: "délai dépassé, la source n'a pas répondu à temps", Err: err}
		}
		return &Error{Kind: KindInternal, Stage: stage, Message: "erreur interne", Err: err}
	}
	if e.Stage != "" {
		return err
	}
	stamped := *e
	stamped.Stage = stage
	return &stamped
}
