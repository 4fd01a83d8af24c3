package pipeline

import (
	"errors"
	"fmt"

	"github.com/roach88/framestack/internal/cadence"
	"github.com/roach88/framestack/internal/fragment"
	"github.com/roach88/framestack/internal/frame"
)

// ErrorCode categorizes session errors.
type ErrorCode string

const (
	// CodeValidation indicates bad coordinates, dimensions or configuration.
	// Rejected synchronously with no state change.
	CodeValidation ErrorCode = "VALIDATION"

	// CodeUninitializedCanvas indicates a partial patch before the first full frame.
	CodeUninitializedCanvas ErrorCode = "UNINITIALIZED_CANVAS"

	// CodeGenerationNotFound indicates a generation with no record.
	CodeGenerationNotFound ErrorCode = "GENERATION_NOT_FOUND"

	// CodeIncompletePersistence indicates a generation whose fragments could not
	// all be read back.
	CodeIncompletePersistence ErrorCode = "INCOMPLETE_PERSISTENCE"

	// CodeEncoderFailure indicates a failed sink submission. Fatal for the session.
	CodeEncoderFailure ErrorCode = "ENCODER_FAILURE"

	// CodeSessionClosed indicates use of a closed session.
	CodeSessionClosed ErrorCode = "SESSION_CLOSED"

	// CodeResource indicates a failure to acquire the output or buffers.
	CodeResource ErrorCode = "RESOURCE"
)

// Sentinels matching each code with errors.Is. Structural codes share the
// sentinels of the packages that detect them.
var (
	ErrValidation            = errors.New("validation failed")
	ErrUninitializedCanvas   = frame.ErrUninitializedCanvas
	ErrGenerationNotFound    = fragment.ErrGenerationNotFound
	ErrIncompletePersistence = fragment.ErrIncompletePersistence
	ErrEncoderFailure        = errors.New("encoder failure")
	ErrSessionClosed         = errors.New("session closed")
	ErrResource              = errors.New("resource unavailable")
)

var sentinels = map[ErrorCode]error{
	CodeValidation:            ErrValidation,
	CodeUninitializedCanvas:   ErrUninitializedCanvas,
	CodeGenerationNotFound:    ErrGenerationNotFound,
	CodeIncompletePersistence: ErrIncompletePersistence,
	CodeEncoderFailure:        ErrEncoderFailure,
	CodeSessionClosed:         ErrSessionClosed,
	CodeResource:              ErrResource,
}

// Error is a coded session error.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Session identifies the affected session.
	Session string

	// Generation is the affected generation, when Code concerns one.
	Generation *uint64

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Generation != nil {
		msg = fmt.Sprintf("%s (generation=%d)", msg, *e.Generation)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap exposes both the code sentinel and the cause to errors.Is/As.
func (e *Error) Unwrap() []error {
	errs := make([]error, 0, 2)
	if s, ok := sentinels[e.Code]; ok {
		errs = append(errs, s)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

func newError(code ErrorCode, session, message string, err error) *Error {
	return &Error{Code: code, Message: message, Session: session, Err: err}
}

func (e *Error) withGeneration(gen uint64) *Error {
	e.Generation = &gen
	return e
}

// classify maps an error from a lower layer onto a session error code.
func classify(err error) ErrorCode {
	var se *Error
	switch {
	case errors.As(err, &se):
		return se.Code
	case errors.Is(err, frame.ErrUninitializedCanvas):
		return CodeUninitializedCanvas
	case errors.Is(err, fragment.ErrIncompletePersistence):
		return CodeIncompletePersistence
	case errors.Is(err, fragment.ErrGenerationNotFound):
		return CodeGenerationNotFound
	case errors.Is(err, frame.ErrOutOfBounds),
		errors.Is(err, frame.ErrInvalidPatch),
		errors.Is(err, frame.ErrInvalidFormat),
		errors.Is(err, frame.ErrInvalidDimensions),
		errors.Is(err, cadence.ErrInvalidTiming):
		return CodeValidation
	default:
		return CodeResource
	}
}

// CodeOf returns the code of a session error, or "" for other errors.
func CodeOf(err error) ErrorCode {
	var se *Error
	if errors.As(err, &se) {
		return se.Code
	}
	return ""
}

// IsEncoderFailure reports whether err is an encoder failure.
// Uses errors.Is to handle wrapped errors.
func IsEncoderFailure(err error) bool {
	return errors.Is(err, ErrEncoderFailure)
}

// IsSessionClosed reports whether err reports a closed session.
func IsSessionClosed(err error) bool {
	return errors.Is(err, ErrSessionClosed)
}

// IsValidation reports whether err is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}
