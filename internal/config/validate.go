package config

import (
	"fmt"
	"strings"

	"github.com/roach88/framestack/internal/cadence"
	"github.com/roach88/framestack/internal/frame"
	"github.com/roach88/framestack/internal/pipeline"
	"github.com/roach88/framestack/internal/store"
)

// Validation error codes.
const (
	CodeInvalidDimension = "E201"
	CodeInvalidFormat    = "E202"
	CodeInvalidRate      = "E203"
	CodeInvalidQuality   = "E204"
	CodeInvalidKeyFrame  = "E205"
	CodeInvalidStore     = "E206"
	CodeInvalidWorkers   = "E207"
)

// ValidationError represents a single invalid field.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s: %s", e.Code, e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// ValidationErrors is every problem found in one Session.
type ValidationErrors []ValidationError

// Error joins the individual messages.
func (v ValidationErrors) Error() string {
	msgs := make([]string, len(v))
	for i, e := range v {
		msgs[i] = e.Error()
	}
	return strings.Join(msgs, "; ")
}

// Validate checks every field and returns ValidationErrors, or nil.
// Returns all errors found (does not fail-fast).
func (s Session) Validate() error {
	var errs ValidationErrors
	add := func(field, code, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Code: code, Message: fmt.Sprintf(format, args...)})
	}

	if s.Width <= 0 {
		add("width", CodeInvalidDimension, "must be positive, got %d", s.Width)
	}
	if s.Height <= 0 {
		add("height", CodeInvalidDimension, "must be positive, got %d", s.Height)
	}
	if err := frame.PixelFormat(s.PixelFormat).Validate(); err != nil {
		add("pixel_format", CodeInvalidFormat, "must be one of %v, got %q", frame.ValidFormats, s.PixelFormat)
	}
	if s.FrameRate <= 0 {
		add("frame_rate", CodeInvalidRate, "must be positive, got %d", s.FrameRate)
	}
	if s.Quality < 0 || s.Quality > pipeline.MaxQuality {
		add("quality", CodeInvalidQuality, "must be in 0..%d, got %d", pipeline.MaxQuality, s.Quality)
	}
	if s.KeyFrameInterval < 2 || !cadence.IsPowerOfTwo(s.KeyFrameInterval) {
		add("keyframe_interval", CodeInvalidKeyFrame, "must be a power of two >= 2, got %d", s.KeyFrameInterval)
	}
	if !validKind(s.Store) {
		add("store", CodeInvalidStore, "must be one of %v, got %q", store.ValidKinds, s.Store)
	} else if store.Kind(s.Store) != store.KindMemory && s.StorePath == "" {
		add("store_path", CodeInvalidStore, "required for store %q", s.Store)
	}
	if s.Workers <= 0 {
		add("workers", CodeInvalidWorkers, "must be positive, got %d", s.Workers)
	}

	if len(errs) == 0 {
		return nil
	}
	return errs
}

func validKind(kind string) bool {
	for _, k := range store.ValidKinds {
		if string(k) == kind {
			return true
		}
	}
	return false
}
