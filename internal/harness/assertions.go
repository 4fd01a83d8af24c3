package harness

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/framestack/internal/encoder"
)

// AssertionError is returned when an assertion fails.
// It includes the submissions to help debug the failure.
type AssertionError struct {
	Type        string // Assertion type for categorization
	Expected    string // Human-readable expected outcome
	Actual      string // Human-readable actual outcome
	Submissions []encoder.Submission
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	fmt.Fprintf(&buf, "\nSubmissions:\n")
	for _, s := range e.Submissions {
		fmt.Fprintf(&buf, "  [%d] dup=%d %s\n", s.Index, s.Dup, s.SHA256[:12])
	}
	return buf.String()
}

// EvaluateAssertions checks every assertion and returns the failure messages.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var msgs []string
	for _, a := range assertions {
		if err := evaluate(result, a); err != nil {
			msgs = append(msgs, err.Error())
		}
	}
	return msgs
}

func evaluate(result *Result, a Assertion) error {
	fail := func(expected, actual string) error {
		return &AssertionError{Type: a.Type, Expected: expected, Actual: actual, Submissions: result.Submissions}
	}

	switch a.Type {
	case AssertSubmissionCount:
		if got := len(result.Submissions); got != a.Count {
			return fail(fmt.Sprintf("%d submissions", a.Count), fmt.Sprintf("%d submissions", got))
		}
	case AssertDups:
		if got := result.Dups(); !slices.Equal(got, a.Dups) {
			return fail(fmt.Sprintf("dups %v", a.Dups), fmt.Sprintf("dups %v", got))
		}
	case AssertFrames:
		if got := result.Stats.Frames; got != uint64(a.Count) {
			return fail(fmt.Sprintf("%d frames", a.Count), fmt.Sprintf("%d frames", got))
		}
	case AssertGenerations:
		if got := result.Stats.Generations; got != uint64(a.Count) {
			return fail(fmt.Sprintf("%d generations", a.Count), fmt.Sprintf("%d generations", got))
		}
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
	return nil
}
