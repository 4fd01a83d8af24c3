package harness

import (
	"sync"

	"github.com/roach88/framestack/internal/encoder"
	"github.com/roach88/framestack/internal/pipeline"
)

// Event kinds recorded in EventOutcome.
const (
	KindFrame      = "frame"
	KindGeneration = "generation"
)

// EventOutcome records what happened to one script event.
type EventOutcome struct {
	Index      int    `json:"index"`
	Kind       string `json:"kind"`
	At         int64  `json:"at"`
	Generation uint64 `json:"generation"`
	Patches    int    `json:"patches"`
	// Error is the error code the event failed with, if any.
	Error string `json:"error,omitempty"`
}

// Result is the outcome of running a script.
type Result struct {
	// Pass is true when every expect clause and assertion held.
	Pass bool `json:"pass"`

	// Session is the session ID.
	Session string `json:"session"`

	// Events holds one outcome per script event.
	Events []EventOutcome `json:"events"`

	// Submissions fingerprints every Sink.Submit call in order.
	Submissions []encoder.Submission `json:"submissions"`

	// Stats are the session counters after Close.
	Stats pipeline.Stats `json:"stats"`

	// CloseError is the error code returned by Close, if any.
	CloseError string `json:"close_error,omitempty"`

	// Errors contains expectation and assertion failures.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:        true,
		Events:      []EventOutcome{},
		Submissions: []encoder.Submission{},
		Errors:      []string{},
	}
}

// AddError adds a failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Dups returns the dup count of every submission.
func (r *Result) Dups() []uint32 {
	out := make([]uint32, len(r.Submissions))
	for i, s := range r.Submissions {
		out[i] = s.Dup
	}
	return out
}

// tap fingerprints submissions before forwarding them to an optional inner
// sink.
type tap struct {
	inner encoder.Opener

	mu   sync.Mutex
	subs []encoder.Submission
}

func (t *tap) Open(target string, p encoder.Params) (encoder.Sink, error) {
	ts := &tapSink{tap: t}
	if t.inner != nil {
		inner, err := t.inner.Open(target, p)
		if err != nil {
			return nil, err
		}
		ts.inner = inner
	}
	return ts, nil
}

func (t *tap) submissions() []encoder.Submission {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]encoder.Submission{}, t.subs...)
}

type tapSink struct {
	tap   *tap
	inner encoder.Sink
}

func (s *tapSink) Submit(buf []byte, dup uint32) error {
	if s.inner != nil {
		if err := s.inner.Submit(buf, dup); err != nil {
			return err
		}
	}
	s.tap.mu.Lock()
	defer s.tap.mu.Unlock()
	s.tap.subs = append(s.tap.subs, encoder.NewSubmission(len(s.tap.subs), buf, dup))
	return nil
}

func (s *tapSink) Close() error {
	if s.inner != nil {
		return s.inner.Close()
	}
	return nil
}
