package testutil

import (
	"errors"
	"sync"

	"github.com/roach88/framestack/internal/encoder"
)

// ErrInjected is returned by sinks and openers configured to fail.
var ErrInjected = errors.New("injected failure")

// Submission is one recorded Sink.Submit call.
type Submission struct {
	Frame []byte
	Dup   uint32
}

// RecordingSink records submissions in memory.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type RecordingSink struct {
	mu          sync.Mutex
	params      encoder.Params
	submissions []Submission
	closed      bool
	closes      int
	failAt      int
}

// NewRecordingSink creates a sink that never fails.
func NewRecordingSink(p encoder.Params) *RecordingSink {
	return &RecordingSink{params: p, failAt: -1}
}

// FailAt makes the n-th Submit call (0-based) and every later one fail with
// ErrInjected.
func (s *RecordingSink) FailAt(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failAt = n
}

// Submit records a copy of frame.
func (s *RecordingSink) Submit(frame []byte, dup uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return encoder.ErrSinkClosed
	}
	if s.failAt >= 0 && len(s.submissions) >= s.failAt {
		return ErrInjected
	}
	s.submissions = append(s.submissions, Submission{Frame: append([]byte(nil), frame...), Dup: dup})
	return nil
}

// Close marks the sink closed.
func (s *RecordingSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.closes++
	return nil
}

// Submissions returns the recorded submissions.
func (s *RecordingSink) Submissions() []Submission {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Submission(nil), s.submissions...)
}

// Dups returns the dup count of each submission.
func (s *RecordingSink) Dups() []uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]uint32, len(s.submissions))
	for i, sub := range s.submissions {
		out[i] = sub.Dup
	}
	return out
}

// Closed reports whether Close was called.
func (s *RecordingSink) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Params returns the parameters the sink was opened with.
func (s *RecordingSink) Params() encoder.Params { return s.params }

// RecordingOpener opens RecordingSinks and remembers them.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type RecordingOpener struct {
	mu      sync.Mutex
	sinks   []*RecordingSink
	targets []string
	openErr error
	failAt  int
}

// NewRecordingOpener creates an opener whose sinks never fail.
func NewRecordingOpener() *RecordingOpener {
	return &RecordingOpener{failAt: -1}
}

// FailOpen makes every Open call return err.
func (o *RecordingOpener) FailOpen(err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.openErr = err
}

// FailSubmitAt configures sinks opened later to fail from the n-th submission.
func (o *RecordingOpener) FailSubmitAt(n int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.failAt = n
}

// Open implements encoder.Opener.
func (o *RecordingOpener) Open(target string, p encoder.Params) (encoder.Sink, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.targets = append(o.targets, target)
	if o.openErr != nil {
		return nil, o.openErr
	}
	sink := NewRecordingSink(p)
	sink.failAt = o.failAt
	o.sinks = append(o.sinks, sink)
	return sink, nil
}

// Sinks returns the sinks opened so far.
func (o *RecordingOpener) Sinks() []*RecordingSink {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]*RecordingSink(nil), o.sinks...)
}

// Targets returns the target of every Open call, including failed ones.
func (o *RecordingOpener) Targets() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.targets...)
}

// Sink returns the only opened sink, or nil if none or several were opened.
func (o *RecordingOpener) Sink() *RecordingSink {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.sinks) != 1 {
		return nil
	}
	return o.sinks[0]
}
