package cadence

// Scheduler tracks the timestamp of the previously emitted frame and decides
// whether a new frame requires padding.
//
// Padding starts only once a previous non-zero timestamp exists, so the first
// timestamped transition of a session is never padded. A zero or non-advancing
// timestamp produces no padding.
type Scheduler struct {
	frameRate        int
	keyFrameInterval int
	last             int64
}

// NewScheduler validates the timing parameters and returns a Scheduler with no
// previous timestamp.
func NewScheduler(frameRate, keyFrameInterval int) (*Scheduler, error) {
	if err := ValidateTiming(frameRate, keyFrameInterval); err != nil {
		return nil, err
	}
	return &Scheduler{frameRate: frameRate, keyFrameInterval: keyFrameInterval}, nil
}

// Pad returns the plan for re-emitting the previous frame up to timestamp and
// whether any padding applies. It does not record timestamp; call Advance once
// the current frame has been emitted.
func (s *Scheduler) Pad(timestamp int64) (Plan, bool, error) {
	if s.last == 0 || timestamp <= s.last {
		return Plan{}, false, nil
	}
	plan, err := Compute(timestamp-s.last, s.frameRate, s.keyFrameInterval)
	if err != nil {
		return Plan{}, false, err
	}
	return plan, true, nil
}

// Advance records timestamp as the previous frame's timestamp.
func (s *Scheduler) Advance(timestamp int64) {
	s.last = timestamp
}

// Last returns the recorded timestamp, 0 if none.
func (s *Scheduler) Last() int64 { return s.last }
