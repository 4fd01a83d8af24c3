// Package cadence converts irregular frame timing into encoder duplicate counts.
//
// A frame that stayed on screen for elapsed milliseconds must fill
// ceil(elapsed*rate/1000) output slots. The encoder can only repeat one
// submitted frame a bounded number of times without crossing a keyframe
// boundary, so the slot count is split into runs of at most
// keyFrameInterval-1 duplicates.
package cadence

import (
	"errors"
	"fmt"
)

// ErrInvalidTiming indicates a non-positive frame rate or a keyframe interval
// that is not a power of two of at least 2.
var ErrInvalidTiming = errors.New("invalid timing parameters")

// Plan describes how one frame expands into encoder submissions.
type Plan struct {
	// Target is the total number of output slots the frame must fill.
	Target uint32 `json:"target"`
	// ChunkSize is the largest legal duplicate count per submission.
	ChunkSize uint32 `json:"chunk_size"`
	// FullChunks is the number of submissions with duplicate count ChunkSize.
	FullChunks uint32 `json:"full_chunks"`
	// Remainder is the duplicate count of the trailing submission, 0 if none.
	Remainder uint32 `json:"remainder"`
}

// Emissions returns the duplicate count of every submission, in order.
// The result always has at least one entry.
func (p Plan) Emissions() []uint32 {
	if p.FullChunks == 0 {
		return []uint32{p.Target}
	}
	out := make([]uint32, 0, p.FullChunks+1)
	for i := uint32(0); i < p.FullChunks; i++ {
		out = append(out, p.ChunkSize)
	}
	if p.Remainder != 0 {
		out = append(out, p.Remainder)
	}
	return out
}

// Frames returns the number of output frames produced by executing the plan:
// each submission yields itself plus its duplicates.
func (p Plan) Frames() uint64 {
	var n uint64
	for _, dup := range p.Emissions() {
		n += uint64(dup) + 1
	}
	return n
}

// ValidateTiming checks frame rate and keyframe interval.
func ValidateTiming(frameRate, keyFrameInterval int) error {
	if frameRate <= 0 {
		return fmt.Errorf("%w: frame rate %d must be positive", ErrInvalidTiming, frameRate)
	}
	if !IsPowerOfTwo(keyFrameInterval) || keyFrameInterval < 2 {
		return fmt.Errorf("%w: keyframe interval %d must be a power of two >= 2", ErrInvalidTiming, keyFrameInterval)
	}
	return nil
}

// IsPowerOfTwo reports whether n is a positive power of two.
func IsPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}

// Compute builds the plan for a frame that was on screen for elapsedMs.
// elapsedMs <= 0 yields a single submission with no duplicates.
func Compute(elapsedMs int64, frameRate, keyFrameInterval int) (Plan, error) {
	if err := ValidateTiming(frameRate, keyFrameInterval); err != nil {
		return Plan{}, err
	}
	chunk := uint32(keyFrameInterval - 1)
	if elapsedMs <= 0 {
		return Plan{ChunkSize: chunk}, nil
	}

	if uint64(elapsedMs) > uint64(^uint32(0))*1000/uint64(frameRate) {
		return Plan{}, fmt.Errorf("%w: %dms at %d fps overflows the slot count", ErrInvalidTiming, elapsedMs, frameRate)
	}
	slots := (uint64(elapsedMs)*uint64(frameRate) + 999) / 1000
	target := uint32(slots)

	return Plan{
		Target:     target,
		ChunkSize:  chunk,
		FullChunks: target / chunk,
		Remainder:  target % chunk,
	}, nil
}
