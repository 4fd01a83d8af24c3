// Package encoder defines the streaming encoder sink consumed by the pipeline
// and provides raw-video and trace implementations.
//
// A Sink is an ordered, append-only stream. Submit hands it one full frame plus
// a duplicate count: the sink must output the frame dup+1 times. A failed
// Submit leaves the stream in an undefined state and is fatal for the session.
package encoder

import (
	"errors"
	"fmt"

	"github.com/roach88/framestack/internal/frame"
)

// ErrSinkClosed indicates a submission to a closed sink.
var ErrSinkClosed = errors.New("encoder sink closed")

// Params describes the stream a sink is opened for.
type Params struct {
	Width            int
	Height           int
	FrameRate        int
	Quality          int
	KeyFrameInterval int
	Format           frame.PixelFormat
}

// FrameSize returns the packed byte size of one input frame.
func (p Params) FrameSize() int {
	return p.Width * p.Height * p.Format.BytesPerPixel()
}

// Sink consumes composited frames in order.
type Sink interface {
	// Submit encodes frame once followed by dup repetitions.
	Submit(frame []byte, dup uint32) error
	// Close flushes buffered output and releases resources.
	Close() error
}

// Opener creates a sink for an output target. Opening writes the stream
// header, so it happens exactly once per session.
type Opener interface {
	Open(target string, p Params) (Sink, error)
}

// OpenerFunc adapts a function to the Opener interface.
type OpenerFunc func(target string, p Params) (Sink, error)

// Open calls f.
func (f OpenerFunc) Open(target string, p Params) (Sink, error) {
	return f(target, p)
}

// checkFrame validates a submitted buffer against the stream parameters.
func checkFrame(p Params, buf []byte) error {
	if len(buf) != p.FrameSize() {
		return fmt.Errorf("frame is %d bytes, stream expects %d", len(buf), p.FrameSize())
	}
	return nil
}
