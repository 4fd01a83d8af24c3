package encoder

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/roach88/framestack/internal/colorspace"
)

// Y4M writes a YUV4MPEG2 stream of I420 frames.
//
// Duplicates are written as repeated FRAME records, so the output has exactly
// one record per output slot. Quality and keyframe interval have no meaning in
// raw video; they are recorded as X-tags in the stream header.
type Y4M struct {
	params Params
	w      *bufio.Writer
	closer io.Closer
	yuv    []byte
	frames uint64
	closed bool
}

// OpenY4M creates the file at target and writes the stream header.
func OpenY4M(target string, p Params) (Sink, error) {
	f, err := os.Create(target)
	if err != nil {
		return nil, fmt.Errorf("could not open %s: %w", target, err)
	}
	sink, err := NewY4M(f, p)
	if err != nil {
		f.Close()
		return nil, err
	}
	return sink, nil
}

// Y4MOpener opens Y4M file sinks.
var Y4MOpener = OpenerFunc(OpenY4M)

// NewY4M writes the stream header to w and returns the sink. If w is an
// io.Closer it is closed by Close.
func NewY4M(w io.Writer, p Params) (*Y4M, error) {
	if err := p.Format.Validate(); err != nil {
		return nil, err
	}
	if p.Width <= 0 || p.Height <= 0 || p.FrameRate <= 0 {
		return nil, fmt.Errorf("invalid y4m params %dx%d @ %d fps", p.Width, p.Height, p.FrameRate)
	}
	s := &Y4M{
		params: p,
		w:      bufio.NewWriterSize(w, 1<<16),
		yuv:    make([]byte, colorspace.FrameSize(p.Width, p.Height)),
	}
	if c, ok := w.(io.Closer); ok {
		s.closer = c
	}
	header := fmt.Sprintf("YUV4MPEG2 W%d H%d F%d:1 Ip A1:1 C420jpeg XQUALITY=%d XKEYINT=%d\n",
		p.Width, p.Height, p.FrameRate, p.Quality, p.KeyFrameInterval)
	if _, err := s.w.WriteString(header); err != nil {
		return nil, fmt.Errorf("write y4m header: %w", err)
	}
	return s, nil
}

// Submit converts buf to I420 once and writes it dup+1 times.
func (s *Y4M) Submit(buf []byte, dup uint32) error {
	if s.closed {
		return ErrSinkClosed
	}
	if err := checkFrame(s.params, buf); err != nil {
		return fmt.Errorf("y4m submit: %w", err)
	}
	if err := colorspace.ConvertInto(s.yuv, buf, s.params.Format, s.params.Width, s.params.Height); err != nil {
		return fmt.Errorf("y4m submit: %w", err)
	}
	for i := uint64(0); i <= uint64(dup); i++ {
		if _, err := s.w.WriteString("FRAME\n"); err != nil {
			return fmt.Errorf("y4m submit: %w", err)
		}
		if _, err := s.w.Write(s.yuv); err != nil {
			return fmt.Errorf("y4m submit: %w", err)
		}
		s.frames++
	}
	return nil
}

// Frames returns the number of FRAME records written.
func (s *Y4M) Frames() uint64 { return s.frames }

// Close flushes the stream and closes the underlying writer.
func (s *Y4M) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	flushErr := s.w.Flush()
	var closeErr error
	if s.closer != nil {
		closeErr = s.closer.Close()
	}
	if flushErr != nil {
		return fmt.Errorf("y4m flush: %w", flushErr)
	}
	if closeErr != nil {
		return fmt.Errorf("y4m close: %w", closeErr)
	}
	return nil
}
