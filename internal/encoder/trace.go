package encoder

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// Submission is one recorded Submit call.
type Submission struct {
	Index  int    `json:"index"`
	SHA256 string `json:"sha256"`
	Dup    uint32 `json:"dup"`
}

// NewSubmission fingerprints a submitted frame.
func NewSubmission(index int, buf []byte, dup uint32) Submission {
	sum := sha256.Sum256(buf)
	return Submission{Index: index, SHA256: hex.EncodeToString(sum[:]), Dup: dup}
}

// Trace writes one JSON line per submission instead of video data.
// It makes the exact submission order of a session reviewable and diffable.
type Trace struct {
	params Params
	enc    *json.Encoder
	closer io.Closer
	count  int
	closed bool
}

// OpenTrace creates the file at target and returns a Trace sink writing to it.
func OpenTrace(target string, p Params) (Sink, error) {
	f, err := os.Create(target)
	if err != nil {
		return nil, fmt.Errorf("could not open %s: %w", target, err)
	}
	return NewTrace(f, p), nil
}

// TraceOpener opens Trace file sinks.
var TraceOpener = OpenerFunc(OpenTrace)

// NewTrace returns a Trace sink writing to w. If w is an io.Closer it is
// closed by Close.
func NewTrace(w io.Writer, p Params) *Trace {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	t := &Trace{params: p, enc: enc}
	if c, ok := w.(io.Closer); ok {
		t.closer = c
	}
	return t
}

func (t *Trace) Submit(buf []byte, dup uint32) error {
	if t.closed {
		return ErrSinkClosed
	}
	if err := checkFrame(t.params, buf); err != nil {
		return fmt.Errorf("trace submit: %w", err)
	}
	if err := t.enc.Encode(NewSubmission(t.count, buf, dup)); err != nil {
		return fmt.Errorf("trace submit: %w", err)
	}
	t.count++
	return nil
}

func (t *Trace) Close() error {
	if t.closed {
		return nil
	}
	t.closed = true
	if t.closer != nil {
		return t.closer.Close()
	}
	return nil
}
