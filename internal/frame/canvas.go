package frame

import (
	"errors"
	"fmt"
)

var (
	// ErrOutOfBounds indicates a patch that does not fit inside the canvas.
	ErrOutOfBounds = errors.New("patch out of bounds")

	// ErrUninitializedCanvas indicates a partial patch applied before the
	// full-frame bootstrap patch.
	ErrUninitializedCanvas = errors.New("canvas not initialized: first full frame was not pushed")

	// ErrInvalidDimensions indicates a non-positive canvas size.
	ErrInvalidDimensions = errors.New("invalid canvas dimensions")
)

// Canvas owns one full-frame pixel buffer.
//
// Canvas is not safe for concurrent use; the pipeline gives each session
// exactly one canvas, mutated by one goroutine at a time.
type Canvas struct {
	width       int
	height      int
	format      PixelFormat
	buffer      []byte
	initialized bool
}

// NewCanvas allocates a width x height canvas in the given pixel format.
// The canvas starts uninitialized.
func NewCanvas(width, height int, format PixelFormat) (*Canvas, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidDimensions, width, height)
	}
	if err := format.Validate(); err != nil {
		return nil, err
	}
	return &Canvas{
		width:  width,
		height: height,
		format: format,
		buffer: make([]byte, width*height*format.BytesPerPixel()),
	}, nil
}

// Width returns the canvas width in pixels.
func (c *Canvas) Width() int { return c.width }

// Height returns the canvas height in pixels.
func (c *Canvas) Height() int { return c.height }

// Format returns the canvas pixel format.
func (c *Canvas) Format() PixelFormat { return c.format }

// Initialized reports whether the bootstrap full-frame patch has been applied.
func (c *Canvas) Initialized() bool { return c.initialized }

// FrameSize returns the byte length of one full frame.
func (c *Canvas) FrameSize() int { return len(c.buffer) }

// Apply copies p into the canvas at (p.X, p.Y), overwriting prior content.
func (c *Canvas) Apply(p RectPatch) error {
	if p.Format != c.format {
		return fmt.Errorf("%w: patch format %s, canvas format %s", ErrInvalidPatch, p.Format, c.format)
	}
	if err := p.Validate(); err != nil {
		return err
	}
	if p.W > c.width-p.X || p.H > c.height-p.Y {
		return fmt.Errorf("%w: %s exceeds %dx%d canvas", ErrOutOfBounds, p, c.width, c.height)
	}
	if !c.initialized {
		if !p.Covers(c.width, c.height) {
			return fmt.Errorf("apply %s: %w", p, ErrUninitializedCanvas)
		}
		copy(c.buffer, p.Pixels)
		c.initialized = true
		return nil
	}

	bpp := c.format.BytesPerPixel()
	stride := c.width * bpp
	rowLen := p.W * bpp
	start := p.Y*stride + p.X*bpp
	for row := 0; row < p.H; row++ {
		dst := start + row*stride
		src := row * rowLen
		copy(c.buffer[dst:dst+rowLen], p.Pixels[src:src+rowLen])
	}
	return nil
}

// Snapshot returns a copy of the current full frame.
// The result is nil while the canvas is uninitialized.
func (c *Canvas) Snapshot() []byte {
	if !c.initialized {
		return nil
	}
	return append([]byte(nil), c.buffer...)
}

// Load replaces the canvas content with a full frame and marks the canvas
// initialized. It is equivalent to applying a patch covering the full extent.
func (c *Canvas) Load(pixels []byte) error {
	p := RectPatch{X: 0, Y: 0, W: c.width, H: c.height, Format: c.format, Pixels: pixels}
	if err := p.Validate(); err != nil {
		return fmt.Errorf("load frame: %w", err)
	}
	copy(c.buffer, pixels)
	c.initialized = true
	return nil
}
