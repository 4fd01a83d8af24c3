package frame

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidPatch indicates a patch whose geometry or payload is malformed.
	ErrInvalidPatch = errors.New("invalid patch")

	// ErrInvalidFormat indicates an unknown pixel format.
	ErrInvalidFormat = errors.New("invalid pixel format")
)

// PixelFormat identifies the packed byte layout of one pixel.
type PixelFormat string

const (
	// RGB24 is 3 bytes per pixel, red first. This is the capture default.
	RGB24 PixelFormat = "rgb24"
	// RGBA32 is 4 bytes per pixel, alpha last.
	RGBA32 PixelFormat = "rgba32"
	// BGRA32 is 4 bytes per pixel, blue first.
	BGRA32 PixelFormat = "bgra32"
)

// ValidFormats lists the supported pixel formats.
var ValidFormats = []PixelFormat{RGB24, RGBA32, BGRA32}

// BytesPerPixel returns the packed pixel size, or 0 for an unknown format.
func (f PixelFormat) BytesPerPixel() int {
	switch f {
	case RGB24:
		return 3
	case RGBA32, BGRA32:
		return 4
	default:
		return 0
	}
}

// Validate returns ErrInvalidFormat if f is not a supported format.
func (f PixelFormat) Validate() error {
	if f.BytesPerPixel() == 0 {
		return fmt.Errorf("%w: %q", ErrInvalidFormat, string(f))
	}
	return nil
}

// RectPatch is a rectangle of packed pixels targeted at (X, Y).
//
// Pixels is row-major with no padding: len(Pixels) == W*H*Format.BytesPerPixel().
// A RectPatch is treated as immutable once constructed.
type RectPatch struct {
	X, Y   int
	W, H   int
	Format PixelFormat
	Pixels []byte
}

// NewRectPatch validates the geometry and payload length and returns a patch
// that owns a private copy of pixels.
func NewRectPatch(x, y, w, h int, format PixelFormat, pixels []byte) (RectPatch, error) {
	p := RectPatch{X: x, Y: y, W: w, H: h, Format: format, Pixels: pixels}
	if err := p.Validate(); err != nil {
		return RectPatch{}, err
	}
	p.Pixels = append([]byte(nil), pixels...)
	return p, nil
}

// MustRectPatch is like NewRectPatch but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustRectPatch(x, y, w, h int, format PixelFormat, pixels []byte) RectPatch {
	p, err := NewRectPatch(x, y, w, h, format, pixels)
	if err != nil {
		panic(err)
	}
	return p
}

// SolidPatch builds a patch filled with a single pixel value.
// len(pixel) must equal format.BytesPerPixel().
func SolidPatch(x, y, w, h int, format PixelFormat, pixel []byte) (RectPatch, error) {
	if err := format.Validate(); err != nil {
		return RectPatch{}, err
	}
	bpp := format.BytesPerPixel()
	if len(pixel) != bpp {
		return RectPatch{}, fmt.Errorf("%w: pixel has %d bytes, format %s needs %d",
			ErrInvalidPatch, len(pixel), format, bpp)
	}
	if w <= 0 || h <= 0 {
		return RectPatch{}, fmt.Errorf("%w: non-positive size %dx%d", ErrInvalidPatch, w, h)
	}
	buf := make([]byte, w*h*bpp)
	for i := 0; i < len(buf); i += bpp {
		copy(buf[i:], pixel)
	}
	return NewRectPatch(x, y, w, h, format, buf)
}

// Validate checks coordinates, size and payload length.
func (p RectPatch) Validate() error {
	if err := p.Format.Validate(); err != nil {
		return err
	}
	if p.X < 0 || p.Y < 0 {
		return fmt.Errorf("%w: negative origin (%d,%d)", ErrInvalidPatch, p.X, p.Y)
	}
	if p.W <= 0 || p.H <= 0 {
		return fmt.Errorf("%w: non-positive size %dx%d", ErrInvalidPatch, p.W, p.H)
	}
	if want := p.W * p.H * p.Format.BytesPerPixel(); len(p.Pixels) != want {
		return fmt.Errorf("%w: payload is %d bytes, want %d for %dx%d %s",
			ErrInvalidPatch, len(p.Pixels), want, p.W, p.H, p.Format)
	}
	return nil
}

// Covers reports whether p spans the full width x height extent.
func (p RectPatch) Covers(width, height int) bool {
	return p.X == 0 && p.Y == 0 && p.W == width && p.H == height
}

// String renders the patch geometry for logs.
func (p RectPatch) String() string {
	return fmt.Sprintf("%dx%d+%d+%d", p.W, p.H, p.X, p.Y)
}
