package pipeline

import (
	"fmt"

	"github.com/roach88/framestack/internal/cadence"
	"github.com/roach88/framestack/internal/encoder"
	"github.com/roach88/framestack/internal/frame"
)

// Encoding defaults.
const (
	DefaultFrameRate        = 25
	DefaultQuality          = 31
	DefaultKeyFrameInterval = 64

	// MaxQuality is the highest accepted quality value.
	MaxQuality = 63
)

// Config holds the encoding parameters of a session. Width, Height and Format
// are fixed at creation; the remaining fields may change until the session
// becomes active.
type Config struct {
	Width            int
	Height           int
	Format           frame.PixelFormat
	FrameRate        int
	Quality          int
	KeyFrameInterval int

	// Output is the sink target handed to the Opener. Required at activation.
	Output string
}

// DefaultConfig returns an RGB24 configuration with default timing.
func DefaultConfig(width, height int) Config {
	return Config{
		Width:            width,
		Height:           height,
		Format:           frame.RGB24,
		FrameRate:        DefaultFrameRate,
		Quality:          DefaultQuality,
		KeyFrameInterval: DefaultKeyFrameInterval,
	}
}

// Validate checks every field except Output.
func (c Config) Validate() error {
	if c.Width <= 0 || c.Height <= 0 {
		return fmt.Errorf("%w: %dx%d", frame.ErrInvalidDimensions, c.Width, c.Height)
	}
	if err := c.Format.Validate(); err != nil {
		return err
	}
	if c.Quality < 0 || c.Quality > MaxQuality {
		return fmt.Errorf("quality %d outside 0..%d", c.Quality, MaxQuality)
	}
	return cadence.ValidateTiming(c.FrameRate, c.KeyFrameInterval)
}

func (c Config) params() encoder.Params {
	return encoder.Params{
		Width:            c.Width,
		Height:           c.Height,
		FrameRate:        c.FrameRate,
		Quality:          c.Quality,
		KeyFrameInterval: c.KeyFrameInterval,
		Format:           c.Format,
	}
}
