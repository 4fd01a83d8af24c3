package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/framestack/internal/frame"
	"github.com/roach88/framestack/internal/pipeline"
)

// Script is a capture script.
type Script struct {
	// Name identifies the script and names its golden file.
	Name string `yaml:"name"`

	// Description explains what the script exercises.
	Description string `yaml:"description"`

	// SessionID fixes the session ID for deterministic fragment keys.
	// If empty, a fresh UUIDv7 is used.
	SessionID string `yaml:"session_id,omitempty"`

	// Session overrides the base configuration passed to Run.
	Session SessionOverrides `yaml:"session,omitempty"`

	// Events are replayed in order.
	Events []Event `yaml:"events"`

	// Assertions validate the run.
	Assertions []Assertion `yaml:"assertions,omitempty"`

	// dir resolves relative image paths.
	dir string
}

// SessionOverrides holds the configuration a script may set. Zero values and
// nil pointers keep the base value.
type SessionOverrides struct {
	Width            int    `yaml:"width,omitempty"`
	Height           int    `yaml:"height,omitempty"`
	PixelFormat      string `yaml:"pixel_format,omitempty"`
	FrameRate        *int   `yaml:"frame_rate,omitempty"`
	Quality          *int   `yaml:"quality,omitempty"`
	KeyFrameInterval *int   `yaml:"keyframe_interval,omitempty"`
}

// Event is one step of a script. Exactly one of Frame and Generation is set.
type Event struct {
	Frame      *FrameEvent      `yaml:"frame,omitempty"`
	Generation *GenerationEvent `yaml:"generation,omitempty"`
}

// FrameEvent submits a full frame.
type FrameEvent struct {
	At     int64  `yaml:"at"`
	Fill   []int  `yaml:"fill,omitempty"`
	Image  string `yaml:"image,omitempty"`
	Expect string `yaml:"expect,omitempty"`
}

// GenerationEvent pushes patches and closes the generation at At.
type GenerationEvent struct {
	At      int64       `yaml:"at"`
	Patches []PatchSpec `yaml:"patches,omitempty"`
	Expect  string      `yaml:"expect,omitempty"`
}

// PatchSpec describes one patch.
type PatchSpec struct {
	X     int    `yaml:"x"`
	Y     int    `yaml:"y"`
	W     int    `yaml:"w"`
	H     int    `yaml:"h"`
	Fill  []int  `yaml:"fill,omitempty"`
	Image string `yaml:"image,omitempty"`
}

// Assertion validates the submissions of a run.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Count is used by submission_count, frames and generations.
	Count int `yaml:"count,omitempty"`

	// Dups is used by dups.
	Dups []uint32 `yaml:"dups,omitempty"`
}

// Assertion type constants.
const (
	AssertSubmissionCount = "submission_count"
	AssertDups            = "dups"
	AssertFrames          = "frames"
	AssertGenerations     = "generations"
)

// LoadScript reads and parses a capture script.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScript(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read script file: %w", err)
	}
	return ParseScript(data, filepath.Dir(path))
}

// ParseScript parses a capture script. Image paths resolve against dir.
func ParseScript(data []byte, dir string) (*Script, error) {
	var script Script
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&script); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	script.dir = dir

	if err := validateScript(&script); err != nil {
		return nil, fmt.Errorf("invalid script: %w", err)
	}
	return &script, nil
}

// Apply returns base with the script's overrides applied.
func (s *Script) Apply(base pipeline.Config) pipeline.Config {
	o := s.Session
	if o.Width > 0 {
		base.Width = o.Width
	}
	if o.Height > 0 {
		base.Height = o.Height
	}
	if o.PixelFormat != "" {
		base.Format = frame.PixelFormat(o.PixelFormat)
	}
	if o.FrameRate != nil {
		base.FrameRate = *o.FrameRate
	}
	if o.Quality != nil {
		base.Quality = *o.Quality
	}
	if o.KeyFrameInterval != nil {
		base.KeyFrameInterval = *o.KeyFrameInterval
	}
	return base
}

// validateScript checks that required fields are present and valid.
func validateScript(s *Script) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if len(s.Events) == 0 {
		return fmt.Errorf("events list is required and must be non-empty")
	}

	for i, ev := range s.Events {
		switch {
		case ev.Frame != nil && ev.Generation != nil:
			return fmt.Errorf("events[%d]: frame and generation are mutually exclusive", i)
		case ev.Frame != nil:
			if err := validateSource(ev.Frame.Fill, ev.Frame.Image); err != nil {
				return fmt.Errorf("events[%d].frame: %w", i, err)
			}
		case ev.Generation != nil:
			for j, p := range ev.Generation.Patches {
				if err := validateSource(p.Fill, p.Image); err != nil {
					return fmt.Errorf("events[%d].generation.patches[%d]: %w", i, j, err)
				}
			}
		default:
			return fmt.Errorf("events[%d]: frame or generation is required", i)
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, a); err != nil {
			return err
		}
	}
	return nil
}

func validateSource(fill []int, image string) error {
	switch {
	case len(fill) > 0 && image != "":
		return fmt.Errorf("fill and image are mutually exclusive")
	case image != "":
		return nil
	case len(fill) == 3 || len(fill) == 4:
		for _, c := range fill {
			if c < 0 || c > 255 {
				return fmt.Errorf("fill component %d outside 0..255", c)
			}
		}
		return nil
	default:
		return fmt.Errorf("fill must have 3 or 4 components, or set image")
	}
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a Assertion) error {
	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	case AssertSubmissionCount, AssertFrames, AssertGenerations:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for %s", index, a.Type)
		}
	case AssertDups:
		if a.Dups == nil {
			return fmt.Errorf("assertions[%d]: dups list is required for dups", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
