package harness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/framestack/internal/encoder"
	"github.com/roach88/framestack/internal/frame"
	"github.com/roach88/framestack/internal/pipeline"
	"github.com/roach88/framestack/internal/testutil"
)

// errSetup marks failures of the script itself rather than of the session.
var errSetup = errors.New("script setup failed")

// Run replays script through a new session configured from base plus the
// script's overrides. Submissions are fingerprinted and forwarded to opener,
// which may be nil. An empty base Output defaults to the script name.
//
// Session errors are recorded on the Result; Run returns an error only when
// the session cannot be created or the script references unusable images.
//
// Execution flow:
// 1. Create the session (fixed ID if the script sets one)
// 2. Replay events, checking expect clauses
// 3. Close the session and collect stats
// 4. Evaluate assertions
func Run(ctx context.Context, script *Script, opener encoder.Opener, base pipeline.Config, opts ...pipeline.Option) (*Result, error) {
	cfg := script.Apply(base)
	if cfg.Output == "" {
		cfg.Output = script.Name
	}
	if script.SessionID != "" {
		opts = append([]pipeline.Option{pipeline.WithIDGenerator(testutil.NewFixedIDGenerator(script.SessionID))}, opts...)
	}

	t := &tap{inner: opener}
	s, err := pipeline.New(t, cfg, opts...)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	px := newPixelSource(script.dir, cfg.Format)
	result := NewResult()
	result.Session = s.ID()

	for i, ev := range script.Events {
		outcome, expect, err := runEvent(ctx, s, px, cfg, i, ev)
		if errors.Is(err, errSetup) {
			_ = s.Abort(ctx)
			return nil, err
		}
		result.Events = append(result.Events, outcome)

		switch {
		case expect == "" && outcome.Error != "":
			result.AddError(fmt.Sprintf("events[%d]: unexpected error: %v", i, err))
		case expect != "" && outcome.Error != expect:
			got := outcome.Error
			if got == "" {
				got = "success"
			}
			result.AddError(fmt.Sprintf("events[%d]: expected %s, got %s", i, expect, got))
		}
	}

	if err := s.Close(ctx); err != nil {
		result.CloseError = errorCode(err)
		slog.Debug("session closed with error", "script", script.Name, "error", err)
	}
	result.Stats = s.Stats()
	result.Submissions = t.submissions()

	for _, msg := range EvaluateAssertions(result, script.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

// runEvent replays one event. It returns the event's expect clause and the
// session error, if any. Setup errors wrap errSetup.
func runEvent(ctx context.Context, s *pipeline.Session, px *pixelSource, cfg pipeline.Config, index int, ev Event) (EventOutcome, string, error) {
	outcome := EventOutcome{Index: index, Generation: s.Generation()}

	if f := ev.Frame; f != nil {
		outcome.Kind = KindFrame
		outcome.At = f.At
		outcome.Patches = 1

		p, err := px.patch(0, 0, cfg.Width, cfg.Height, f.Fill, f.Image)
		if err != nil {
			return outcome, f.Expect, fmt.Errorf("%w: events[%d]: %v", errSetup, index, err)
		}
		err = s.SubmitFullFrame(ctx, p.Pixels, f.At)
		outcome.Error = errorCode(err)
		return outcome, f.Expect, err
	}

	g := ev.Generation
	outcome.Kind = KindGeneration
	outcome.At = g.At
	outcome.Patches = len(g.Patches)

	// Rejected patches are skipped; the generation still closes.
	var first error
	for j, spec := range g.Patches {
		p, err := px.patch(spec.X, spec.Y, spec.W, spec.H, spec.Fill, spec.Image)
		if err != nil {
			if errors.Is(err, frame.ErrInvalidPatch) && spec.Image == "" {
				// Geometry errors belong to the session.
				p = frame.RectPatch{X: spec.X, Y: spec.Y, W: spec.W, H: spec.H, Format: cfg.Format}
			} else {
				return outcome, g.Expect, fmt.Errorf("%w: events[%d].patches[%d]: %v", errSetup, index, j, err)
			}
		}
		if err := s.PushPatch(p); err != nil && first == nil {
			first = err
		}
	}
	if err := s.EndGeneration(ctx, g.At); err != nil && first == nil {
		first = err
	}
	outcome.Error = errorCode(first)
	return outcome, g.Expect, first
}

func errorCode(err error) string {
	if err == nil {
		return ""
	}
	if code := pipeline.CodeOf(err); code != "" {
		return string(code)
	}
	return err.Error()
}
