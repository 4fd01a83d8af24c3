// Package compositor rebuilds full frames from the patches of one generation.
package compositor

import (
	"context"
	"fmt"
	"sync"

	"github.com/roach88/framestack/internal/frame"
)

// Source yields the patches of a generation in ascending sequence order.
//
// *fragment.Store implements Source for the disk-buffered pipeline;
// MemorySource implements it for the in-memory pipeline.
type Source interface {
	RetrieveGeneration(ctx context.Context, gen uint64) ([]frame.RectPatch, error)
}

// Compositor replays generations onto one working canvas.
//
// The canvas persists across generations: each generation is applied on top of
// the previous result, and the very first patch the compositor ever sees must
// be the full-frame bootstrap. Output is deterministic for a given ordered
// patch set; overlapping patches resolve to the one with the higher sequence
// number.
//
// Compositor is not safe for concurrent use.
type Compositor struct {
	canvas *frame.Canvas
	source Source
}

// New returns a compositor reading from source onto canvas.
func New(canvas *frame.Canvas, source Source) *Compositor {
	return &Compositor{canvas: canvas, source: source}
}

// Compose fetches gen from the source and applies its patches in order,
// returning a copy of the resulting full frame.
func (c *Compositor) Compose(ctx context.Context, gen uint64) ([]byte, error) {
	if c.source == nil {
		return nil, fmt.Errorf("compose generation %d: no patch source", gen)
	}
	patches, err := c.source.RetrieveGeneration(ctx, gen)
	if err != nil {
		return nil, fmt.Errorf("compose generation %d: %w", gen, err)
	}
	out, err := c.ComposePatches(patches)
	if err != nil {
		return nil, fmt.Errorf("compose generation %d: %w", gen, err)
	}
	return out, nil
}

// ComposePatches applies an already ordered patch slice. An empty slice
// returns the current frame unchanged; on an uninitialized canvas it fails with
// frame.ErrUninitializedCanvas.
func (c *Compositor) ComposePatches(patches []frame.RectPatch) ([]byte, error) {
	for i, p := range patches {
		if err := c.canvas.Apply(p); err != nil {
			return nil, fmt.Errorf("patch %d (%s): %w", i, p, err)
		}
	}
	if !c.canvas.Initialized() {
		return nil, frame.ErrUninitializedCanvas
	}
	return c.canvas.Snapshot(), nil
}

// MemorySource buffers patches per generation in memory.
type MemorySource struct {
	mu      sync.Mutex
	pending map[uint64][]frame.RectPatch
	started map[uint64]bool
}

// NewMemorySource returns an empty MemorySource.
func NewMemorySource() *MemorySource {
	return &MemorySource{
		pending: make(map[uint64][]frame.RectPatch),
		started: make(map[uint64]bool),
	}
}

// Begin marks gen as started so that retrieving it with no patches succeeds.
func (m *MemorySource) Begin(gen uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.started[gen] = true
}

// Append buffers p as the next patch of gen and returns its sequence number.
func (m *MemorySource) Append(gen uint64, p frame.RectPatch) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.started[gen] = true
	m.pending[gen] = append(m.pending[gen], p)
	return uint64(len(m.pending[gen]) - 1)
}

// RetrieveGeneration returns and releases the buffered patches of gen.
func (m *MemorySource) RetrieveGeneration(_ context.Context, gen uint64) ([]frame.RectPatch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.started[gen] {
		return nil, fmt.Errorf("generation %d: %w", gen, ErrGenerationNotFound)
	}
	patches := m.pending[gen]
	delete(m.pending, gen)
	delete(m.started, gen)
	return patches, nil
}

// Discard drops the buffered patches of gen.
func (m *MemorySource) Discard(_ context.Context, gen uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.pending, gen)
	delete(m.started, gen)
	return nil
}
