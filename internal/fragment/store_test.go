package fragment

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/framestack/internal/frame"
	"github.com/roach88/framestack/internal/store"
)

// failingStorage rejects writes whose key contains one of the given markers.
type failingStorage struct {
	store.Storage
	markers []string
}

func (f *failingStorage) Write(ctx context.Context, key string, data []byte) error {
	for _, m := range f.markers {
		if strings.Contains(key, m) {
			return fmt.Errorf("disk full writing %s", key)
		}
	}
	return f.Storage.Write(ctx, key, data)
}

// gatedStorage holds every write until the gate is closed.
type gatedStorage struct {
	store.Storage
	gate chan struct{}
}

func (g *gatedStorage) Write(ctx context.Context, key string, data []byte) error {
	<-g.gate
	return g.Storage.Write(ctx, key, data)
}

func newTestStore(t *testing.T, storage store.Storage, opts ...Option) *Store {
	t.Helper()
	s, err := New(context.Background(), storage, "sess", frame.RGB24, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// tagged returns a 1x1 patch whose red channel carries tag.
func tagged(x, y int, tag byte) frame.RectPatch {
	return frame.MustRectPatch(x, y, 1, 1, frame.RGB24, []byte{tag, 0, 0})
}

func TestAppend_AssignsSequenceFromZero(t *testing.T) {
	s := newTestStore(t, store.NewMemory())

	for want := uint64(0); want < 5; want++ {
		seq, err := s.Append(0, tagged(0, 0, byte(want)))
		require.NoError(t, err)
		assert.Equal(t, want, seq)
	}

	// Each generation has its own counter.
	seq, err := s.Append(1, tagged(0, 0, 0))
	require.NoError(t, err)
	assert.Equal(t, uint64(0), seq)
}

func TestRetrieveGeneration_NumericOrder(t *testing.T) {
	dir, err := store.OpenDir(t.TempDir())
	require.NoError(t, err)
	lite, err := store.OpenSQLite(filepath.Join(t.TempDir(), "frags.db"))
	require.NoError(t, err)
	t.Cleanup(func() { lite.Close() })

	for name, storage := range map[string]store.Storage{"mem": store.NewMemory(), "dir": dir, "sqlite": lite} {
		t.Run(name, func(t *testing.T) {
			s := newTestStore(t, storage)
			ctx := context.Background()

			// 12 fragments: lexical listing puts rect-10 and rect-11 before rect-2.
			for i := 0; i < 12; i++ {
				_, err := s.Append(3, tagged(i, 0, byte(i)))
				require.NoError(t, err)
			}

			keys, err := storage.List(ctx, GenerationPrefix("sess", 3))
			require.NoError(t, err)
			require.Len(t, keys, 12)

			patches, err := s.RetrieveGeneration(ctx, 3)
			require.NoError(t, err)
			require.Len(t, patches, 12)
			for i, p := range patches {
				assert.Equal(t, byte(i), p.Pixels[0], "position %d", i)
				assert.Equal(t, i, p.X)
			}
		})
	}
}

func TestRetrieveGeneration_NotFound(t *testing.T) {
	s := newTestStore(t, store.NewMemory())

	_, err := s.RetrieveGeneration(context.Background(), 7)
	assert.ErrorIs(t, err, ErrGenerationNotFound)
	assert.NotErrorIs(t, err, ErrIncompletePersistence)
}

func TestRetrieveGeneration_StartedButEmpty(t *testing.T) {
	s := newTestStore(t, store.NewMemory())
	s.Begin(2)

	patches, err := s.RetrieveGeneration(context.Background(), 2)
	require.NoError(t, err)
	assert.Empty(t, patches)
}

func TestRetrieveGeneration_FailedWrite(t *testing.T) {
	storage := &failingStorage{Storage: store.NewMemory(), markers: []string{"/0/rect-2-"}}
	s := newTestStore(t, storage)

	for i := 0; i < 4; i++ {
		_, err := s.Append(0, tagged(i, 0, byte(i)))
		require.NoError(t, err, "append must not surface persistence failures")
	}
	_, err := s.Append(1, tagged(0, 0, 1))
	require.NoError(t, err)

	_, err = s.RetrieveGeneration(context.Background(), 0)
	assert.ErrorIs(t, err, ErrIncompletePersistence)
	assert.NotErrorIs(t, err, ErrGenerationNotFound)

	// Failures are scoped to their generation.
	patches, err := s.RetrieveGeneration(context.Background(), 1)
	require.NoError(t, err)
	assert.Len(t, patches, 1)

	stats := s.Stats()
	assert.Equal(t, uint64(5), stats.Appended)
	assert.Equal(t, uint64(4), stats.Persisted)
	assert.Equal(t, uint64(1), stats.Failed)
}

func TestRetrieveGeneration_TruncatedPayload(t *testing.T) {
	mem := store.NewMemory()
	s := newTestStore(t, mem)
	ctx := context.Background()

	_, err := s.Append(0, tagged(0, 0, 1))
	require.NoError(t, err)
	require.NoError(t, s.Flush(ctx))

	// Truncate the stored payload behind the store's back.
	key := Header{Generation: 0, Sequence: 0, X: 0, Y: 0, W: 1, H: 1}.Key("sess")
	require.NoError(t, mem.Write(ctx, key, []byte{1}))

	_, err = s.RetrieveGeneration(ctx, 0)
	assert.ErrorIs(t, err, ErrIncompletePersistence)
}

func TestRetrieveGeneration_MissingFragment(t *testing.T) {
	mem := store.NewMemory()
	s := newTestStore(t, mem)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := s.Append(0, tagged(i, 0, byte(i)))
		require.NoError(t, err)
	}
	require.NoError(t, s.Flush(ctx))
	require.NoError(t, mem.Delete(ctx, "sess/0/rect-1-"))

	_, err := s.RetrieveGeneration(ctx, 0)
	assert.ErrorIs(t, err, ErrIncompletePersistence)
}

func TestRetrieveGeneration_WaitsForWrites(t *testing.T) {
	storage := &gatedStorage{Storage: store.NewMemory(), gate: make(chan struct{})}
	s := newTestStore(t, storage, WithWorkers(2))

	for i := 0; i < 3; i++ {
		_, err := s.Append(0, tagged(i, 0, byte(i)))
		require.NoError(t, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := s.RetrieveGeneration(ctx, 0)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(storage.gate)
	patches, err := s.RetrieveGeneration(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, patches, 3)
}

func TestRetrieveGeneration_CancelledWaitLeavesNoGoroutines(t *testing.T) {
	storage := &gatedStorage{Storage: store.NewMemory(), gate: make(chan struct{})}
	s := newTestStore(t, storage, WithWorkers(1))

	_, err := s.Append(0, tagged(0, 0, 1))
	require.NoError(t, err)

	base := runtime.NumGoroutine()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	for i := 0; i < 50; i++ {
		_, err := s.RetrieveGeneration(ctx, 0)
		require.ErrorIs(t, err, context.Canceled)
	}
	assert.LessOrEqual(t, runtime.NumGoroutine(), base+2)

	// The barrier still releases once the write lands, and re-arms for new writes.
	close(storage.gate)
	patches, err := s.RetrieveGeneration(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, patches, 1)

	_, err = s.Append(0, tagged(1, 0, 2))
	require.NoError(t, err)
	patches, err = s.RetrieveGeneration(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, patches, 2)
}

func TestAppend_ConcurrentGenerations(t *testing.T) {
	s := newTestStore(t, store.NewMemory(), WithWorkers(8), WithQueueSize(4))

	const gens, perGen = 6, 20
	var wg sync.WaitGroup
	for g := 0; g < gens; g++ {
		wg.Add(1)
		go func(gen uint64) {
			defer wg.Done()
			for i := 0; i < perGen; i++ {
				_, err := s.Append(gen, tagged(i, 0, byte(i)))
				assert.NoError(t, err)
			}
		}(uint64(g))
	}
	wg.Wait()

	for g := uint64(0); g < gens; g++ {
		patches, err := s.RetrieveGeneration(context.Background(), g)
		require.NoError(t, err)
		require.Len(t, patches, perGen)
		for i, p := range patches {
			assert.Equal(t, byte(i), p.Pixels[0])
		}
	}
}

func TestDiscard(t *testing.T) {
	mem := store.NewMemory()
	s := newTestStore(t, mem)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := s.Append(4, tagged(i, 0, byte(i)))
		require.NoError(t, err)
	}
	require.NoError(t, s.Discard(ctx, 4))

	_, err := s.RetrieveGeneration(ctx, 4)
	assert.ErrorIs(t, err, ErrGenerationNotFound)

	keys, err := mem.List(ctx, GenerationPrefix("sess", 4))
	require.NoError(t, err)
	assert.Empty(t, keys)

	_, err = s.Append(4, tagged(0, 0, 0))
	assert.ErrorIs(t, err, ErrDiscarded)
}

func TestNew_ResumesCounters(t *testing.T) {
	dir, err := store.OpenDir(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	first, err := New(ctx, dir, "sess", frame.RGB24)
	require.NoError(t, err)
	for i := 0; i < 11; i++ {
		_, err := first.Append(0, tagged(i, 0, byte(i)))
		require.NoError(t, err)
	}
	require.NoError(t, first.Close())

	second := newTestStore(t, dir)
	seq, err := second.Append(0, tagged(11, 0, 11))
	require.NoError(t, err)
	assert.Equal(t, uint64(11), seq)

	patches, err := second.RetrieveGeneration(ctx, 0)
	require.NoError(t, err)
	require.Len(t, patches, 12)
	assert.Equal(t, byte(11), patches[11].Pixels[0])
}

func TestNew_InvalidNamespace(t *testing.T) {
	_, err := New(context.Background(), store.NewMemory(), "a/b", frame.RGB24)
	assert.Error(t, err)

	_, err = New(context.Background(), store.NewMemory(), "", frame.RGB24)
	assert.Error(t, err)
}

func TestAppend_AfterClose(t *testing.T) {
	s, err := New(context.Background(), store.NewMemory(), "sess", frame.RGB24)
	require.NoError(t, err)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	_, err = s.Append(0, tagged(0, 0, 0))
	assert.True(t, errors.Is(err, ErrClosed))
}

func TestAppend_FormatMismatch(t *testing.T) {
	s := newTestStore(t, store.NewMemory())
	p := frame.MustRectPatch(0, 0, 1, 1, frame.RGBA32, []byte{1, 2, 3, 4})

	_, err := s.Append(0, p)
	assert.ErrorIs(t, err, frame.ErrInvalidPatch)
}

func TestNamespacesAreIsolated(t *testing.T) {
	mem := store.NewMemory()
	ctx := context.Background()

	a, err := New(ctx, mem, "a", frame.RGB24)
	require.NoError(t, err)
	defer a.Close()
	b, err := New(ctx, mem, "b", frame.RGB24)
	require.NoError(t, err)
	defer b.Close()

	_, err = a.Append(0, tagged(0, 0, 1))
	require.NoError(t, err)

	_, err = b.RetrieveGeneration(ctx, 0)
	assert.ErrorIs(t, err, ErrGenerationNotFound)
}
