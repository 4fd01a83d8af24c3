package fragment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/roach88/framestack/internal/frame"
	"github.com/roach88/framestack/internal/store"
)

var (
	// ErrGenerationNotFound indicates a generation that was never started and
	// has no persisted fragments, or one that was discarded.
	ErrGenerationNotFound = errors.New("generation not found")

	// ErrIncompletePersistence indicates a generation whose fragments cannot all
	// be read back: a write failed, a sequence number is missing, or a payload
	// is truncated.
	ErrIncompletePersistence = errors.New("incomplete persistence")

	// ErrDiscarded indicates an append to a generation that was discarded.
	ErrDiscarded = errors.New("generation discarded")

	// ErrClosed indicates use of a closed store.
	ErrClosed = errors.New("fragment store closed")
)

// Default worker pool sizing.
const (
	DefaultWorkers   = 4
	DefaultQueueSize = 256
)

// Record is the persisted form of one patch.
type Record struct {
	Header
	Pixels []byte
}

// Patch converts the record back into a validated patch.
func (r Record) Patch(format frame.PixelFormat) (frame.RectPatch, error) {
	return frame.NewRectPatch(r.X, r.Y, r.W, r.H, format, r.Pixels)
}

// Stats reports persistence counters.
type Stats struct {
	Appended  uint64
	Persisted uint64
	Failed    uint64
}

// Option configures a Store.
type Option func(*Store)

// WithWorkers sets the number of persistence workers.
func WithWorkers(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithQueueSize bounds the number of queued writes.
func WithQueueSize(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.queueSize = n
		}
	}
}

// WithLogger sets the logger used for deferred persistence failures.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// generation tracks writes and failures for one generation.
type generation struct {
	counter   *Counter
	mu        sync.Mutex
	pending   int
	idle      chan struct{} // closed while pending == 0
	failures  []error
	discarded bool
}

func newGeneration() *generation {
	idle := make(chan struct{})
	close(idle)
	return &generation{counter: &Counter{}, idle: idle}
}

// begin registers one outstanding write.
func (g *generation) begin() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.pending == 0 {
		g.idle = make(chan struct{})
	}
	g.pending++
}

// finish releases one outstanding write.
func (g *generation) finish() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.pending--
	if g.pending == 0 {
		close(g.idle)
	}
}

// barrier returns a channel that is closed once no write is outstanding.
func (g *generation) barrier() <-chan struct{} {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.idle
}

func (g *generation) fail(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failures = append(g.failures, err)
}

func (g *generation) state() (failures []error, discarded bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]error(nil), g.failures...), g.discarded
}

// job is one queued write.
type job struct {
	gen    *generation
	header Header
	pixels []byte
}

// Store persists patches under one namespace of a Storage.
//
// Thread-safety model:
//   - Append: safe from any goroutine
//   - RetrieveGeneration / Discard: safe from any goroutine; block on the
//     generation barrier
//   - Close: call once, after all Appends have returned
type Store struct {
	storage   store.Storage
	namespace string
	format    frame.PixelFormat
	logger    *slog.Logger

	workers   int
	queueSize int
	jobs      chan job
	workerWG  sync.WaitGroup

	// sendMu guards jobs against close while an Append is enqueuing.
	sendMu sync.RWMutex
	closed bool

	mu   sync.Mutex
	gens map[uint64]*generation

	appended  atomic.Uint64
	persisted atomic.Uint64
	failed    atomic.Uint64
}

// New opens the namespace on storage and starts the persistence workers.
//
// Fragments already persisted under namespace are scanned so each generation
// resumes its sequence counter after the highest stored sequence number.
func New(ctx context.Context, storage store.Storage, namespace string, format frame.PixelFormat, opts ...Option) (*Store, error) {
	if namespace == "" || strings.Contains(namespace, "/") {
		return nil, fmt.Errorf("invalid namespace %q", namespace)
	}
	if err := format.Validate(); err != nil {
		return nil, err
	}

	s := &Store{
		storage:   storage,
		namespace: namespace,
		format:    format,
		logger:    slog.Default(),
		workers:   DefaultWorkers,
		queueSize: DefaultQueueSize,
		gens:      make(map[uint64]*generation),
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.resume(ctx); err != nil {
		return nil, err
	}

	s.jobs = make(chan job, s.queueSize)
	for i := 0; i < s.workers; i++ {
		s.workerWG.Add(1)
		go s.worker()
	}
	return s, nil
}

// Namespace returns the key namespace of this store.
func (s *Store) Namespace() string { return s.namespace }

// resume seeds generation counters from fragments already in storage.
func (s *Store) resume(ctx context.Context) error {
	keys, err := s.storage.List(ctx, s.namespace+"/")
	if err != nil {
		return fmt.Errorf("resume namespace %s: %w", s.namespace, err)
	}
	next := map[uint64]uint64{}
	for _, key := range keys {
		_, h, err := ParseKey(key)
		if err != nil {
			s.logger.Warn("ignoring foreign key in fragment namespace", "key", key, "error", err)
			continue
		}
		if h.Sequence+1 > next[h.Generation] {
			next[h.Generation] = h.Sequence + 1
		}
	}
	for gen, n := range next {
		g := newGeneration()
		g.counter = NewCounterAt(n)
		s.gens[gen] = g
	}
	return nil
}

// Begin marks gen as started. Retrieving a started generation with no
// fragments yields an empty slice rather than ErrGenerationNotFound.
func (s *Store) Begin(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generationLocked(gen)
}

func (s *Store) generationLocked(gen uint64) *generation {
	g, ok := s.gens[gen]
	if !ok {
		g = newGeneration()
		s.gens[gen] = g
	}
	return g
}

// Append assigns the next sequence number of gen to p and queues it for
// persistence. It returns once the write is queued; failures of the write
// itself surface later from RetrieveGeneration.
func (s *Store) Append(gen uint64, p frame.RectPatch) (uint64, error) {
	if p.Format != s.format {
		return 0, fmt.Errorf("append: %w: patch format %s, store format %s", frame.ErrInvalidPatch, p.Format, s.format)
	}

	s.sendMu.RLock()
	defer s.sendMu.RUnlock()
	if s.closed {
		return 0, ErrClosed
	}

	s.mu.Lock()
	g := s.generationLocked(gen)
	g.mu.Lock()
	discarded := g.discarded
	g.mu.Unlock()
	if discarded {
		s.mu.Unlock()
		return 0, fmt.Errorf("append to generation %d: %w", gen, ErrDiscarded)
	}
	seq := g.counter.Next()
	g.begin()
	s.mu.Unlock()

	s.appended.Add(1)
	s.jobs <- job{
		gen: g,
		header: Header{
			Generation: gen,
			Sequence:   seq,
			X:          p.X,
			Y:          p.Y,
			W:          p.W,
			H:          p.H,
		},
		pixels: p.Pixels,
	}
	return seq, nil
}

func (s *Store) worker() {
	defer s.workerWG.Done()
	for j := range s.jobs {
		s.persist(j)
		j.gen.finish()
	}
}

func (s *Store) persist(j job) {
	key := j.header.Key(s.namespace)
	if err := s.storage.Write(context.Background(), key, j.pixels); err != nil {
		s.failed.Add(1)
		j.gen.fail(fmt.Errorf("sequence %d: %w", j.header.Sequence, err))
		s.logger.Warn("fragment persist failed",
			"namespace", s.namespace,
			"generation", j.header.Generation,
			"sequence", j.header.Sequence,
			"error", err)
		return
	}
	s.persisted.Add(1)
}

// wait blocks until every write issued for g has finished or ctx is done.
func wait(ctx context.Context, g *generation) error {
	select {
	case <-g.barrier():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RetrieveGeneration waits for all outstanding writes of gen, then returns its
// patches ordered by sequence number.
func (s *Store) RetrieveGeneration(ctx context.Context, gen uint64) ([]frame.RectPatch, error) {
	records, err := s.Records(ctx, gen)
	if err != nil {
		return nil, err
	}
	patches := make([]frame.RectPatch, 0, len(records))
	for _, r := range records {
		p, err := r.Patch(s.format)
		if err != nil {
			return nil, fmt.Errorf("%w: generation %d sequence %d: %v", ErrIncompletePersistence, gen, r.Sequence, err)
		}
		patches = append(patches, p)
	}
	return patches, nil
}

// Records is RetrieveGeneration without the conversion to patches.
func (s *Store) Records(ctx context.Context, gen uint64) ([]Record, error) {
	s.mu.Lock()
	g := s.gens[gen]
	s.mu.Unlock()

	if g != nil {
		if err := wait(ctx, g); err != nil {
			return nil, fmt.Errorf("retrieve generation %d: %w", gen, err)
		}
		failures, discarded := g.state()
		if discarded {
			return nil, fmt.Errorf("retrieve generation %d: %w", gen, ErrGenerationNotFound)
		}
		if len(failures) > 0 {
			return nil, fmt.Errorf("%w: generation %d: %d write(s) failed: %w",
				ErrIncompletePersistence, gen, len(failures), errors.Join(failures...))
		}
	}

	keys, err := s.storage.List(ctx, GenerationPrefix(s.namespace, gen))
	if err != nil {
		return nil, fmt.Errorf("retrieve generation %d: %w", gen, err)
	}
	if len(keys) == 0 && g == nil {
		return nil, fmt.Errorf("retrieve generation %d: %w", gen, ErrGenerationNotFound)
	}

	headers := make([]Header, 0, len(keys))
	for _, key := range keys {
		_, h, err := ParseKey(key)
		if err != nil {
			return nil, fmt.Errorf("%w: generation %d: %v", ErrIncompletePersistence, gen, err)
		}
		headers = append(headers, h)
	}
	sort.Slice(headers, func(i, j int) bool { return headers[i].Sequence < headers[j].Sequence })

	expected := uint64(len(headers))
	if g != nil {
		expected = g.counter.Assigned()
	}
	if uint64(len(headers)) != expected {
		return nil, fmt.Errorf("%w: generation %d: found %d fragments, expected %d",
			ErrIncompletePersistence, gen, len(headers), expected)
	}

	bpp := s.format.BytesPerPixel()
	records := make([]Record, 0, len(headers))
	for i, h := range headers {
		if h.Sequence != uint64(i) {
			return nil, fmt.Errorf("%w: generation %d: missing sequence %d", ErrIncompletePersistence, gen, i)
		}
		data, err := s.storage.Read(ctx, h.Key(s.namespace))
		if err != nil {
			return nil, fmt.Errorf("%w: generation %d sequence %d: %v", ErrIncompletePersistence, gen, h.Sequence, err)
		}
		if want := h.W * h.H * bpp; len(data) != want {
			return nil, fmt.Errorf("%w: generation %d sequence %d: read %d bytes, expected %d",
				ErrIncompletePersistence, gen, h.Sequence, len(data), want)
		}
		records = append(records, Record{Header: h, Pixels: data})
	}
	return records, nil
}

// Discard drops gen as a unit: new appends are rejected, in-flight writes are
// allowed to finish, then every fragment of gen is deleted. A later retrieval
// reports ErrGenerationNotFound.
func (s *Store) Discard(ctx context.Context, gen uint64) error {
	s.mu.Lock()
	g := s.generationLocked(gen)
	g.mu.Lock()
	g.discarded = true
	g.mu.Unlock()
	s.mu.Unlock()

	if err := wait(ctx, g); err != nil {
		return fmt.Errorf("discard generation %d: %w", gen, err)
	}
	if err := s.storage.Delete(ctx, GenerationPrefix(s.namespace, gen)); err != nil {
		return fmt.Errorf("discard generation %d: %w", gen, err)
	}
	return nil
}

// Flush blocks until every queued write of every generation has finished.
func (s *Store) Flush(ctx context.Context) error {
	s.mu.Lock()
	gens := make([]*generation, 0, len(s.gens))
	for _, g := range s.gens {
		gens = append(gens, g)
	}
	s.mu.Unlock()

	for _, g := range gens {
		if err := wait(ctx, g); err != nil {
			return fmt.Errorf("flush: %w", err)
		}
	}
	return nil
}

// Close stops accepting appends, drains the queue and stops the workers.
// It does not close the underlying storage.
func (s *Store) Close() error {
	s.sendMu.Lock()
	if s.closed {
		s.sendMu.Unlock()
		return nil
	}
	s.closed = true
	close(s.jobs)
	s.sendMu.Unlock()

	s.workerWG.Wait()
	return nil
}

// Stats returns a snapshot of the persistence counters.
func (s *Store) Stats() Stats {
	return Stats{
		Appended:  s.appended.Load(),
		Persisted: s.persisted.Load(),
		Failed:    s.failed.Load(),
	}
}
