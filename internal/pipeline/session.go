package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/roach88/framestack/internal/cadence"
	"github.com/roach88/framestack/internal/compositor"
	"github.com/roach88/framestack/internal/encoder"
	"github.com/roach88/framestack/internal/fragment"
	"github.com/roach88/framestack/internal/frame"
	"github.com/roach88/framestack/internal/store"
)

// State is the lifecycle state of a Session.
type State int

const (
	// StateIdle accepts configuration changes; no sink is open yet.
	StateIdle State = iota
	// StateActive has an open sink; configuration is frozen.
	StateActive
	// StateClosed rejects every further call.
	StateClosed
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Stats counts session activity.
type Stats struct {
	// Submissions is the number of Sink.Submit calls.
	Submissions uint64 `json:"submissions"`
	// Frames is the number of frames emitted, the sum of dup+1 over submissions.
	Frames uint64 `json:"frames"`
	// Generations is the number of generations closed by EndGeneration.
	Generations uint64 `json:"generations"`
}

// Option configures a Session.
type Option func(*Session)

// WithFragmentStore selects the persisted variant: patches are written to
// storage under the session's namespace and encoded by a background loop.
func WithFragmentStore(storage store.Storage, opts ...fragment.Option) Option {
	return func(s *Session) {
		s.storage = storage
		s.fragmentOpts = opts
	}
}

// WithRetainFragments keeps persisted fragments after their generation has
// been encoded. By default they are deleted.
func WithRetainFragments() Option {
	return func(s *Session) { s.retain = true }
}

// WithLogger sets the session logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithIDGenerator overrides the session ID source.
func WithIDGenerator(g IDGenerator) Option {
	return func(s *Session) {
		if g != nil {
			s.ids = g
		}
	}
}

// Session turns a stream of full frames and generations of rectangular
// patches into encoder submissions, padding the timeline so that the output
// plays back at the configured frame rate.
//
// Thread-safety: all methods are safe for concurrent use. Calls that change
// the stream are serialized; the persisted variant encodes on its own
// goroutine in generation order.
type Session struct {
	id     string
	opener encoder.Opener
	logger *slog.Logger
	ids    IDGenerator

	storage      store.Storage
	fragmentOpts []fragment.Option
	retain       bool
	fragments    *fragment.Store
	memory       *compositor.MemorySource
	comp         *compositor.Compositor

	// Persisted variant only.
	queue    *generationQueue
	loopDone chan struct{}
	cancel   context.CancelFunc

	mu           sync.Mutex
	cfg          Config
	state        State
	closing      bool
	aborting     bool
	sink         encoder.Sink
	sched        *cadence.Scheduler
	gen          uint64
	open         bool
	bootstrapped bool
	last         []byte
	lastDone     chan struct{}
	fatal        error
	stats        Stats
}

// New creates an idle session. The sink is opened by the first emission.
func New(opener encoder.Opener, cfg Config, opts ...Option) (*Session, error) {
	s := &Session{
		opener: opener,
		logger: slog.Default(),
		ids:    UUIDv7Generator{},
		cfg:    cfg,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.id = s.ids.Generate()
	s.logger = s.logger.With("session", s.id)

	if opener == nil {
		return nil, newError(CodeValidation, s.id, "no encoder opener", nil)
	}
	if err := cfg.Validate(); err != nil {
		return nil, newError(CodeValidation, s.id, "invalid configuration", err)
	}
	canvas, err := frame.NewCanvas(cfg.Width, cfg.Height, cfg.Format)
	if err != nil {
		return nil, newError(CodeValidation, s.id, "invalid configuration", err)
	}

	if s.storage == nil {
		s.memory = compositor.NewMemorySource()
		s.comp = compositor.New(canvas, s.memory)
		return s, nil
	}

	fopts := append([]fragment.Option{fragment.WithLogger(s.logger)}, s.fragmentOpts...)
	s.fragments, err = fragment.New(context.Background(), s.storage, s.id, cfg.Format, fopts...)
	if err != nil {
		return nil, newError(CodeResource, s.id, "open fragment store", err)
	}
	s.comp = compositor.New(canvas, s.fragments)
	s.queue = newGenerationQueue()
	s.loopDone = make(chan struct{})
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	go s.loop(ctx)
	return s, nil
}

// ID returns the session identifier, which is also its fragment namespace.
func (s *Session) ID() string { return s.id }

// Persisted reports whether patches go through a fragment store.
func (s *Session) Persisted() bool { return s.fragments != nil }

// State returns the lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Config returns the current configuration.
func (s *Session) Config() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// Generation returns the number of the generation currently open or next to
// open.
func (s *Session) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen
}

// Stats returns a snapshot of the session counters.
func (s *Session) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// SetOutputTarget sets the sink target.
func (s *Session) SetOutputTarget(target string) error {
	return s.configure(func(c *Config) { c.Output = target })
}

// SetQuality sets the encoder quality, 0..MaxQuality.
func (s *Session) SetQuality(q int) error {
	return s.configure(func(c *Config) { c.Quality = q })
}

// SetFrameRate sets the output frame rate in frames per second.
func (s *Session) SetFrameRate(fps int) error {
	return s.configure(func(c *Config) { c.FrameRate = fps })
}

// SetKeyFrameInterval sets the key frame interval, a power of two >= 2.
func (s *Session) SetKeyFrameInterval(n int) error {
	return s.configure(func(c *Config) { c.KeyFrameInterval = n })
}

func (s *Session) configure(fn func(*Config)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.usableLocked(); err != nil {
		return err
	}
	if s.state != StateIdle {
		return newError(CodeValidation, s.id, "configuration is immutable once active", nil)
	}
	next := s.cfg
	fn(&next)
	if err := next.Validate(); err != nil {
		return newError(CodeValidation, s.id, "invalid configuration", err)
	}
	s.cfg = next
	return nil
}

// BeginGeneration opens a new generation. It is a no-op while one is already
// open; PushPatch opens one implicitly.
func (s *Session) BeginGeneration() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.usableLocked(); err != nil {
		return err
	}
	if !s.open {
		s.beginLocked()
	}
	return nil
}

// PushPatch adds a patch to the open generation. The first patch of a session
// must cover the whole frame.
func (s *Session) PushPatch(p frame.RectPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.usableLocked(); err != nil {
		return err
	}
	if err := s.checkPatchLocked(p); err != nil {
		return err
	}
	return s.pushLocked(p)
}

// EndGeneration closes the open generation and emits the composed frame at
// timestamp (milliseconds). With no generation open it closes an empty one,
// re-emitting the current frame.
//
// The persisted variant only enqueues the generation; encoding failures are
// reported by Flush and Close.
func (s *Session) EndGeneration(ctx context.Context, timestamp int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.usableLocked(); err != nil {
		return err
	}
	return s.endLocked(ctx, timestamp)
}

// SubmitFullFrame emits a complete frame at timestamp (milliseconds). It is
// equivalent to a generation holding one full-extent patch.
func (s *Session) SubmitFullFrame(ctx context.Context, pixels []byte, timestamp int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.usableLocked(); err != nil {
		return err
	}
	if s.open {
		return newError(CodeValidation, s.id, "generation in progress", nil).withGeneration(s.gen)
	}
	if timestamp < 0 {
		return newError(CodeValidation, s.id, fmt.Sprintf("negative timestamp %d", timestamp), nil)
	}
	p, err := frame.NewRectPatch(0, 0, s.cfg.Width, s.cfg.Height, s.cfg.Format, pixels)
	if err != nil {
		return newError(CodeValidation, s.id, "invalid frame", err)
	}
	// Open the sink first so that a failure leaves no generation behind.
	if err := s.activateLocked(); err != nil {
		return err
	}
	if err := s.pushLocked(p); err != nil {
		return err
	}
	return s.endLocked(ctx, timestamp)
}

// Flush waits until every closed generation has been encoded and returns the
// first failure, if any.
func (s *Session) Flush(ctx context.Context) error {
	s.mu.Lock()
	done := s.lastDone
	s.mu.Unlock()

	if done != nil {
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fatal
}

// Close encodes all closed generations, closes the sink and releases the
// fragment store. An open generation is discarded. Close returns the first
// failure the session hit, if any. Calling Close again is a no-op.
func (s *Session) Close(ctx context.Context) error {
	return s.shutdown(ctx, false)
}

// Abort tears the session down without encoding pending generations. The
// open generation and every queued one are discarded.
func (s *Session) Abort(ctx context.Context) error {
	return s.shutdown(ctx, true)
}

func (s *Session) shutdown(ctx context.Context, abort bool) error {
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		return nil
	}
	s.closing = true
	s.aborting = abort
	open, gen := s.open, s.gen
	s.open = false
	s.mu.Unlock()

	var errs []error
	if open {
		s.logger.Warn("discarding open generation", "generation", gen)
		if err := s.discard(ctx, gen); err != nil {
			errs = append(errs, err)
		}
	}

	if s.queue != nil {
		s.queue.Close()
		if abort {
			s.cancel()
		}
		select {
		case <-s.loopDone:
		case <-ctx.Done():
			s.cancel()
			<-s.loopDone
			errs = append(errs, ctx.Err())
		}
		s.cancel()
	}

	s.mu.Lock()
	if s.sink != nil {
		if err := s.sink.Close(); err != nil {
			errs = append(errs, newError(CodeResource, s.id, "close sink", err))
		}
		s.sink = nil
	}
	s.state = StateClosed
	if s.fatal != nil {
		errs = append([]error{s.fatal}, errs...)
	}
	stats := s.stats
	s.mu.Unlock()

	if s.fragments != nil {
		if err := s.fragments.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	s.logger.Info("session closed",
		"aborted", abort,
		"generations", stats.Generations,
		"submissions", stats.Submissions,
		"frames", stats.Frames,
	)
	return errors.Join(errs...)
}

func (s *Session) usableLocked() error {
	if s.state == StateClosed || s.closing {
		return newError(CodeSessionClosed, s.id, "session is closed", s.fatal)
	}
	return nil
}

func (s *Session) checkPatchLocked(p frame.RectPatch) error {
	if p.Format != s.cfg.Format {
		return newError(CodeValidation, s.id, "invalid patch",
			fmt.Errorf("%w: format %s, session format %s", frame.ErrInvalidPatch, p.Format, s.cfg.Format))
	}
	if err := p.Validate(); err != nil {
		return newError(CodeValidation, s.id, "invalid patch", err)
	}
	if p.W > s.cfg.Width-p.X || p.H > s.cfg.Height-p.Y {
		return newError(CodeValidation, s.id, "invalid patch",
			fmt.Errorf("%w: %s exceeds %dx%d frame", frame.ErrOutOfBounds, p, s.cfg.Width, s.cfg.Height))
	}
	if !s.bootstrapped && !p.Covers(s.cfg.Width, s.cfg.Height) {
		return newError(CodeUninitializedCanvas, s.id, fmt.Sprintf("partial patch %s before first full frame", p), nil).
			withGeneration(s.gen)
	}
	return nil
}

func (s *Session) beginLocked() {
	s.open = true
	if s.fragments != nil {
		s.fragments.Begin(s.gen)
	} else {
		s.memory.Begin(s.gen)
	}
}

func (s *Session) pushLocked(p frame.RectPatch) error {
	if !s.open {
		s.beginLocked()
	}
	if s.fragments != nil {
		if _, err := s.fragments.Append(s.gen, p); err != nil {
			return newError(classify(err), s.id, "append fragment", err).withGeneration(s.gen)
		}
	} else {
		s.memory.Append(s.gen, p)
	}
	if p.Covers(s.cfg.Width, s.cfg.Height) {
		s.bootstrapped = true
	}
	return nil
}

func (s *Session) endLocked(ctx context.Context, timestamp int64) error {
	if timestamp < 0 {
		return newError(CodeValidation, s.id, fmt.Sprintf("negative timestamp %d", timestamp), nil)
	}
	if !s.bootstrapped {
		return newError(CodeUninitializedCanvas, s.id, "no full frame pushed yet", nil).withGeneration(s.gen)
	}
	if err := s.activateLocked(); err != nil {
		return err
	}
	if !s.open {
		s.beginLocked()
	}

	gen := s.gen
	s.gen++
	s.open = false
	s.stats.Generations++

	if s.fragments != nil {
		done := make(chan struct{})
		s.lastDone = done
		if !s.queue.Enqueue(pending{gen: gen, timestamp: timestamp, done: done}) {
			close(done)
			return newError(CodeSessionClosed, s.id, "session is closed", nil)
		}
		s.logger.Debug("generation queued", "generation", gen, "timestamp", timestamp)
		return nil
	}

	composed, err := s.comp.Compose(ctx, gen)
	if err != nil {
		return newError(classify(err), s.id, "compose generation", err).withGeneration(gen)
	}
	return s.emitLocked(composed, timestamp, gen)
}

// activateLocked opens the sink on the first emission and freezes the
// configuration.
func (s *Session) activateLocked() error {
	if s.state == StateActive {
		return nil
	}
	if s.cfg.Output == "" {
		return newError(CodeValidation, s.id, "no output target set", nil)
	}
	sched, err := cadence.NewScheduler(s.cfg.FrameRate, s.cfg.KeyFrameInterval)
	if err != nil {
		return newError(CodeValidation, s.id, "invalid timing", err)
	}
	sink, err := s.opener.Open(s.cfg.Output, s.cfg.params())
	if err != nil {
		return newError(CodeResource, s.id, fmt.Sprintf("open output %q", s.cfg.Output), err)
	}
	s.sink = sink
	s.sched = sched
	s.state = StateActive
	s.logger.Info("session active",
		"output", s.cfg.Output,
		"width", s.cfg.Width,
		"height", s.cfg.Height,
		"fps", s.cfg.FrameRate,
		"keyint", s.cfg.KeyFrameInterval,
		"persisted", s.fragments != nil,
	)
	return nil
}

// emitLocked pads the timeline with the previous frame, then submits the new
// one.
func (s *Session) emitLocked(composed []byte, timestamp int64, gen uint64) error {
	plan, pad, err := s.sched.Pad(timestamp)
	if err != nil {
		return newError(CodeValidation, s.id, "plan padding", err).withGeneration(gen)
	}
	if pad {
		s.logger.Debug("padding previous frame",
			"generation", gen,
			"elapsed_ms", timestamp-s.sched.Last(),
			"frames", plan.Frames(),
		)
		for _, dup := range plan.Emissions() {
			if err := s.submitLocked(s.last, dup, gen); err != nil {
				return err
			}
		}
	}
	if err := s.submitLocked(composed, 0, gen); err != nil {
		return err
	}
	s.last = composed
	s.sched.Advance(timestamp)
	return nil
}

func (s *Session) submitLocked(buf []byte, dup uint32, gen uint64) error {
	if err := s.sink.Submit(buf, dup); err != nil {
		e := newError(CodeEncoderFailure, s.id, "submit frame", err).withGeneration(gen)
		s.failLocked(e)
		return e
	}
	s.stats.Submissions++
	s.stats.Frames += uint64(dup) + 1
	return nil
}

// failLocked records a fatal error and closes the session.
func (s *Session) failLocked(err error) {
	if s.fatal == nil {
		s.fatal = err
	}
	s.state = StateClosed
	s.logger.Error("session failed", "error", err)
	if s.sink != nil {
		if cerr := s.sink.Close(); cerr != nil {
			s.logger.Warn("close sink after failure", "error", cerr)
		}
		s.sink = nil
	}
	if s.queue != nil {
		s.queue.Close()
	}
}

func (s *Session) discard(ctx context.Context, gen uint64) error {
	if s.fragments != nil {
		return s.fragments.Discard(ctx, gen)
	}
	return s.memory.Discard(ctx, gen)
}
