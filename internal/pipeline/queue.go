package pipeline

import "sync"

// pending is a closed generation awaiting encoding.
type pending struct {
	gen       uint64
	timestamp int64
	done      chan struct{}
}

// generationQueue is a thread-safe FIFO of closed generations.
//
// EndGeneration enqueues while the encoding loop dequeues. The queue is
// unbounded so that a slow sink never blocks producers; fragment persistence
// is where backpressure applies.
//
// The queue uses a channel for signaling to enable context-aware waiting
// in the encoding loop.
type generationQueue struct {
	mu     sync.Mutex
	items  []pending
	closed bool
	signal chan struct{} // buffered, size 1
}

func newGenerationQueue() *generationQueue {
	return &generationQueue{
		items:  make([]pending, 0, 16),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue adds a generation to the back of the queue.
// Returns false if the queue is closed.
func (q *generationQueue) Enqueue(p pending) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	q.items = append(q.items, p)

	// Non-blocking: the buffer of 1 coalesces multiple signals.
	select {
	case q.signal <- struct{}{}:
	default:
	}

	return true
}

// TryDequeue removes the front generation without blocking.
// Returns false if the queue is empty.
func (q *generationQueue) TryDequeue() (pending, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return pending{}, false
	}

	p := q.items[0]
	q.items[0] = pending{}
	if len(q.items) == 1 {
		q.items = q.items[:0]
	} else {
		q.items = q.items[1:]
	}
	return p, true
}

// Drain removes and returns every queued generation.
func (q *generationQueue) Drain() []pending {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := q.items
	q.items = nil
	return out
}

// Wait returns a channel that signals when generations may be available.
// The channel is closed once the queue is closed.
func (q *generationQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the current queue length.
func (q *generationQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close signals that no more generations will be enqueued.
func (q *generationQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.signal)
}
