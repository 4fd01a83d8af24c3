package pipeline

import "context"

// loop encodes closed generations in the order they were enqueued. It runs
// only for the persisted variant and is the sole user of the compositor there.
func (s *Session) loop(ctx context.Context) {
	defer close(s.loopDone)

	for {
		if p, ok := s.queue.TryDequeue(); ok {
			s.process(ctx, p)
			continue
		}

		select {
		case <-ctx.Done():
			for _, p := range s.queue.Drain() {
				s.drop(p)
			}
			return
		case _, ok := <-s.queue.Wait():
			if !ok && s.queue.Len() == 0 {
				return
			}
		}
	}
}

func (s *Session) process(ctx context.Context, p pending) {
	s.mu.Lock()
	skip := s.aborting || s.state == StateClosed
	s.mu.Unlock()
	if skip {
		s.drop(p)
		return
	}
	defer close(p.done)

	// Waits for the generation's writes to land.
	composed, err := s.comp.Compose(ctx, p.gen)

	s.mu.Lock()
	if s.aborting || s.state == StateClosed || ctx.Err() != nil {
		s.mu.Unlock()
		// Torn down while composing: the generation goes as a unit.
		if err := s.fragments.Discard(context.Background(), p.gen); err != nil {
			s.logger.Warn("discard generation", "generation", p.gen, "error", err)
		}
		s.logger.Debug("generation dropped", "generation", p.gen)
		return
	}
	if err != nil {
		s.failLocked(newError(classify(err), s.id, "compose generation", err).withGeneration(p.gen))
		s.mu.Unlock()
		return
	}
	err = s.emitLocked(composed, p.timestamp, p.gen)
	s.mu.Unlock()
	if err != nil {
		return
	}

	if !s.retain {
		if err := s.fragments.Discard(context.Background(), p.gen); err != nil {
			s.logger.Warn("delete encoded fragments", "generation", p.gen, "error", err)
		}
	}
}

// drop discards a queued generation that will not be encoded.
func (s *Session) drop(p pending) {
	defer close(p.done)
	if err := s.fragments.Discard(context.Background(), p.gen); err != nil {
		s.logger.Warn("discard generation", "generation", p.gen, "error", err)
	}
	s.logger.Debug("generation dropped", "generation", p.gen)
}
