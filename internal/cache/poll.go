package cache

import (
	"context"
	"sync"
	"time"
)

// PollHandle detaches one observer from a polled key. Stop is safe to call
// more than once.
type PollHandle struct {
	once sync.Once
	stop func()
}

// Stop detaches the observer. When the last observer detaches, the next
// scheduled tick is skipped and the poller goroutine exits; a fetch already
// in flight is not cancelled, only its delivery dropped if the entry is
// flushed.
func (h *PollHandle) Stop() {
	if h == nil {
		return
	}
	h.once.Do(h.stop)
}

// Poll re-issues Get for key on a fixed interval regardless of staleness,
// for resources whose freshness matters more than request economy (bot
// running-status, performance metrics). Observers of the same key share one
// ticker; polling stops when the last observer detaches.
func (s *Store) Poll(ctx context.Context, key string, interval time.Duration, fetch FetchFunc) *PollHandle {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	s.pollMu.Lock()
	p := s.pollers[key]
	if p == nil {
		p = &poller{stopC: make(chan struct{})}
		s.pollers[key] = p
		go s.pollLoop(ctx, key, interval, fetch, p.stopC)
	}
	p.observers++
	s.pollMu.Unlock()

	return &PollHandle{stop: func() { s.detach(key, p) }}
}

func (s *Store) detach(key string, p *poller) {
	s.pollMu.Lock()
	defer s.pollMu.Unlock()
	if s.pollers[key] != p {
		// The poller was already torn down by a flush.
		return
	}
	p.observers--
	if p.observers <= 0 {
		close(p.stopC)
		delete(s.pollers, key)
	}
}

func (s *Store) stopAllPollers() {
	s.pollMu.Lock()
	defer s.pollMu.Unlock()
	for key, p := range s.pollers {
		close(p.stopC)
		delete(s.pollers, key)
	}
}

func (s *Store) pollLoop(ctx context.Context, key string, interval time.Duration, fetch FetchFunc, stopC <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-stopC:
			return
		case <-ticker.C:
			if s.limiter != nil && !s.limiter.Allow() {
				// Over the outbound budget: skip rather than queue.
				continue
			}
			s.expire(key)
			if _, err := s.Get(ctx, key, fetch); err != nil {
				s.logger.Debug("poll refresh failed", "key", key, "error", err)
			}
		}
	}
}
