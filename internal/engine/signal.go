package engine

import (
	"context"
	"sync"
	"time"
)

// signal is a one-shot event: Set fires it, Clear re-arms it. Waiters see a
// fire that happened before they started waiting, which matters here because
// stream events can land between placing an order and waiting on the result.
type signal struct {
	mu    sync.Mutex
	ch    chan struct{}
	fired bool
}

func newSignal() *signal {
	return &signal{ch: make(chan struct{})}
}

// Set fires the signal. Idempotent until the next Clear.
func (s *signal) Set() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.fired {
		s.fired = true
		close(s.ch)
	}
}

// Clear re-arms the signal for the next cycle.
func (s *signal) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fired {
		s.fired = false
		s.ch = make(chan struct{})
	}
}

// Fired reports whether the signal is currently set.
func (s *signal) Fired() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fired
}

// Wait blocks until the signal fires, the timeout elapses, or ctx is
// cancelled. Returns true only when the signal fired.
func (s *signal) Wait(ctx context.Context, timeout time.Duration) bool {
	s.mu.Lock()
	ch := s.ch
	s.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ch:
		return true
	case <-timer.C:
		return false
	case <-ctx.Done():
		return false
	}
}
