package link

import (
	"context"
	"time"
)

// Semaphore is a binary semaphore. Give is non-blocking and idempotent:
// giving an already-available semaphore has no effect.
type Semaphore struct {
	ch chan struct{}
}

// NewSemaphore returns an empty semaphore.
func NewSemaphore() *Semaphore {
	return &Semaphore{ch: make(chan struct{}, 1)}
}

// Give makes the semaphore available.
func (s *Semaphore) Give() {
	select {
	case s.ch <- struct{}{}:
	default:
	}
}

// TryTake takes the semaphore if it is available.
func (s *Semaphore) TryTake() bool {
	select {
	case <-s.ch:
		return true
	default:
		return false
	}
}

// Take blocks until the semaphore is available or ctx is done.
func (s *Semaphore) Take(ctx context.Context) error {
	select {
	case <-s.ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TakeTimeout waits at most d. It reports false when d elapsed first.
func (s *Semaphore) TakeTimeout(ctx context.Context, d time.Duration) (bool, error) {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-s.ch:
		return true, nil
	case <-timer.C:
		return false, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// Drain empties the semaphore.
func (s *Semaphore) Drain() {
	s.TryTake()
}
