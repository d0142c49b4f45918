// Package poll implements the read-side sync contract: a snapshot of some
// query re-fetched on a fixed interval or on demand. Readers never see a
// torn result (each snapshot is replaced wholesale) and may see data stale
// by at most one interval.
package poll

import (
	"context"
	"sync"
	"time"
)

// DefaultInterval matches the refresh cadence the web clients have always
// polled at.
const DefaultInterval = 15 * time.Second

// Subscription periodically re-evaluates fetch and retains the latest
// result. A failed re-fetch keeps the previous snapshot; the error is
// remembered until the next successful fetch.
type Subscription[T any] struct {
	fetch    func(context.Context) (T, error)
	interval time.Duration

	mu        sync.RWMutex
	snapshot  T
	fetchedAt time.Time
	lastErr   error

	updates chan T
	stop    chan struct{}
	done    chan struct{}
}

// New creates a subscription and performs the initial fetch synchronously so
// Snapshot is valid immediately. The background refresher runs until Stop is
// called or ctx is cancelled.
func New[T any](ctx context.Context, fetch func(context.Context) (T, error), interval time.Duration) (*Subscription[T], error) {
	if interval <= 0 {
		interval = DefaultInterval
	}
	s := &Subscription[T]{
		fetch:    fetch,
		interval: interval,
		updates:  make(chan T, 1),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	if _, err := s.Refresh(ctx); err != nil {
		return nil, err
	}
	go s.run(ctx)
	return s, nil
}

func (s *Subscription[T]) run(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			// Errors are retained on the subscription; the stale
			// snapshot keeps serving until a fetch succeeds again.
			_, _ = s.Refresh(ctx)
		case <-s.stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Refresh re-fetches immediately, outside the regular cadence. Used when a
// view regains focus and wants a fresh snapshot now.
func (s *Subscription[T]) Refresh(ctx context.Context) (T, error) {
	v, err := s.fetch(ctx)

	s.mu.Lock()
	if err != nil {
		s.lastErr = err
		v = s.snapshot
	} else {
		s.snapshot = v
		s.fetchedAt = time.Now()
		s.lastErr = nil
	}
	s.mu.Unlock()

	if err == nil {
		// Best-effort broadcast; a slow listener never blocks the poller.
		select {
		case s.updates <- v:
		default:
		}
	}
	return v, err
}

// Snapshot returns the latest successfully fetched value and when it was
// fetched.
func (s *Subscription[T]) Snapshot() (T, time.Time) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot, s.fetchedAt
}

// Err returns the error from the most recent fetch attempt, or nil.
func (s *Subscription[T]) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}

// Updates delivers fresh snapshots as they arrive. The channel has a buffer
// of one; intermediate snapshots are dropped for slow consumers.
func (s *Subscription[T]) Updates() <-chan T {
	return s.updates
}

// Stop terminates the background refresher and waits for it to exit.
// Idempotent calls are not supported; call Stop exactly once.
func (s *Subscription[T]) Stop() {
	close(s.stop)
	<-s.done
}
