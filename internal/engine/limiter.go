package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/soteldo/umbra/pkg/schema"
)

// ErrLimiterShutdown is returned when work is submitted to a shut-down limiter.
var ErrLimiterShutdown = errors.New("concurrency limiter is shut down")

// LimiterMetrics tracks limiter operational counters.
type LimiterMetrics struct {
	Active    int64 `json:"active"`
	Waiting   int64 `json:"waiting"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
}

// ConcurrencyLimiter bounds how many tasks run at once. Admission is strict
// FIFO: waiters are granted slots in the order they called Acquire, so a
// batch of profile runs starts in submission order as capacity frees up.
type ConcurrencyLimiter struct {
	mu      sync.Mutex
	max     int
	active  int
	waiters []chan struct{}
	closed  bool
	done    chan struct{}

	wg      sync.WaitGroup
	metrics LimiterMetrics
}

// NewLimiter creates a limiter admitting at most max concurrent tasks.
// max must be at least 1.
func NewLimiter(max int) (*ConcurrencyLimiter, error) {
	if max < 1 {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"concurrency limit must be at least 1, got %d", max)
	}
	return &ConcurrencyLimiter{max: max, done: make(chan struct{})}, nil
}

// Acquire blocks until a slot is free, the context is cancelled, or the
// limiter shuts down. Callers that acquired a slot must call Release.
func (l *ConcurrencyLimiter) Acquire(ctx context.Context) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return ErrLimiterShutdown
	}
	if l.active < l.max {
		l.active++
		l.mu.Unlock()
		atomic.AddInt64(&l.metrics.Active, 1)
		return nil
	}

	ch := make(chan struct{})
	l.waiters = append(l.waiters, ch)
	l.mu.Unlock()
	atomic.AddInt64(&l.metrics.Waiting, 1)
	defer atomic.AddInt64(&l.metrics.Waiting, -1)

	select {
	case <-ch:
		// The releaser handed its slot over, accounting included; a grantee
		// that never reads ch (cancellation race) stays balanced via Release.
		return nil
	case <-ctx.Done():
		l.mu.Lock()
		removed := l.removeWaiter(ch)
		l.mu.Unlock()
		if !removed {
			// The slot was granted while we were cancelling; pass it on.
			l.Release()
		}
		return ctx.Err()
	case <-l.done:
		l.mu.Lock()
		removed := l.removeWaiter(ch)
		l.mu.Unlock()
		if !removed {
			l.Release()
		}
		return ErrLimiterShutdown
	}
}

// removeWaiter deletes ch from the queue. Caller holds the lock.
// Returns false when the slot was already granted (ch closed).
func (l *ConcurrencyLimiter) removeWaiter(ch chan struct{}) bool {
	for i, w := range l.waiters {
		if w == ch {
			l.waiters = append(l.waiters[:i], l.waiters[i+1:]...)
			return true
		}
	}
	return false
}

// Release frees a slot. The oldest waiter, if any, is granted the slot
// directly, preserving FIFO admission. A handoff transfers the slot whole:
// the Active count is unchanged because the slot never went free.
func (l *ConcurrencyLimiter) Release() {
	l.mu.Lock()
	if len(l.waiters) > 0 {
		ch := l.waiters[0]
		l.waiters = l.waiters[1:]
		l.mu.Unlock()
		close(ch)
		return
	}
	l.active--
	l.mu.Unlock()
	atomic.AddInt64(&l.metrics.Active, -1)
}

// Run acquires a slot and executes fn on a new goroutine, releasing the slot
// when fn returns. Panics are contained and counted as failures.
func (l *ConcurrencyLimiter) Run(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := l.Acquire(ctx); err != nil {
		return err
	}

	l.wg.Add(1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				atomic.AddInt64(&l.metrics.Failed, 1)
			}
			l.Release()
			l.wg.Done()
		}()

		if err := fn(ctx); err != nil {
			atomic.AddInt64(&l.metrics.Failed, 1)
		} else {
			atomic.AddInt64(&l.metrics.Completed, 1)
		}
	}()
	return nil
}

// Wait blocks until all tasks started via Run complete.
func (l *ConcurrencyLimiter) Wait() {
	l.wg.Wait()
}

// Shutdown prevents new acquisitions, fails all waiters, and waits for
// running tasks to finish.
func (l *ConcurrencyLimiter) Shutdown() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	close(l.done)
	l.mu.Unlock()

	l.wg.Wait()
}

// Metrics returns a snapshot of the current limiter metrics.
func (l *ConcurrencyLimiter) Metrics() LimiterMetrics {
	return LimiterMetrics{
		Active:    atomic.LoadInt64(&l.metrics.Active),
		Waiting:   atomic.LoadInt64(&l.metrics.Waiting),
		Completed: atomic.LoadInt64(&l.metrics.Completed),
		Failed:    atomic.LoadInt64(&l.metrics.Failed),
	}
}
