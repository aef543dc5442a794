package core

// run_limiter.go caps the number of imports running at once.
//
// Each run holds one slot of a semaphore for its whole duration. When every
// slot is taken, a new run waits up to maxWait before failing with
// ErrTooManyRuns. WaitForDrain lets the server finish running imports on
// shutdown.

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// ErrTooManyRuns is returned when no run slot frees up within the wait time.
var ErrTooManyRuns = errors.New("too many import runs in progress, please try again later")

// DefaultMaxConcurrentRuns is the default limit for parallel runs.
const DefaultMaxConcurrentRuns = 4

// DefaultMaxWaitTime is how long to wait for a slot before rejecting.
const DefaultMaxWaitTime = 30 * time.Second

// RunLimiter is a counting semaphore for import runs.
type RunLimiter struct {
	slots   chan struct{}
	maxWait time.Duration
	active  atomic.Int64
}

// NewRunLimiter allows at most maxConcurrent simultaneous runs.
func NewRunLimiter(maxConcurrent int, maxWait time.Duration) *RunLimiter {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrentRuns
	}
	if maxWait <= 0 {
		maxWait = DefaultMaxWaitTime
	}
	return &RunLimiter{
		slots:   make(chan struct{}, maxConcurrent),
		maxWait: maxWait,
	}
}

// Acquire waits for a slot. The returned release function frees it and is
// safe to call more than once.
func (l *RunLimiter) Acquire(ctx context.Context) (release func(), err error) {
	waitCtx, cancel := context.WithTimeout(ctx, l.maxWait)
	defer cancel()

	select {
	case l.slots <- struct{}{}:
	case <-waitCtx.Done():
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, ErrTooManyRuns
	}

	l.active.Add(1)
	var once sync.Once
	return func() {
		once.Do(func() {
			l.active.Add(-1)
			<-l.slots
		})
	}, nil
}

// ActiveCount returns the number of running imports.
func (l *RunLimiter) ActiveCount() int { return int(l.active.Load()) }

// MaxConcurrent returns the slot count.
func (l *RunLimiter) MaxConcurrent() int { return cap(l.slots) }

// WaitForDrain blocks until no run holds a slot or ctx is done.
func (l *RunLimiter) WaitForDrain(ctx context.Context) error {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		if l.ActiveCount() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunLimiterStatus is a snapshot of the limiter.
type RunLimiterStatus struct {
	Active        int `json:"active"`
	Available     int `json:"available"`
	MaxConcurrent int `json:"max_concurrent"`
}

// Status returns the current limiter state for monitoring.
func (l *RunLimiter) Status() RunLimiterStatus {
	return RunLimiterStatus{
		Active:        l.ActiveCount(),
		Available:     cap(l.slots) - len(l.slots),
		MaxConcurrent: cap(l.slots),
	}
}
