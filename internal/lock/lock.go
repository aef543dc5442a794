// Package lock serializes import runs per source identity. Two runs against
// the same checkpoint would race, so callers take a lock before running.
package lock

import (
	"context"
	"errors"
	"sort"
	"sync"
)

// ErrLocked is returned when the key is already held.
var ErrLocked = errors.New("import already running for this source")

// Locker acquires exclusive, non-blocking locks by key.
type Locker interface {
	// TryLock takes the lock for key or fails with ErrLocked. The returned
	// release function must be called exactly once.
	TryLock(ctx context.Context, key string) (release func(), err error)
}

// Local is an in-process Locker that also tracks running keys.
type Local struct {
	mu      sync.Mutex
	running map[string]struct{}
	wg      sync.WaitGroup
}

// NewLocal returns an empty in-process locker.
func NewLocal() *Local {
	return &Local{running: make(map[string]struct{})}
}

// TryLock implements Locker.
func (l *Local) TryLock(_ context.Context, key string) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.running[key]; ok {
		return nil, ErrLocked
	}
	l.running[key] = struct{}{}
	l.wg.Add(1)

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.running, key)
			l.mu.Unlock()
			l.wg.Done()
		})
	}, nil
}

// Running lists the held keys in sorted order.
func (l *Local) Running() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, 0, len(l.running))
	for k := range l.running {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// WaitAll blocks until every held key is released or ctx is done.
func (l *Local) WaitAll(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Chain takes every locker in order and releases them in reverse.
type Chain []Locker

// TryLock implements Locker.
func (c Chain) TryLock(ctx context.Context, key string) (func(), error) {
	releases := make([]func(), 0, len(c))
	releaseAll := func() {
		for i := len(releases) - 1; i >= 0; i-- {
			releases[i]()
		}
	}
	for _, l := range c {
		rel, err := l.TryLock(ctx, key)
		if err != nil {
			releaseAll()
			return nil, err
		}
		releases = append(releases, rel)
	}
	return releaseAll, nil
}
