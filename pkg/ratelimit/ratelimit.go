package ratelimit

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// Lock serializes calls and keeps a minimum interval between them.
type Lock interface {
	// Lock blocks until the caller is allowed to proceed and returns the
	// function to release the lock.
	Lock(ctx context.Context) func()
}

type lock struct {
	ch   chan struct{}
	wait time.Duration
	last time.Time
	lck  sync.Mutex
}

// New returns a Lock that waits between 0.85 and 1.15 times the given
// duration between consecutive calls.
func New(wait time.Duration) Lock {
	return &lock{
		ch:   make(chan struct{}, 1),
		wait: wait,
	}
}

func (l *lock) Lock(ctx context.Context) func() {
	select {
	case l.ch <- struct{}{}:
	case <-ctx.Done():
		return func() {}
	}

	l.lck.Lock()
	elapsed := time.Since(l.last)
	l.lck.Unlock()

	wait := l.jitter() - elapsed
	if wait > 0 {
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
		case <-t.C:
		}
	}
	return func() {
		l.lck.Lock()
		l.last = time.Now()
		l.lck.Unlock()
		<-l.ch
	}
}

func (l *lock) jitter() time.Duration {
	if l.wait <= 0 {
		return 0
	}
	return time.Duration(float64(l.wait) * (0.85 + rand.Float64()*0.3))
}
