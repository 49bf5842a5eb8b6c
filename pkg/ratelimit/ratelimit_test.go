package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestLock(t *testing.T) {
	ctx := context.Background()
	l := New(50 * time.Millisecond)
	start := time.Now()
	for i := 0; i < 3; i++ {
		unlock := l.Lock(ctx)
		unlock()
	}
	// First call doesn't wait
	if elapsed := time.Since(start); elapsed < 2*42*time.Millisecond {
		t.Fatalf("Lock() elapsed = %v; want at least %v", elapsed, 2*42*time.Millisecond)
	}
}

func TestLockCanceled(t *testing.T) {
	l := New(time.Hour)
	unlock := l.Lock(context.Background())
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	done := make(chan struct{})
	go func() {
		l.Lock(ctx)()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Lock() didn't return after context was canceled")
	}
}
