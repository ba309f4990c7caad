// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package syncx

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.astrophena.name/starhost/internal/testutil"
)

func TestProtected(t *testing.T) {
	t.Parallel()

	p := Protect(make(map[string]int))
	var wg sync.WaitGroup
	for range 100 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.Access(func(m map[string]int) { m["hits"]++ })
		}()
	}
	wg.Wait()

	var hits int
	p.RAccess(func(m map[string]int) { hits = m["hits"] })
	testutil.AssertEqual(t, hits, 100)
}

func TestLazy(t *testing.T) {
	t.Parallel()

	var (
		l       Lazy[error]
		calls   atomic.Int32
		errInit = errors.New("store unreachable")
	)
	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := l.Get(func() error {
				calls.Add(1)
				return errInit
			})
			if !errors.Is(err, errInit) {
				t.Errorf("Get() = %v, want %v", err, errInit)
			}
		}()
	}
	wg.Wait()
	testutil.AssertEqual(t, calls.Load(), int32(1))
}

func TestLimiter(t *testing.T) {
	t.Parallel()

	const limit = 3
	l := NewLimiter(limit)

	var (
		wg      sync.WaitGroup
		current atomic.Int32
		peak    atomic.Int32
	)
	for range 10 {
		if err := l.Acquire(t.Context()); err != nil {
			t.Fatal(err)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer l.Release()
			n := current.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(10 * time.Millisecond)
			current.Add(-1)
		}()
	}
	l.Wait()
	wg.Wait()

	if got := peak.Load(); got > limit {
		t.Fatalf("peak concurrency = %d, want at most %d", got, limit)
	}
	testutil.AssertEqual(t, l.Running(), 0)
}

func TestLimiterAcquireCanceled(t *testing.T) {
	t.Parallel()

	l := NewLimiter(1)
	if err := l.Acquire(t.Context()); err != nil {
		t.Fatal(err)
	}
	testutil.AssertEqual(t, l.Running(), 1)

	errBusy := errors.New("too many invocations")
	ctx, cancel := context.WithTimeoutCause(t.Context(), 10*time.Millisecond, errBusy)
	defer cancel()
	if err := l.Acquire(ctx); !errors.Is(err, errBusy) {
		t.Fatalf("Acquire() = %v, want %v", err, errBusy)
	}
	testutil.AssertEqual(t, l.Running(), 1)

	l.Release()
	l.Wait()
	testutil.AssertEqual(t, l.Running(), 0)
}
