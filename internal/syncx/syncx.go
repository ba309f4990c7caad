// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package syncx contains synchronization primitives shared by Starhost
// packages.
package syncx

import (
	"context"
	"sync"
	"sync/atomic"
)

// Protect wraps val into [Protected].
func Protect[T any](val T) *Protected[T] { return &Protected[T]{val: val} }

// Protected guards a value, usually a map, with a read-write mutex.
type Protected[T any] struct {
	mu  sync.RWMutex
	val T
}

// RAccess calls f with the value under a read lock.
func (p *Protected[T]) RAccess(f func(T)) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	f(p.val)
}

// Access calls f with the value under a write lock.
func (p *Protected[T]) Access(f func(T)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	f(p.val)
}

// Lazy is a value computed on first use.
type Lazy[T any] struct {
	once sync.Once
	val  T
}

// Get returns the value, calling f to compute it on the first call.
func (l *Lazy[T]) Get(f func() T) T {
	l.once.Do(func() { l.val = f() })
	return l.val
}

// Limiter bounds the number of concurrently running jobs and lets the
// caller wait for all of them to finish.
type Limiter struct {
	slots   chan struct{}
	wg      sync.WaitGroup
	running atomic.Int64
}

// NewLimiter returns a Limiter admitting up to limit jobs at once.
func NewLimiter(limit int) *Limiter {
	return &Limiter{slots: make(chan struct{}, max(limit, 1))}
}

// Acquire blocks until a slot is free or ctx is done. Every successful
// Acquire must be paired with a Release.
func (l *Limiter) Acquire(ctx context.Context) error {
	select {
	case l.slots <- struct{}{}:
	case <-ctx.Done():
		return context.Cause(ctx)
	}
	l.wg.Add(1)
	l.running.Add(1)
	return nil
}

// Release frees a slot taken by Acquire.
func (l *Limiter) Release() {
	l.running.Add(-1)
	<-l.slots
	l.wg.Done()
}

// Running returns the number of acquired slots.
func (l *Limiter) Running() int { return int(l.running.Load()) }

// Wait blocks until every acquired slot is released.
func (l *Limiter) Wait() { l.wg.Wait() }
