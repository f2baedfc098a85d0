// Package flight holds the in-memory registries that guarantee one running
// execution per key.
package flight

import (
	"context"
	"fmt"
	"sync"
)

type call[T any] struct {
	done    chan struct{}
	val     T
	err     error
	waiters int
}

// Group runs at most one function per key at a time. Callers that arrive while
// an execution is running share its result instead of starting another.
// The zero value is ready to use.
type Group[T any] struct {
	mu    sync.Mutex
	calls map[string]*call[T]
}

// Do runs fn for key unless an execution for key is already in flight, in which
// case it waits for that execution. shared reports whether the result came from
// an execution started by another caller.
//
// fn receives a context detached from the caller's cancellation: a caller whose
// ctx ends stops waiting, but the execution keeps running for the others.
func (g *Group[T]) Do(ctx context.Context, key string, fn func(context.Context) (T, error)) (v T, shared bool, err error) {
	g.mu.Lock()
	if g.calls == nil {
		g.calls = make(map[string]*call[T])
	}
	if c, ok := g.calls[key]; ok {
		c.waiters++
		g.mu.Unlock()
		return wait(ctx, c, true)
	}
	c := &call[T]{done: make(chan struct{})}
	g.calls[key] = c
	g.mu.Unlock()

	go g.run(context.WithoutCancel(ctx), key, c, fn)
	return wait(ctx, c, false)
}

func (g *Group[T]) run(ctx context.Context, key string, c *call[T], fn func(context.Context) (T, error)) {
	defer func() {
		if r := recover(); r != nil {
			c.err = fmt.Errorf("flight %q: panic: %v", key, r)
		}
		g.mu.Lock()
		delete(g.calls, key)
		g.mu.Unlock()
		close(c.done)
	}()
	c.val, c.err = fn(ctx)
}

func wait[T any](ctx context.Context, c *call[T], shared bool) (T, bool, error) {
	select {
	case <-c.done:
		return c.val, shared, c.err
	case <-ctx.Done():
		var zero T
		return zero, shared, ctx.Err()
	}
}

// InFlight reports whether an execution for key is running.
func (g *Group[T]) InFlight(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.calls[key]
	return ok
}

// Waiters returns how many callers joined the running execution for key,
// not counting the one that started it.
func (g *Group[T]) Waiters(key string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	if c, ok := g.calls[key]; ok {
		return c.waiters
	}
	return 0
}
