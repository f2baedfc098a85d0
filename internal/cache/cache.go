// Package cache stores short-lived derived data: computed package statuses and
// the responses of remote reads.
package cache

import (
	"context"
	"time"
)

// Cache defines the interface for caching operations.
// The memory implementation serves a single process; Redis lets several
// processes share invalidations.
type Cache interface {
	// Get retrieves a value by key. Returns ErrCacheMiss if not found.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value with the given TTL. A zero TTL never expires.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a value by key.
	Delete(ctx context.Context, key string) error

	// DeletePrefix removes every key starting with prefix.
	DeletePrefix(ctx context.Context, prefix string) error

	// Clear removes all entries from the cache.
	Clear(ctx context.Context) error
}

type CacheError string

func (e CacheError) Error() string { return string(e) }

const (
	// ErrCacheMiss indicates the key was not found in cache.
	ErrCacheMiss CacheError = "cache miss"
)

// Prefixed confines a cache to a key namespace, so two users of one backend
// can clear their own keys without touching each other's.
type Prefixed struct {
	inner  Cache
	prefix string
}

func WithPrefix(inner Cache, prefix string) *Prefixed {
	return &Prefixed{inner: inner, prefix: prefix}
}

func (p *Prefixed) Get(ctx context.Context, key string) ([]byte, error) {
	return p.inner.Get(ctx, p.prefix+key)
}

func (p *Prefixed) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return p.inner.Set(ctx, p.prefix+key, value, ttl)
}

func (p *Prefixed) Delete(ctx context.Context, key string) error {
	return p.inner.Delete(ctx, p.prefix+key)
}

func (p *Prefixed) DeletePrefix(ctx context.Context, prefix string) error {
	return p.inner.DeletePrefix(ctx, p.prefix+prefix)
}

func (p *Prefixed) Clear(ctx context.Context) error {
	return p.inner.DeletePrefix(ctx, p.prefix)
}
