package transport

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/mrlokans/campussync/internal/cache"
)

// Cached adds response caching to the reads of a Transport. Writes pass through.
type Cached struct {
	inner      Transport
	cache      cache.Cache
	defaultTTL time.Duration
}

func NewCached(inner Transport, c cache.Cache, defaultTTL time.Duration) *Cached {
	return &Cached{inner: inner, cache: c, defaultTTL: defaultTTL}
}

// entryKey places the call under its cache key so InvalidatePrefix(cacheKey)
// drops every response of the group.
func entryKey(call string, args Args, opts ReadOptions) (string, error) {
	hash, err := args.Hash()
	if err != nil {
		return "", err
	}
	group := opts.CacheKey
	if group == "" {
		group = "call:" + call
	}
	return group + "|" + call + "|" + hash, nil
}

func (c *Cached) Read(ctx context.Context, call string, args Args, opts ReadOptions) (Response, error) {
	key, err := entryKey(call, args, opts)
	if err != nil {
		return nil, err
	}

	if opts.Strategy == PreferCache || opts.Strategy == OnlyCache {
		if data, err := c.cache.Get(ctx, key); err == nil {
			return Response(data), nil
		}
		if opts.Strategy == OnlyCache {
			return nil, ErrNotCached
		}
	}

	resp, err := c.inner.Read(ctx, call, args, opts)
	if err != nil {
		if opts.Strategy == PreferNetwork && IsConnectivity(err) {
			if data, cerr := c.cache.Get(ctx, key); cerr == nil {
				return Response(data), nil
			}
		}
		return nil, err
	}

	ttl := opts.TTL
	if ttl == 0 {
		ttl = c.defaultTTL
	}
	if err := c.cache.Set(ctx, key, resp, ttl); err != nil {
		slog.Warn("transport: failed to cache response", "call", call, "error", err)
	}
	return resp, nil
}

func (c *Cached) Write(ctx context.Context, call string, args Args) (Response, error) {
	return c.inner.Write(ctx, call, args)
}

// InvalidatePrefix drops every cached response whose cache key starts with prefix.
func (c *Cached) InvalidatePrefix(ctx context.Context, prefix string) error {
	if prefix == "" {
		return errors.New("refusing to invalidate with an empty prefix")
	}
	return c.cache.DeletePrefix(ctx, prefix)
}
