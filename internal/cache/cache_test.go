package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// exerciseCache runs the behaviour every Cache implementation must share.
func exerciseCache(t *testing.T, c Cache) {
	ctx := context.Background()

	_, err := c.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrCacheMiss)

	require.NoError(t, c.Set(ctx, "pkg:s:mod_resource:1", []byte("downloaded"), 0))
	require.NoError(t, c.Set(ctx, "pkg:s:mod_resource:2", []byte("outdated"), time.Minute))
	require.NoError(t, c.Set(ctx, "pkg:s:mod_page:3", []byte("downloading"), time.Minute))

	value, err := c.Get(ctx, "pkg:s:mod_resource:1")
	require.NoError(t, err)
	assert.Equal(t, "downloaded", string(value))

	require.NoError(t, c.DeletePrefix(ctx, "pkg:s:mod_resource:"))
	_, err = c.Get(ctx, "pkg:s:mod_resource:2")
	assert.ErrorIs(t, err, ErrCacheMiss)
	_, err = c.Get(ctx, "pkg:s:mod_page:3")
	assert.NoError(t, err)

	require.NoError(t, c.Delete(ctx, "pkg:s:mod_page:3"))
	_, err = c.Get(ctx, "pkg:s:mod_page:3")
	assert.ErrorIs(t, err, ErrCacheMiss)

	require.NoError(t, c.Set(ctx, "x", []byte("1"), 0))
	require.NoError(t, c.Clear(ctx))
	_, err = c.Get(ctx, "x")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestMemoryCache(t *testing.T) {
	c := NewMemoryCache()
	defer c.Close()
	exerciseCache(t, c)
}

func TestMemoryCache_Expiry(t *testing.T) {
	c := NewMemoryCache()
	defer c.Close()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", []byte("v"), 10*time.Millisecond))
	time.Sleep(30 * time.Millisecond)

	_, err := c.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrCacheMiss)

	c.removeExpired()
	assert.Empty(t, c.entries)
}

func TestMemoryCache_ReturnsCopies(t *testing.T) {
	c := NewMemoryCache()
	defer c.Close()
	ctx := context.Background()

	value := []byte("abc")
	require.NoError(t, c.Set(ctx, "k", value, 0))
	value[0] = 'x'

	got, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(got))
}

func TestPrefixed_IsolatesNamespaces(t *testing.T) {
	backend := NewMemoryCache()
	defer backend.Close()
	ctx := context.Background()

	status := WithPrefix(backend, "status:")
	reads := WithPrefix(backend, "ws:")

	require.NoError(t, status.Set(ctx, "s:1", []byte("a"), 0))
	require.NoError(t, reads.Set(ctx, "s:1", []byte("b"), 0))

	require.NoError(t, status.Clear(ctx))

	_, err := status.Get(ctx, "s:1")
	assert.ErrorIs(t, err, ErrCacheMiss)
	got, err := reads.Get(ctx, "s:1")
	require.NoError(t, err)
	assert.Equal(t, "b", string(got))
}

func TestRedisCache(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}

	c, err := NewRedisCache(RedisConfig{Addr: addr, KeyPrefix: "campussync-test:" + t.Name() + ":"})
	require.NoError(t, err)
	defer c.Close()

	exerciseCache(t, c)
}
