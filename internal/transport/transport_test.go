package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrlokans/campussync/internal/cache"
)

func TestArgs_CanonicalIsOrderIndependent(t *testing.T) {
	a := Args{"cmid": 5, "completed": true, "userid": 7}
	b := Args{"userid": 7, "cmid": 5, "completed": true}

	ha, err := a.Hash()
	require.NoError(t, err)
	hb, err := b.Hash()
	require.NoError(t, err)
	assert.Equal(t, ha, hb)

	hc, err := Args{"cmid": 6}.Hash()
	require.NoError(t, err)
	assert.NotEqual(t, ha, hc)

	canonical, err := Args(nil).Canonical()
	require.NoError(t, err)
	assert.Equal(t, "{}", canonical)
}

func TestClassification(t *testing.T) {
	assert.True(t, IsConnectivity(ErrOffline))
	assert.True(t, IsConnectivity(&ConnectivityError{Call: "x", Err: errors.New("reset")}))
	assert.True(t, IsConnectivity(context.DeadlineExceeded))
	assert.False(t, IsConnectivity(&ServerError{Call: "x", Code: "invalidparameter"}))
	assert.False(t, IsConnectivity(errors.New("disk full")))
	assert.False(t, IsConnectivity(nil))

	se, ok := AsServerError(errors.Join(errors.New("wrapped"), &ServerError{Code: "nopermission"}))
	require.True(t, ok)
	assert.Equal(t, "nopermission", se.Code)
}

func newTestServer(t *testing.T, handler http.HandlerFunc) *HTTPClient {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewHTTPClient(server.URL, "secret", time.Second)
}

func TestHTTPClient_Success(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/core_completion_update", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		var args map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&args))
		assert.Equal(t, float64(5), args["cmid"])
		w.Write([]byte(`{"status":true}`))
	})

	resp, err := client.Write(context.Background(), "core_completion_update", Args{"cmid": 5})
	require.NoError(t, err)

	var out struct{ Status bool }
	require.NoError(t, resp.Decode(&out))
	assert.True(t, out.Status)
}

func TestHTTPClient_ErrorClassification(t *testing.T) {
	tests := []struct {
		name         string
		status       int
		body         string
		connectivity bool
		code         string
	}{
		{"exception in 200 body", 200, `{"exception":"moodle_exception","errorcode":"invalidrecord","message":"gone"}`, false, "invalidrecord"},
		{"client error", 403, `{"errorcode":"nopermission"}`, false, "nopermission"},
		{"client error without body", 404, ``, false, "http_404"},
		{"server error", 503, `unavailable`, true, ""},
		{"rate limited", 429, ``, true, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			})

			_, err := client.Write(context.Background(), "call", nil)
			require.Error(t, err)
			assert.Equal(t, tt.connectivity, IsConnectivity(err))
			if tt.code != "" {
				se, ok := AsServerError(err)
				require.True(t, ok)
				assert.Equal(t, tt.code, se.Code)
			}
		})
	}
}

func TestHTTPClient_UnreachableIsConnectivity(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	client := NewHTTPClient(url, "", time.Second)
	_, err := client.Read(context.Background(), "call", nil, ReadOptions{})
	assert.True(t, IsConnectivity(err))
}

type stubTransport struct {
	reads  atomic.Int32
	writes atomic.Int32
	err    error
	body   string
}

func (s *stubTransport) Read(ctx context.Context, call string, args Args, opts ReadOptions) (Response, error) {
	s.reads.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	return Response(s.body), nil
}

func (s *stubTransport) Write(ctx context.Context, call string, args Args) (Response, error) {
	s.writes.Add(1)
	return nil, s.err
}

func TestRetry_RetriesReadsOnly(t *testing.T) {
	inner := &stubTransport{err: &ConnectivityError{Call: "x", Err: errors.New("reset")}}
	r := NewRetry(inner, &RetryConfig{MaxRetries: 2, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond})

	_, err := r.Read(context.Background(), "x", nil, ReadOptions{})
	assert.True(t, IsConnectivity(err))
	assert.Equal(t, int32(3), inner.reads.Load())

	_, err = r.Write(context.Background(), "x", nil)
	assert.Error(t, err)
	assert.Equal(t, int32(1), inner.writes.Load())
}

func TestRetry_DoesNotRetryRejections(t *testing.T) {
	inner := &stubTransport{err: &ServerError{Call: "x", Code: "invalid"}}
	r := NewRetry(inner, &RetryConfig{MaxRetries: 3, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond})

	_, err := r.Read(context.Background(), "x", nil, ReadOptions{})
	_, ok := AsServerError(err)
	assert.True(t, ok)
	assert.Equal(t, int32(1), inner.reads.Load())
}

func TestCached_Strategies(t *testing.T) {
	backend := cache.NewMemoryCache()
	defer backend.Close()
	inner := &stubTransport{body: `{"v":1}`}
	c := NewCached(inner, backend, time.Minute)
	ctx := context.Background()
	opts := ReadOptions{CacheKey: "completion:s:5"}

	_, err := c.Read(ctx, "get", Args{"courseid": 5}, ReadOptions{CacheKey: "completion:s:5", Strategy: OnlyCache})
	assert.ErrorIs(t, err, ErrNotCached)

	resp, err := c.Read(ctx, "get", Args{"courseid": 5}, opts)
	require.NoError(t, err)
	assert.JSONEq(t, `{"v":1}`, string(resp))

	_, err = c.Read(ctx, "get", Args{"courseid": 5}, opts)
	require.NoError(t, err)
	assert.Equal(t, int32(1), inner.reads.Load(), "second read served from cache")

	_, err = c.Read(ctx, "get", Args{"courseid": 5}, ReadOptions{CacheKey: "completion:s:5", Strategy: OnlyNetwork})
	require.NoError(t, err)
	assert.Equal(t, int32(2), inner.reads.Load())

	inner.err = ErrOffline
	resp, err = c.Read(ctx, "get", Args{"courseid": 5}, ReadOptions{CacheKey: "completion:s:5", Strategy: PreferNetwork})
	require.NoError(t, err, "falls back to cache when offline")
	assert.JSONEq(t, `{"v":1}`, string(resp))

	require.NoError(t, c.InvalidatePrefix(ctx, "completion:s:"))
	_, err = c.Read(ctx, "get", Args{"courseid": 5}, opts)
	assert.ErrorIs(t, err, ErrOffline)
	assert.Error(t, c.InvalidatePrefix(ctx, ""))
}
