package transport

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"
)

// RetryConfig configures retry behavior for connectivity errors.
type RetryConfig struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	JitterFraction float64 // 0.0 to 1.0
	// RetryWrites also retries writes. A write whose response was lost may have
	// been applied, so leave this off unless the remote calls are idempotent.
	RetryWrites bool
}

func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxRetries:     3,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     30 * time.Second,
		JitterFraction: 0.25,
	}
}

// Retry wraps a Transport with automatic retry on connectivity errors.
type Retry struct {
	inner  Transport
	config *RetryConfig
}

func NewRetry(inner Transport, cfg *RetryConfig) *Retry {
	if cfg == nil {
		cfg = DefaultRetryConfig()
	}
	return &Retry{inner: inner, config: cfg}
}

func isTransient(err error) bool {
	if err == nil || errors.Is(err, ErrOffline) || errors.Is(err, context.Canceled) {
		return false
	}
	return IsConnectivity(err)
}

func (r *Retry) backoff(attempt int) time.Duration {
	base := float64(r.config.InitialBackoff) * math.Pow(2, float64(attempt))
	if base > float64(r.config.MaxBackoff) {
		base = float64(r.config.MaxBackoff)
	}
	jitter := base * r.config.JitterFraction * (rand.Float64()*2 - 1)
	d := time.Duration(base + jitter)
	if d < 0 {
		d = 0
	}
	return d
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Retry) retry(ctx context.Context, call string, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt <= r.config.MaxRetries; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !isTransient(lastErr) {
			return lastErr
		}
		if attempt < r.config.MaxRetries {
			if err := sleep(ctx, r.backoff(attempt)); err != nil {
				return fmt.Errorf("%s: %w (retry cancelled)", call, lastErr)
			}
		}
	}
	return fmt.Errorf("%s: %w (after %d retries)", call, lastErr, r.config.MaxRetries)
}

func (r *Retry) Read(ctx context.Context, call string, args Args, opts ReadOptions) (resp Response, err error) {
	err = r.retry(ctx, call, func() error {
		resp, err = r.inner.Read(ctx, call, args, opts)
		return err
	})
	return
}

func (r *Retry) Write(ctx context.Context, call string, args Args) (resp Response, err error) {
	if !r.config.RetryWrites {
		return r.inner.Write(ctx, call, args)
	}
	err = r.retry(ctx, call, func() error {
		resp, err = r.inner.Write(ctx, call, args)
		return err
	})
	return
}
