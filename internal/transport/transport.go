// Package transport is the boundary to the remote learning platform: typed
// read/write calls whose failures are classified as server rejections or
// connectivity problems.
package transport

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// Args are the named arguments of a remote call.
type Args map[string]any

// Canonical returns the JSON encoding of args with sorted keys, so logically
// identical calls encode identically.
func (a Args) Canonical() (string, error) {
	if a == nil {
		return "{}", nil
	}
	data, err := json.Marshal(map[string]any(a))
	if err != nil {
		return "", fmt.Errorf("encode args: %w", err)
	}
	return string(data), nil
}

// Hash returns the SHA-256 of the canonical encoding.
func (a Args) Hash() (string, error) {
	canonical, err := a.Canonical()
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:]), nil
}

// Response is the raw JSON body of a successful call.
type Response []byte

func (r Response) Decode(v any) error {
	if len(r) == 0 {
		return nil
	}
	return json.Unmarshal(r, v)
}

type Strategy int

const (
	// PreferCache answers from the cache when possible.
	PreferCache Strategy = iota
	// PreferNetwork asks the server and falls back to the cache when unreachable.
	PreferNetwork
	// OnlyNetwork always asks the server; the answer still refreshes the cache.
	OnlyNetwork
	// OnlyCache never touches the network.
	OnlyCache
)

// ReadOptions control caching of a read.
type ReadOptions struct {
	// CacheKey groups cached responses so they can be invalidated together.
	CacheKey string
	Strategy Strategy
	TTL      time.Duration
}

type Writer interface {
	Write(ctx context.Context, call string, args Args) (Response, error)
}

type Reader interface {
	Read(ctx context.Context, call string, args Args, opts ReadOptions) (Response, error)
}

type Transport interface {
	Writer
	Reader
}
