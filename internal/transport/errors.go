package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrOffline indicates the device has no connectivity; nothing was sent.
var ErrOffline = errors.New("device is offline")

// ErrNotCached indicates a cache-only read found nothing.
var ErrNotCached = errors.New("response not cached")

// ServerError is a rejection by the remote platform. Resending the same call
// will fail the same way.
type ServerError struct {
	Call    string
	Code    string
	Message string
}

func (e *ServerError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s rejected: %s", e.Call, e.Code)
	}
	return fmt.Sprintf("%s rejected (%s): %s", e.Call, e.Code, e.Message)
}

// ConnectivityError is a transport-level failure: the call may not have reached
// the server and can be retried.
type ConnectivityError struct {
	Call string
	Err  error
}

func (e *ConnectivityError) Error() string {
	return fmt.Sprintf("%s: connection failed: %v", e.Call, e.Err)
}

func (e *ConnectivityError) Unwrap() error { return e.Err }

// IsConnectivity reports whether err is retryable and leaves queued state intact.
// Timeouts count as connectivity failures.
func IsConnectivity(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrOffline) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ce *ConnectivityError
	if errors.As(err, &ce) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne)
}

// AsServerError extracts the server rejection from err, if any.
func AsServerError(err error) (*ServerError, bool) {
	var se *ServerError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}
