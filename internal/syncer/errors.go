package syncer

import (
	"errors"
	"fmt"
	"time"

	"github.com/mrlokans/campussync/internal/transport"
)

// ErrBlocked indicates another operation holds the key; try again later.
var ErrBlocked = errors.New("sync is blocked")

// Kind is the reconciliation outcome class of an error.
type Kind int

const (
	KindNone Kind = iota
	// KindConnectivity leaves queued state untouched and can be retried.
	KindConnectivity
	// KindRejected means the server will never accept the payload; it is discarded.
	KindRejected
	// KindConflict means newer server state superseded the offline data; it is discarded.
	KindConflict
	// KindInternal covers storage and logic faults; the key's run aborts.
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindConnectivity:
		return "connectivity"
	case KindRejected:
		return "rejected"
	case KindConflict:
		return "conflict"
	default:
		return "internal"
	}
}

func Classify(err error) Kind {
	if err == nil {
		return KindNone
	}
	var ce *ConflictError
	if errors.As(err, &ce) {
		return KindConflict
	}
	if _, ok := transport.AsServerError(err); ok {
		return KindRejected
	}
	if transport.IsConnectivity(err) {
		return KindConnectivity
	}
	return KindInternal
}

// ConflictError reports offline data that was superseded by a newer server copy.
type ConflictError struct {
	Component      string
	EntityID       string
	LocalCreated   time.Time
	ServerModified time.Time
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s %s: offline changes from %s were discarded because the item was modified on the server at %s",
		e.Component, e.EntityID,
		e.LocalCreated.Format(time.RFC3339), e.ServerModified.Format(time.RFC3339))
}

// InternalError wraps a storage or logic fault during reconciliation.
type InternalError struct {
	Op  string
	Err error
}

func (e *InternalError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *InternalError) Unwrap() error { return e.Err }

// RejectionWarning turns a server rejection into the warning shown to the user.
func RejectionWarning(component, entityID string, err error) string {
	cause := err.Error()
	if se, ok := transport.AsServerError(err); ok {
		cause = se.Message
		if cause == "" {
			cause = se.Code
		}
	}
	return fmt.Sprintf("%s %s: offline changes were discarded because the server rejected them: %s",
		component, entityID, cause)
}
