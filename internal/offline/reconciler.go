package offline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mrlokans/campussync/internal/syncer"
)

// EntitySync reconciles one component's offline records, one entity and user
// at a time. Fetch and Invalidate are optional.
type EntitySync[P any] struct {
	Records *Collection[P]

	// Fetch returns when the server copy last changed. A change after the
	// record was created means the record is stale and gets discarded.
	Fetch func(ctx context.Context, rec Record[P]) (time.Time, error)

	// Submit sends the record's content to the server.
	Submit func(ctx context.Context, rec Record[P]) error

	// Invalidate drops cached server data about the entity after a change.
	Invalidate func(ctx context.Context, rec Record[P]) error
}

// Reconcile implements syncer.Reconciler for keys built by syncer.NewKey.
func (s *EntitySync[P]) Reconcile(ctx context.Context, siteID string, key syncer.Key) (syncer.Result, error) {
	var result syncer.Result
	entityID, userID := key.Split()
	component := s.Records.Component()

	rec, found, err := s.Records.Get(siteID, entityID, userID)
	if err != nil {
		return result, &syncer.InternalError{Op: "read offline record", Err: err}
	}
	if !found {
		return result, nil
	}

	if s.Fetch != nil {
		modified, err := s.Fetch(ctx, *rec)
		if err != nil {
			return result, err
		}
		if modified.After(rec.CreatedAt) {
			conflict := &syncer.ConflictError{
				Component:      component,
				EntityID:       entityID,
				LocalCreated:   rec.CreatedAt,
				ServerModified: modified,
			}
			if err := s.Records.Delete(siteID, entityID, userID); err != nil {
				return result, &syncer.InternalError{Op: "discard stale offline record", Err: err}
			}
			slog.Info("Discarded stale offline record", "component", component, "site", siteID, "entity", entityID)
			result.Warnings = append(result.Warnings, conflict.Error())
			result.Updated = true
			result.Warnings = s.invalidate(ctx, *rec, result.Warnings)
			return result, nil
		}
	}

	err = s.Submit(ctx, *rec)
	switch syncer.Classify(err) {
	case syncer.KindNone:
	case syncer.KindRejected:
		result.Warnings = append(result.Warnings, syncer.RejectionWarning(component, entityID, err))
		slog.Warn("Server rejected offline record", "component", component, "site", siteID, "entity", entityID, "error", err)
	default:
		return result, err
	}

	if err := s.Records.Delete(siteID, entityID, userID); err != nil {
		return result, &syncer.InternalError{Op: "delete synced offline record", Err: err}
	}
	result.Updated = true
	result.Warnings = s.invalidate(ctx, *rec, result.Warnings)
	return result, nil
}

// Pending satisfies syncer.PendingLister.
func (s *EntitySync[P]) Pending(_ context.Context, siteID string) ([]syncer.Target, error) {
	return s.Records.Pending(siteID)
}

// invalidate drops cached data after the record is gone. A failure is
// appended to warnings; the record stays deleted.
func (s *EntitySync[P]) invalidate(ctx context.Context, rec Record[P], warnings []string) []string {
	if s.Invalidate == nil {
		return warnings
	}
	if err := s.Invalidate(ctx, rec); err != nil {
		slog.Warn("Failed to refresh data after sync",
			"component", rec.Component, "site", rec.SiteID, "entity", rec.EntityID, "error", err)
		return append(warnings, fmt.Sprintf("%s %s: synced, but cached data could not be refreshed: %v",
			rec.Component, rec.EntityID, err))
	}
	return warnings
}
