package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mikestefanello/backlite"
)

// AuditPruner deletes audit events older than a retention period.
type AuditPruner interface {
	Prune(retention time.Duration) (int64, error)
}

// CleanupAuditEventsTask removes audit events older than RetentionDays.
type CleanupAuditEventsTask struct {
	RetentionDays int `json:"retention_days"`
}

func (t CleanupAuditEventsTask) Config() backlite.QueueConfig {
	return backlite.QueueConfig{
		Name:        "cleanup_audit_events",
		MaxAttempts: 3,
		Backoff:     5 * time.Minute,
		Timeout:     2 * time.Minute,
		Retention: &backlite.Retention{
			Duration: 24 * time.Hour,
			Data:     &backlite.RetainData{OnlyFailed: true},
		},
	}
}

func CleanupAuditEventsProcessor(pruner AuditPruner) backlite.QueueProcessor[CleanupAuditEventsTask] {
	return func(ctx context.Context, task CleanupAuditEventsTask) error {
		if pruner == nil {
			return fmt.Errorf("audit pruner not configured")
		}

		days := task.RetentionDays
		if days <= 0 {
			days = 30
		}
		deleted, err := pruner.Prune(time.Duration(days) * 24 * time.Hour)
		if err != nil {
			return fmt.Errorf("cleanup audit events: %w", err)
		}

		slog.Info("Cleaned up audit events", "deleted", deleted, "retention_days", days)
		return nil
	}
}

func NewCleanupAuditEventsQueue(pruner AuditPruner) backlite.Queue {
	return backlite.NewQueue(CleanupAuditEventsProcessor(pruner))
}
