package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mikestefanello/backlite"

	"github.com/mrlokans/campussync/internal/mutationlog"
	"github.com/mrlokans/campussync/internal/syncer"
)

// SyncAllTask syncs every pending key of every handler, or of one handler
// when Component is set. An empty SiteID covers all sites.
type SyncAllTask struct {
	SiteID    string `json:"site_id"`
	Component string `json:"component,omitempty"`
	Force     bool   `json:"force"`
}

func (t SyncAllTask) Config() backlite.QueueConfig {
	return backlite.QueueConfig{
		Name:        "sync_all",
		MaxAttempts: 3,
		Backoff:     time.Minute,
		Timeout:     30 * time.Minute,
		Retention: &backlite.Retention{
			Duration: 24 * time.Hour,
			Data:     &backlite.RetainData{OnlyFailed: true},
		},
	}
}

func SyncAllProcessor(handlers *syncer.Handlers) backlite.QueueProcessor[SyncAllTask] {
	return func(ctx context.Context, task SyncAllTask) error {
		if handlers == nil {
			return fmt.Errorf("sync handlers not configured")
		}

		if task.Component != "" {
			h, ok := handlers.Get(task.Component)
			if !ok {
				return fmt.Errorf("unknown sync handler %q", task.Component)
			}
			s, err := h.RunAll(ctx, task.SiteID, task.Force)
			if err != nil {
				return fmt.Errorf("sync %s: %w", task.Component, err)
			}
			logSummary(s)
			return nil
		}

		summaries, err := handlers.RunAll(ctx, task.SiteID, task.Force)
		for _, s := range summaries {
			logSummary(s)
		}
		if err != nil {
			return fmt.Errorf("sync all: %w", err)
		}
		return nil
	}
}

func NewSyncAllQueue(handlers *syncer.Handlers) backlite.Queue {
	return backlite.NewQueue(SyncAllProcessor(handlers))
}

func logSummary(s syncer.Summary) {
	slog.Info("Sync task finished",
		"component", s.Component, "synced", s.Synced, "skipped", s.Skipped,
		"failed", s.Failed, "warnings", len(s.Warnings))
}

// Replayer replays queued mutations of a site.
type Replayer interface {
	ReplayAll(ctx context.Context, siteID string) (*mutationlog.ReplayResult, error)
}

// ReplayMutationsTask sends every queued mutation of SiteID.
type ReplayMutationsTask struct {
	SiteID string `json:"site_id"`
}

func (t ReplayMutationsTask) Config() backlite.QueueConfig {
	return backlite.QueueConfig{
		Name:        "replay_mutations",
		MaxAttempts: 5,
		Backoff:     2 * time.Minute,
		Timeout:     10 * time.Minute,
		Retention: &backlite.Retention{
			Duration: 24 * time.Hour,
			Data:     &backlite.RetainData{OnlyFailed: true},
		},
	}
}

// ReplayMutationsProcessor fails the task while any mutation is deferred, so
// backlite retries it with backoff.
func ReplayMutationsProcessor(replayer Replayer) backlite.QueueProcessor[ReplayMutationsTask] {
	return func(ctx context.Context, task ReplayMutationsTask) error {
		if replayer == nil {
			return fmt.Errorf("mutation log not configured")
		}

		res, err := replayer.ReplayAll(ctx, task.SiteID)
		if res != nil {
			slog.Info("Replayed queued mutations", "site", task.SiteID,
				"sent", res.Sent, "rejected", res.Rejected,
				"duplicates", res.Duplicates, "deferred", res.Deferred)
		}
		if err != nil {
			return fmt.Errorf("replay mutations of site %s: %w", task.SiteID, err)
		}
		return nil
	}
}

func NewReplayMutationsQueue(replayer Replayer) backlite.Queue {
	return backlite.NewQueue(ReplayMutationsProcessor(replayer))
}
