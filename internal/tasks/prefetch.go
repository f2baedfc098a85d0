package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/mikestefanello/backlite"

	"github.com/mrlokans/campussync/internal/entities"
	"github.com/mrlokans/campussync/internal/packages"
)

// Prefetcher starts or joins a multi-package download.
type Prefetcher interface {
	PrefetchOrRestore(ctx context.Context, siteID, downloadID string, items []packages.Item, onProgress func(packages.Progress)) (*packages.Download, error)
}

// PrefetchPackagesTask downloads Items under DownloadID. A task retried while
// its download is still running joins it instead of starting another.
type PrefetchPackagesTask struct {
	SiteID     string          `json:"site_id"`
	DownloadID string          `json:"download_id"`
	Items      []packages.Item `json:"items"`
}

// NewPrefetchPackagesTask fills in a generated download id when none is given.
func NewPrefetchPackagesTask(siteID, downloadID string, items []packages.Item) PrefetchPackagesTask {
	if downloadID == "" {
		downloadID = uuid.NewString()
	}
	return PrefetchPackagesTask{SiteID: siteID, DownloadID: downloadID, Items: items}
}

func (t PrefetchPackagesTask) Config() backlite.QueueConfig {
	return backlite.QueueConfig{
		Name:        "prefetch_packages",
		MaxAttempts: 3,
		Backoff:     5 * time.Minute,
		Timeout:     time.Hour,
		Retention: &backlite.Retention{
			Duration: 24 * time.Hour,
			Data:     &backlite.RetainData{OnlyFailed: true},
		},
	}
}

func PrefetchPackagesProcessor(prefetcher Prefetcher) backlite.QueueProcessor[PrefetchPackagesTask] {
	return func(ctx context.Context, task PrefetchPackagesTask) error {
		if prefetcher == nil {
			return fmt.Errorf("package engine not configured")
		}
		if len(task.Items) == 0 {
			return nil
		}

		d, err := prefetcher.PrefetchOrRestore(ctx, task.SiteID, task.DownloadID, task.Items, func(p packages.Progress) {
			slog.Debug("Package downloaded", "download", p.DownloadID, "package", p.Item.Ref,
				"status", p.Status, "done", p.Done, "total", p.Total)
		})
		if err != nil {
			return err
		}

		status, err := d.Wait(ctx)
		if err != nil {
			return fmt.Errorf("prefetch %s: %w", task.DownloadID, err)
		}
		if status != entities.PackageDownloaded {
			return fmt.Errorf("prefetch %s finished %s", task.DownloadID, status)
		}
		return nil
	}
}

func NewPrefetchPackagesQueue(prefetcher Prefetcher) backlite.Queue {
	return backlite.NewQueue(PrefetchPackagesProcessor(prefetcher))
}
