package packages

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"

	packagesdb "github.com/mrlokans/campussync/internal/database/packages"
	"github.com/mrlokans/campussync/internal/entities"
	"github.com/mrlokans/campussync/internal/events"
	"github.com/mrlokans/campussync/internal/transport"
)

// Item is one package of a download.
type Item struct {
	Ref
	CourseID string `json:"course_id,omitempty"`
}

// Progress reports the completion of one item of a download.
type Progress struct {
	DownloadID string
	Item       Item
	Status     entities.PackageStatus
	Done       int
	Total      int
	Err        error
}

// Download is the handle of a running or finished multi-package download.
type Download struct {
	ID     string
	SiteID string
	Items  []Item

	done chan struct{}

	mu        sync.Mutex
	listeners []func(Progress)
	completed int
	status    entities.PackageStatus
	err       error
}

func newDownload(siteID, id string, items []Item) *Download {
	return &Download{
		ID:     id,
		SiteID: siteID,
		Items:  items,
		done:   make(chan struct{}),
		status: entities.PackageDownloading,
	}
}

// Done is closed when every item has settled.
func (d *Download) Done() <-chan struct{} {
	return d.done
}

// Wait blocks until the download settles or ctx ends, and returns the
// aggregate status of the items with their joined errors.
func (d *Download) Wait(ctx context.Context) (entities.PackageStatus, error) {
	select {
	case <-d.done:
		return d.Result()
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Result returns the current aggregate status; downloading until Done.
func (d *Download) Result() (entities.PackageStatus, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.status, d.err
}

// Progress returns how many items have settled.
func (d *Download) Progress() (done, total int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.completed, len(d.Items)
}

func (d *Download) subscribe(fn func(Progress)) {
	if fn == nil {
		return
	}
	d.mu.Lock()
	d.listeners = append(d.listeners, fn)
	d.mu.Unlock()
}

func (d *Download) itemDone(item Item, status entities.PackageStatus, err error) {
	d.mu.Lock()
	d.completed++
	p := Progress{
		DownloadID: d.ID,
		Item:       item,
		Status:     status,
		Done:       d.completed,
		Total:      len(d.Items),
		Err:        err,
	}
	listeners := slices.Clone(d.listeners)
	d.mu.Unlock()

	for _, fn := range listeners {
		fn(p)
	}
}

func (d *Download) finish(status entities.PackageStatus, err error) {
	d.mu.Lock()
	d.status = status
	d.err = err
	d.mu.Unlock()
	close(d.done)
}

// PrefetchOrRestore starts downloading items under downloadID, or returns the
// download already running under that id with onProgress attached to it.
// The download runs to completion even if ctx ends.
func (e *Engine) PrefetchOrRestore(ctx context.Context, siteID, downloadID string, items []Item, onProgress func(Progress)) (*Download, error) {
	if downloadID == "" {
		return nil, fmt.Errorf("download id is required")
	}
	key := siteID + "|" + downloadID
	d, created := e.downloads.GetOrCreate(key, func() *Download {
		return newDownload(siteID, downloadID, items)
	})
	d.subscribe(onProgress)
	if !created {
		slog.Debug("Joining running download", "site", siteID, "download", downloadID)
		return d, nil
	}

	go e.run(context.WithoutCancel(ctx), key, d)
	return d, nil
}

// ActiveDownload returns the running download with id, if any.
func (e *Engine) ActiveDownload(siteID, downloadID string) (*Download, bool) {
	return e.downloads.Get(siteID + "|" + downloadID)
}

func (e *Engine) run(ctx context.Context, key string, d *Download) {
	statuses := make([]entities.PackageStatus, len(d.Items))
	errs := make([]error, len(d.Items))

	var g errgroup.Group
	g.SetLimit(e.concurrency)
	for i, item := range d.Items {
		g.Go(func() error {
			status, err := e.DownloadPackage(ctx, d.SiteID, item)
			if err != nil {
				errs[i] = fmt.Errorf("%s: %w", item.Ref, err)
			}
			statuses[i] = status
			d.itemDone(item, status, err)
			return nil
		})
	}
	_ = g.Wait()

	status, err := Aggregate(statuses...), errors.Join(errs...)
	slog.Info("Download finished", "site", d.SiteID, "download", d.ID,
		"items", len(d.Items), "status", status, "error", err)

	e.downloads.Delete(key)
	if e.events != nil {
		e.events.Emit(events.DownloadFinished, events.DownloadFinishedPayload{
			SiteID:     d.SiteID,
			DownloadID: d.ID,
			Items:      len(d.Items),
			Status:     status,
			Err:        err,
		}, d.SiteID)
	}
	d.finish(status, err)
}

// DownloadPackage fetches every file of one package. Concurrent calls for the
// same package share one download. On any failure the files are removed and
// the package is left not downloaded.
func (e *Engine) DownloadPackage(ctx context.Context, siteID string, item Item) (entities.PackageStatus, error) {
	if isOffline(e.conn) {
		return entities.PackageNotDownloaded, fmt.Errorf("download %s: %w", item.Ref, transport.ErrOffline)
	}
	status, _, err := e.packages.Do(ctx, statusKey(siteID, item.Ref), func(ctx context.Context) (entities.PackageStatus, error) {
		return e.download(ctx, siteID, item)
	})
	return status, err
}

func (e *Engine) download(ctx context.Context, siteID string, item Item) (entities.PackageStatus, error) {
	if _, err := e.setStatus(siteID, item.Ref, entities.PackageDownloading, &packagesdb.Update{CourseID: item.CourseID}); err != nil {
		return entities.PackageNotDownloaded, err
	}

	if err := e.fetchAll(ctx, siteID, item); err != nil {
		slog.Warn("Package download failed", "site", siteID, "package", item.Ref, "error", err)
		if rerr := e.fetcher.Remove(siteID, item.Ref); rerr != nil {
			slog.Warn("Failed to remove partial package files", "site", siteID, "package", item.Ref, "error", rerr)
		}
		if _, serr := e.setStatus(siteID, item.Ref, entities.PackageNotDownloaded, nil); serr != nil {
			return entities.PackageNotDownloaded, errors.Join(err, serr)
		}
		return entities.PackageNotDownloaded, err
	}
	return entities.PackageDownloaded, nil
}

func (e *Engine) fetchAll(ctx context.Context, siteID string, item Item) error {
	// The manifest must be current; a cached one could record a stale revision.
	if err := e.Invalidate(ctx, siteID, item.Ref); err != nil {
		return err
	}
	info, err := e.manifest.Package(ctx, siteID, item.Ref, item.CourseID)
	if err != nil {
		return fmt.Errorf("read manifest: %w", err)
	}
	for _, f := range info.Files {
		if err := e.fetcher.Fetch(ctx, siteID, item.Ref, f); err != nil {
			return fmt.Errorf("fetch %s: %w", f.Path, err)
		}
	}
	revision := info.Revision
	_, err = e.setStatus(siteID, item.Ref, entities.PackageDownloaded, &packagesdb.Update{
		CourseID: item.CourseID,
		Revision: &revision,
	})
	return err
}
