package entrypoint

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrlokans/campussync/internal/completion"
	"github.com/mrlokans/campussync/internal/config"
	"github.com/mrlokans/campussync/internal/mutationlog"
	"github.com/mrlokans/campussync/internal/scheduler"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.NewConfig()
	cfg.Database.Path = filepath.Join(dir, "campus.db")
	cfg.Download.Dir = filepath.Join(dir, "downloads")
	cfg.Audit.Dir = filepath.Join(dir, "audit")
	cfg.Remote.URL = "http://127.0.0.1:1/webservice/rest/server.php"
	cfg.Remote.MaxRetries = 0
	cfg.Cache.Type = config.CacheTypeMemory
	return cfg
}

func TestNewApp_WiresHandlers(t *testing.T) {
	app, err := NewApp(testConfig(t))
	require.NoError(t, err)
	defer app.Close()

	var names []string
	for _, h := range app.Handlers.All() {
		names = append(names, h.Component())
	}
	assert.Equal(t, []string{completion.Component, mutationlog.Component}, names)
}

func TestNewApp_OfflineChangesWaitForConnection(t *testing.T) {
	app, err := NewApp(testConfig(t))
	require.NoError(t, err)
	defer app.Close()
	ctx := context.Background()

	app.Monitor.SetOnline(false)
	stored, err := app.Completion.Toggle(ctx, "campus", "7", "42", "3", true, "Algebra")
	require.NoError(t, err)
	assert.True(t, stored)

	pending, err := app.Offline.Pending("campus")
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	run, err := app.Scheduler.RunSync(ctx, "manual", false)
	require.NoError(t, err)
	assert.Equal(t, scheduler.StatusSkipped, run.Status)

	pending, err = app.Offline.Pending("campus")
	require.NoError(t, err)
	assert.Len(t, pending, 1, "offline data is kept while offline")
}

func TestNewApp_UnknownCacheType(t *testing.T) {
	cfg := testConfig(t)
	cfg.Cache.Type = "memcached"

	_, err := NewApp(cfg)
	assert.ErrorContains(t, err, "unknown cache type")
}
