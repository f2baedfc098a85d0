package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewConfig_Defaults(t *testing.T) {
	cfg := NewConfig()

	assert.Equal(t, int32(8190), cfg.HTTP.Port)
	assert.Equal(t, DefaultDatabasePath, cfg.Database.Path)
	assert.Equal(t, 5*time.Minute, cfg.Sync.MinInterval)
	assert.Equal(t, 4, cfg.Sync.Concurrency)
	assert.True(t, cfg.Sync.CronEnabled)
	assert.Equal(t, "0 * * * *", cfg.Sync.CronSchedule)
	assert.Equal(t, CacheTypeMemory, cfg.Cache.Type)
	assert.Equal(t, 3, cfg.Download.Concurrency)
	assert.Equal(t, 30, cfg.Audit.RetentionDays)
	assert.Equal(t, slog.LevelInfo, cfg.Global.LogLevel)
	assert.Equal(t, "text", cfg.Global.LogFormat)
}

func TestNewConfig_Environment(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("SITE_ID", "campus-a")
	t.Setenv("REMOTE_URL", "https://campus.example.org/webservice/rest/server.php")
	t.Setenv("SYNC_MIN_INTERVAL", "30s")
	t.Setenv("CACHE_TYPE", "REDIS")
	t.Setenv("REDIS_DB", "2")
	t.Setenv("TASKS_ENABLED", "false")
	t.Setenv("LOG_LEVEL", "debug")

	cfg := NewConfig()

	assert.Equal(t, int32(9000), cfg.HTTP.Port)
	assert.Equal(t, "campus-a", cfg.Site.ID)
	assert.Equal(t, "https://campus.example.org/webservice/rest/server.php", cfg.Remote.URL)
	assert.Equal(t, 30*time.Second, cfg.Sync.MinInterval)
	assert.Equal(t, CacheTypeRedis, cfg.Cache.Type)
	assert.Equal(t, 2, cfg.Redis.DB)
	assert.False(t, cfg.Tasks.Enabled)
	assert.Equal(t, slog.LevelDebug, cfg.Global.LogLevel)
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, slog.LevelWarn, ParseLogLevel("warn"))
	assert.Equal(t, slog.LevelError, ParseLogLevel("ERROR"))
	assert.Equal(t, slog.LevelInfo, ParseLogLevel("loud"))
	assert.Equal(t, slog.LevelInfo, ParseLogLevel(""))
}
