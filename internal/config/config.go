package config

import (
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type CacheType string

const (
	CacheTypeMemory CacheType = "memory"
	CacheTypeRedis  CacheType = "redis"
)

type (
	Config struct {
		HTTP
		Global
		Database
		Site
		Remote
		Sync
		Download
		Cache
		Redis
		Tasks
		Audit
		Network
	}

	HTTP struct {
		Port int32
		Host string
	}
	Global struct {
		ShutdownTimeoutInSeconds int
		LogLevel                 slog.Level
		LogFormat                string // "text" or "json"
	}
	Database struct {
		Path string
	}
	// Site is the default site used by the CLI and HTTP handlers when a
	// request does not name one.
	Site struct {
		ID string
	}
	Remote struct {
		URL        string
		Token      string
		Timeout    time.Duration
		MaxRetries int
	}
	Sync struct {
		MinInterval  time.Duration
		Concurrency  int
		CronEnabled  bool
		CronSchedule string // Cron format: "0 * * * *" = hourly
	}
	Download struct {
		Dir         string
		Concurrency int
	}
	Cache struct {
		Type CacheType
		TTL  time.Duration
	}
	Redis struct {
		Addr     string
		Password string
		DB       int
	}
	Tasks struct {
		Enabled         bool
		Workers         int
		ReleaseAfter    time.Duration
		CleanupInterval time.Duration
	}
	Audit struct {
		Dir           string // Directory for archived sync reports
		RetentionDays int    // Days to keep audit events (default: 30)
	}
	Network struct {
		ProbeURL      string
		ProbeInterval time.Duration
	}
)

func NewConfig() *Config {
	v := viper.New()
	v.AutomaticEnv()
	v.SetDefault("port", 8190)
	v.SetDefault("host", "127.0.0.1")
	v.SetDefault("shutdown_timeout_in_seconds", 5)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
	v.SetDefault("database_path", DefaultDatabasePath)
	v.SetDefault("site_id", "")

	v.SetDefault("remote_url", "")
	v.SetDefault("remote_token", "")
	v.SetDefault("remote_timeout", "30s")
	v.SetDefault("remote_max_retries", 3)

	v.SetDefault("sync_min_interval", "5m")
	v.SetDefault("sync_concurrency", 4)
	v.SetDefault("sync_cron_enabled", true)
	v.SetDefault("sync_cron_schedule", "0 * * * *") // Hourly at :00

	v.SetDefault("download_dir", DefaultDownloadDir)
	v.SetDefault("download_concurrency", 3)

	v.SetDefault("cache_type", string(CacheTypeMemory))
	v.SetDefault("cache_ttl", "10m")
	v.SetDefault("redis_addr", "localhost:6379")
	v.SetDefault("redis_password", "")
	v.SetDefault("redis_db", 0)

	v.SetDefault("tasks_enabled", true)
	v.SetDefault("task_workers", 2)
	v.SetDefault("task_release_after", "15m")
	v.SetDefault("task_cleanup_interval", "1h")

	v.SetDefault("audit_dir", DefaultAuditDir)
	v.SetDefault("audit_retention_days", 30)

	v.SetDefault("network_probe_url", "")
	v.SetDefault("network_probe_interval", "30s")

	return &Config{
		HTTP: HTTP{
			Port: v.GetInt32("PORT"),
			Host: v.GetString("HOST"),
		},
		Global: Global{
			ShutdownTimeoutInSeconds: v.GetInt("SHUTDOWN_TIMEOUT_IN_SECONDS"),
			LogLevel:                 ParseLogLevel(v.GetString("LOG_LEVEL")),
			LogFormat:                v.GetString("LOG_FORMAT"),
		},
		Database: Database{
			Path: v.GetString("DATABASE_PATH"),
		},
		Site: Site{
			ID: v.GetString("SITE_ID"),
		},
		Remote: Remote{
			URL:        v.GetString("REMOTE_URL"),
			Token:      v.GetString("REMOTE_TOKEN"),
			Timeout:    v.GetDuration("REMOTE_TIMEOUT"),
			MaxRetries: v.GetInt("REMOTE_MAX_RETRIES"),
		},
		Sync: Sync{
			MinInterval:  v.GetDuration("SYNC_MIN_INTERVAL"),
			Concurrency:  v.GetInt("SYNC_CONCURRENCY"),
			CronEnabled:  v.GetBool("SYNC_CRON_ENABLED"),
			CronSchedule: v.GetString("SYNC_CRON_SCHEDULE"),
		},
		Download: Download{
			Dir:         v.GetString("DOWNLOAD_DIR"),
			Concurrency: v.GetInt("DOWNLOAD_CONCURRENCY"),
		},
		Cache: Cache{
			Type: CacheType(strings.ToLower(v.GetString("CACHE_TYPE"))),
			TTL:  v.GetDuration("CACHE_TTL"),
		},
		Redis: Redis{
			Addr:     v.GetString("REDIS_ADDR"),
			Password: v.GetString("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
		},
		Tasks: Tasks{
			Enabled:         v.GetBool("TASKS_ENABLED"),
			Workers:         v.GetInt("TASK_WORKERS"),
			ReleaseAfter:    v.GetDuration("TASK_RELEASE_AFTER"),
			CleanupInterval: v.GetDuration("TASK_CLEANUP_INTERVAL"),
		},
		Audit: Audit{
			Dir:           v.GetString("AUDIT_DIR"),
			RetentionDays: v.GetInt("AUDIT_RETENTION_DAYS"),
		},
		Network: Network{
			ProbeURL:      v.GetString("NETWORK_PROBE_URL"),
			ProbeInterval: v.GetDuration("NETWORK_PROBE_INTERVAL"),
		},
	}
}

// ParseLogLevel maps debug/info/warn/error to a slog level; anything else is info.
func ParseLogLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo
	}
	return level
}
