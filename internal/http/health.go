package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/campussync/internal/cache"
	"github.com/mrlokans/campussync/internal/database"
	"github.com/mrlokans/campussync/internal/network"
)

const healthCheckTimeout = 2 * time.Second

type HealthResponse struct {
	Status  string            `json:"status"`
	Time    string            `json:"time"`
	Version string            `json:"version,omitempty"`
	Checks  map[string]string `json:"checks"`
}

// HealthCheck probes one dependency. A failing Critical check makes the
// service unhealthy; other failures are only reported.
type HealthCheck struct {
	Name     string
	Critical bool
	Run      func(ctx context.Context) (string, error)
}

func notConfigured(name string) HealthCheck {
	return HealthCheck{Name: name, Run: func(context.Context) (string, error) {
		return "not configured", nil
	}}
}

func DatabaseCheck(db *database.Database) HealthCheck {
	if db == nil {
		return notConfigured("database")
	}
	return HealthCheck{Name: "database", Critical: true, Run: func(ctx context.Context) (string, error) {
		sqlDB, err := db.DB.DB()
		if err != nil {
			return "", err
		}
		return "ok", sqlDB.PingContext(ctx)
	}}
}

// NetworkCheck reports connectivity. Offline is a normal state for the engine.
func NetworkCheck(conn network.Connectivity) HealthCheck {
	if conn == nil {
		return notConfigured("network")
	}
	return HealthCheck{Name: "network", Run: func(context.Context) (string, error) {
		if conn.IsOnline() {
			return "online", nil
		}
		return "offline", nil
	}}
}

// CacheCheck reads a key that is never written; a miss means the backend answered.
func CacheCheck(c cache.Cache) HealthCheck {
	if c == nil {
		return notConfigured("cache")
	}
	return HealthCheck{Name: "cache", Run: func(ctx context.Context) (string, error) {
		_, err := c.Get(ctx, "health:probe")
		if err == nil || errors.Is(err, cache.ErrCacheMiss) {
			return "ok", nil
		}
		return "", err
	}}
}

type HealthController struct {
	version string
	checks  []HealthCheck
}

func NewHealthController(version string, checks ...HealthCheck) *HealthController {
	return &HealthController{version: version, checks: checks}
}

// Status runs every check and answers 503 when a critical one fails.
func (h *HealthController) Status(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
	defer cancel()

	resp := HealthResponse{
		Status:  "healthy",
		Time:    time.Now().Format(time.RFC3339),
		Version: h.version,
		Checks:  make(map[string]string, len(h.checks)),
	}
	for _, check := range h.checks {
		result, err := check.Run(ctx)
		if err != nil {
			resp.Checks[check.Name] = "error: " + err.Error()
			if check.Critical {
				resp.Status = "unhealthy"
			}
			continue
		}
		resp.Checks[check.Name] = result
	}

	code := http.StatusOK
	if resp.Status != "healthy" {
		code = http.StatusServiceUnavailable
	}
	c.IndentedJSON(code, resp)
}
