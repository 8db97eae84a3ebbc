package health

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"

	"github.com/capstonehub/capstonehub/internal/config"
	"github.com/capstonehub/capstonehub/internal/dispatch"
	"github.com/capstonehub/capstonehub/internal/version"
)

// Handler handles health check requests
type Handler struct {
	pool     *pgxpool.Pool
	broker   dispatch.Broker
	dispatch *dispatch.Controller
	cfg      *config.Config
	startAt  time.Time
}

// NewHandler creates a new health handler
func NewHandler(pool *pgxpool.Pool, broker dispatch.Broker, ctrl *dispatch.Controller, cfg *config.Config) *Handler {
	return &Handler{
		pool:     pool,
		broker:   broker,
		dispatch: ctrl,
		cfg:      cfg,
		startAt:  time.Now(),
	}
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string           `json:"status"`
	Timestamp string           `json:"timestamp"`
	Uptime    string           `json:"uptime"`
	Version   string           `json:"version"`
	Checks    map[string]Check `json:"checks"`
}

// Check represents an individual health check result
type Check struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// Health returns the overall service health, including database
// connectivity and job dispatch state.
func (h *Handler) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	checks := map[string]Check{}
	overallStatus := "healthy"

	dbCheck := Check{Status: "healthy"}
	if err := h.pool.Ping(ctx); err != nil {
		dbCheck = Check{Status: "unhealthy", Message: err.Error()}
		overallStatus = "unhealthy"
	}
	checks["database"] = dbCheck

	// Dispatch being down degrades the service but does not kill it; the
	// API keeps serving synchronous requests.
	dispatchCheck := Check{Status: "healthy"}
	switch {
	case !h.broker.Available(ctx):
		dispatchCheck = Check{Status: "unhealthy", Message: "broker unreachable"}
		if overallStatus == "healthy" {
			overallStatus = "degraded"
		}
	case !h.dispatch.Enabled():
		dispatchCheck = Check{Status: "unhealthy", Message: "job dispatch disabled"}
		if overallStatus == "healthy" {
			overallStatus = "degraded"
		}
	default:
		for _, pool := range h.dispatch.Pools() {
			if !pool.IsRunning() {
				dispatchCheck = Check{Status: "unhealthy", Message: "worker pool not running"}
				if overallStatus == "healthy" {
					overallStatus = "degraded"
				}
				break
			}
		}
	}
	checks["dispatch"] = dispatchCheck

	response := HealthResponse{
		Status:    overallStatus,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Uptime:    time.Since(h.startAt).String(),
		Version:   version.Version,
		Checks:    checks,
	}

	statusCode := http.StatusOK
	if overallStatus == "unhealthy" {
		statusCode = http.StatusServiceUnavailable
	}

	return c.JSON(statusCode, response)
}

// Healthz returns a simple health check (for k8s liveness probe)
func (h *Handler) Healthz(c echo.Context) error {
	return c.String(http.StatusOK, "OK")
}

// Ready returns readiness status (for k8s readiness probe)
func (h *Handler) Ready(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if err := h.pool.Ping(ctx); err != nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]any{
			"status":  "not_ready",
			"message": "database connection failed",
		})
	}

	return c.JSON(http.StatusOK, map[string]any{
		"status": "ready",
	})
}

// Debug returns runtime debug information (only outside production)
func (h *Handler) Debug(c echo.Context) error {
	if h.cfg.Environment == "production" {
		return echo.NewHTTPError(http.StatusNotFound, "Not found")
	}

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	return c.JSON(http.StatusOK, map[string]any{
		"goroutines":     runtime.NumGoroutine(),
		"heap_alloc_mb":  mem.HeapAlloc / 1024 / 1024,
		"heap_sys_mb":    mem.HeapSys / 1024 / 1024,
		"num_gc":         mem.NumGC,
		"db_total_conns": h.pool.Stat().TotalConns(),
		"db_idle_conns":  h.pool.Stat().IdleConns(),
	})
}
