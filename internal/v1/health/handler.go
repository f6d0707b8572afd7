// Package health exposes liveness and readiness probes.
package health

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// Handler manages health check endpoints.
type Handler struct {
	stateDir    string
	redisClient *redis.Client // nil when Redis is disabled
}

// NewHandler creates a health check handler. redisClient may be nil.
func NewHandler(stateDir string, redisClient *redis.Client) *Handler {
	return &Handler{stateDir: stateDir, redisClient: redisClient}
}

// StatusResponse is the plain /health body.
type StatusResponse struct {
	Status string `json:"status"`
}

// LivenessResponse represents the liveness probe response.
type LivenessResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// ReadinessResponse represents the readiness probe response.
type ReadinessResponse struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks"`
	Timestamp string            `json:"timestamp"`
}

// Status handles GET /health. Flat OK used by container healthchecks.
func (h *Handler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, StatusResponse{Status: "ok"})
}

// Liveness handles GET /health/live. Returns 200 if the process is alive,
// no dependency checks.
func (h *Handler) Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, LivenessResponse{
		Status:    "alive",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// Readiness handles GET /health/ready. Returns 200 only when the state
// directory is writable and, if configured, Redis answers a ping.
func (h *Handler) Readiness(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	checks := map[string]string{
		"state_dir": h.checkStateDir(),
	}
	if h.redisClient != nil {
		checks["redis"] = h.checkRedis(ctx)
	}

	status := "ready"
	code := http.StatusOK
	for _, v := range checks {
		if v != "healthy" {
			status = "not ready"
			code = http.StatusServiceUnavailable
			break
		}
	}

	c.JSON(code, ReadinessResponse{
		Status:    status,
		Checks:    checks,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *Handler) checkStateDir() string {
	probe := filepath.Join(h.stateDir, ".health-probe")
	if err := os.WriteFile(probe, []byte("ok"), 0o644); err != nil {
		return "unhealthy"
	}
	_ = os.Remove(probe)
	return "healthy"
}

func (h *Handler) checkRedis(ctx context.Context) string {
	if err := h.redisClient.Ping(ctx).Err(); err != nil {
		return "unhealthy"
	}
	return "healthy"
}
