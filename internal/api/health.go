package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const probeTimeout = 2 * time.Second

// DependencyCheck probes one backing service for the health endpoint.
type DependencyCheck struct {
	Name  string
	Probe func(ctx context.Context) error
}

// HealthHandler reports process uptime and dependency connectivity. The
// endpoint itself always answers 200; a broken dependency shows up in the
// body as "down" and flips the overall status to degraded.
type HealthHandler struct {
	started time.Time
	checks  []DependencyCheck
	logger  *zap.Logger
}

func NewHealthHandler(checks []DependencyCheck, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{started: time.Now(), checks: checks, logger: logger}
}

// Check handles GET /health.
func (h *HealthHandler) Check(c *gin.Context) {
	status := "ok"
	deps := make(map[string]string, len(h.checks))
	for _, check := range h.checks {
		ctx, cancel := context.WithTimeout(c.Request.Context(), probeTimeout)
		err := check.Probe(ctx)
		cancel()
		if err != nil {
			h.logger.Warn("health probe failed",
				zap.String("dependency", check.Name), zap.Error(err))
			deps[check.Name] = "down"
			status = "degraded"
			continue
		}
		deps[check.Name] = "up"
	}

	c.JSON(http.StatusOK, gin.H{
		"status":       status,
		"uptime":       time.Since(h.started).Round(time.Second).String(),
		"dependencies": deps,
	})
}
