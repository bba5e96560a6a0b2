// Package handlers implements the HTTP endpoints of the inspection service:
// health, admin rule management, content scanning, and compliance reporting.
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/turtacn/aegis/pkg/logger"
)

// HealthHandler provides liveness and readiness endpoints.
type HealthHandler struct {
	redis redis.UniversalClient // nil when the memory store is in use
	log   logger.Logger
}

// NewHealthHandler creates a HealthHandler. The redis client may be nil.
func NewHealthHandler(redisClient redis.UniversalClient, log logger.Logger) *HealthHandler {
	return &HealthHandler{
		redis: redisClient,
		log:   log,
	}
}

// LivenessCheck reports that the process is up.
func (h *HealthHandler) LivenessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
	})
}

// ReadinessCheck verifies the dependencies the request path needs. With the
// in-memory store there is nothing external to check.
func (h *HealthHandler) ReadinessCheck(c *gin.Context) {
	checks := make(map[string]string)
	status := "healthy"
	httpStatus := http.StatusOK

	if h.redis != nil {
		if err := h.redis.Ping(c.Request.Context()).Err(); err != nil {
			checks["redis"] = "error: " + err.Error()
			status = "unhealthy"
			httpStatus = http.StatusServiceUnavailable
		} else {
			checks["redis"] = "ok"
		}
	}

	c.JSON(httpStatus, gin.H{
		"status":    status,
		"timestamp": time.Now().UTC(),
		"checks":    checks,
	})
}
