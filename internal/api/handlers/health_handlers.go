package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"

	"github.com/custody-service/custody_service/internal/infrastructure/cache"
	"github.com/custody-service/custody_service/internal/infrastructure/database"
)

var startTime = time.Now()

// HealthHandlers serves liveness and readiness probes
type HealthHandlers struct {
	db    *sqlx.DB
	redis cache.RedisClient
}

// NewHealthHandlers creates the health handler set
func NewHealthHandlers(db *sqlx.DB, redis cache.RedisClient) *HealthHandlers {
	return &HealthHandlers{db: db, redis: redis}
}

// Health is a liveness probe
func (h *HealthHandlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// Live reports process liveness without touching downstream dependencies
func (h *HealthHandlers) Live(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "alive",
		"uptime": time.Since(startTime).String(),
	})
}

// Ready is a readiness probe checking downstream dependencies
func (h *HealthHandlers) Ready(c *gin.Context) {
	checks := gin.H{}
	healthy := true

	if err := database.HealthCheck(h.db); err != nil {
		checks["database"] = err.Error()
		healthy = false
	} else {
		checks["database"] = "ok"
	}

	if h.redis != nil {
		if err := h.redis.Ping(c.Request.Context()); err != nil {
			checks["redis"] = err.Error()
			healthy = false
		} else {
			checks["redis"] = "ok"
		}
	}

	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{"status": checks})
}
