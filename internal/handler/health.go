package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/psds-microservice/ticket-bridge/internal/bridge"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

// Readiness is the platform connection as seen by the bridge loop.
type Readiness interface {
	Ready() bool
	State() bridge.State
}

type HealthHandler struct {
	db       Pinger
	platform Readiness
}

func NewHealthHandler(db Pinger, platform Readiness) *HealthHandler {
	return &HealthHandler{db: db, platform: platform}
}

func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "ticket-bridge",
		"time":    time.Now().Unix(),
	})
}

// Ready отвечает 200, когда БД доступна и платформа подключалась хотя бы раз.
// Состояние degraded тоже считается готовым.
func (h *HealthHandler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	body := gin.H{"status": "ready", "database": "ok", "platform": h.platform.State().String()}
	status := http.StatusOK
	if err := h.db.Ping(ctx); err != nil {
		body["database"] = err.Error()
		status = http.StatusServiceUnavailable
	}
	if !h.platform.Ready() {
		status = http.StatusServiceUnavailable
	}
	if status != http.StatusOK {
		body["status"] = "not_ready"
	}
	c.JSON(status, body)
}
