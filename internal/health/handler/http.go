// Package handler implements the health endpoint for readiness probes and
// load balancers.
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Pinger reports backend connectivity. Implemented by pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Handler struct {
	db Pinger
}

// NewHandler returns a health handler. db may be nil to skip the database check.
func NewHandler(db Pinger) *Handler {
	return &Handler{db: db}
}

// Register mounts the health route on the unauthenticated root.
func (h *Handler) Register(r gin.IRouter) {
	r.GET("/health", h.Check)
}

// Check reports overall service health. Database unavailability degrades the
// status to 503 so orchestrators stop routing traffic here.
func (h *Handler) Check(c *gin.Context) {
	if h.db != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := h.db.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "database": "unreachable"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
