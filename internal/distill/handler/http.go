// Package handler exposes the distillation trigger over HTTP.
package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"labstate/internal/compress"
	"labstate/internal/distill"
	"labstate/internal/queue"
	"labstate/internal/server/middleware"
)

// Enqueuer publishes distillation jobs. Implemented by queue.Producer.
type Enqueuer interface {
	Publish(ctx context.Context, key string, v any) error
}

// Distiller runs a distillation with retries. Implemented by distill.Scheduler.
type Distiller interface {
	Execute(ctx context.Context, labID string, signalIDs []string, actor string) (*distill.Result, error)
}

type Handler struct {
	scheduler Distiller
	enqueuer  Enqueuer
}

// NewHandler returns a distillation trigger handler. When enqueuer is non-nil
// triggers are queued for the worker; otherwise they run inline through the
// scheduler.
func NewHandler(scheduler Distiller, enqueuer Enqueuer) *Handler {
	return &Handler{scheduler: scheduler, enqueuer: enqueuer}
}

// Register mounts the trigger route on the lab-scoped group.
func (h *Handler) Register(rg *gin.RouterGroup) {
	rg.POST("/distill", h.Trigger)
}

type triggerRequest struct {
	SignalIDs []string `json:"signal_ids"`
}

// Trigger starts a distillation for the lab. An empty signal_ids list means
// all currently unprocessed signals.
func (h *Handler) Trigger(c *gin.Context) {
	lab := middleware.LabFrom(c)
	id := middleware.IdentityFrom(c)

	var req triggerRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
	}
	// Signal IDs feed a uuid[] query parameter; reject malformed ones here so
	// they cannot surface as a storage error deeper in the attempt.
	for _, sid := range req.SignalIDs {
		if _, err := uuid.Parse(sid); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("signal_ids contains an invalid id: %q", sid)})
			return
		}
	}

	if h.enqueuer != nil {
		job := queue.DistillJob{LabID: lab.ID, SignalIDs: req.SignalIDs, TriggeredBy: id.Actor}
		if err := h.enqueuer.Publish(c.Request.Context(), lab.ID, job); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "could not enqueue distillation"})
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"status": "queued"})
		return
	}

	res, err := h.scheduler.Execute(c.Request.Context(), lab.ID, req.SignalIDs, id.Actor)
	if err != nil {
		switch {
		case errors.Is(err, distill.ErrNoSignals):
			c.JSON(http.StatusBadRequest, gin.H{"error": "no unprocessed signals to distill"})
		case errors.Is(err, distill.ErrVersionConflict):
			c.JSON(http.StatusConflict, gin.H{"error": "a concurrent distillation committed first"})
		case errors.Is(err, compress.ErrUnavailable):
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "compression capability unavailable"})
		case errors.Is(err, compress.ErrSchemaViolation):
			c.JSON(http.StatusBadGateway, gin.H{"error": "compression produced invalid state"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "distillation failed"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"run_id":       res.Run.ID,
		"version":      res.State.Version,
		"token_count":  res.State.TokenCount,
		"signal_count": len(res.Run.SignalIDs),
	})
}
