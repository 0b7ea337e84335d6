// Package handler exposes the distillation run ledger over HTTP.
package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"labstate/internal/run/domain"
	"labstate/internal/run/repository"
	"labstate/internal/server/middleware"
)

type Handler struct {
	repo repository.Repository
}

// NewHandler returns a run HTTP handler backed by the repository.
func NewHandler(repo repository.Repository) *Handler {
	return &Handler{repo: repo}
}

// Register mounts the run routes on the lab-scoped group.
func (h *Handler) Register(rg *gin.RouterGroup) {
	rg.GET("/runs", h.List)
}

type runResponse struct {
	ID            string        `json:"id"`
	LabID         string        `json:"lab_id"`
	InputVersion  *int          `json:"input_version"`
	OutputVersion int           `json:"output_version"`
	SignalIDs     []string      `json:"signal_ids"`
	PromptVersion string        `json:"prompt_version"`
	Model         string        `json:"model"`
	Status        domain.Status `json:"status"`
	StartedAt     time.Time     `json:"started_at"`
	CompletedAt   *time.Time    `json:"completed_at"`
}

// List returns the lab's runs, newest first, paginated.
func (h *Handler) List(c *gin.Context) {
	lab := middleware.LabFrom(c)
	limit := queryInt32(c, "limit", 20, 100)
	offset := queryInt32(c, "offset", 0, 1<<30)

	runs, err := h.repo.ListByLab(c.Request.Context(), lab.ID, limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	out := make([]runResponse, 0, len(runs))
	for _, r := range runs {
		out = append(out, runResponse{
			ID:            r.ID,
			LabID:         r.LabID,
			InputVersion:  r.InputVersion,
			OutputVersion: r.OutputVersion,
			SignalIDs:     r.SignalIDs,
			PromptVersion: r.PromptVersion,
			Model:         r.Model,
			Status:        r.Status,
			StartedAt:     r.StartedAt,
			CompletedAt:   r.CompletedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"runs": out})
}

func queryInt32(c *gin.Context, name string, def, max int32) int32 {
	v := c.Query(name)
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 32)
	if err != nil || n < 0 {
		return def
	}
	if int32(n) > max {
		return max
	}
	return int32(n)
}
