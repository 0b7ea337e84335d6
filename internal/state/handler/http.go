// Package handler exposes the state version log over HTTP. All routes are
// read-only; versions are appended only by the distillation engine.
package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"labstate/internal/server/middleware"
	"labstate/internal/state/domain"
	"labstate/internal/state/repository"
)

type Handler struct {
	repo repository.Repository
}

// NewHandler returns a state HTTP handler backed by the repository.
func NewHandler(repo repository.Repository) *Handler {
	return &Handler{repo: repo}
}

// Register mounts the state routes on the lab-scoped group.
func (h *Handler) Register(rg *gin.RouterGroup) {
	rg.GET("/state", h.Current)
	rg.GET("/state/history", h.History)
	rg.GET("/state/versions/:version", h.ByVersion)
}

type stateResponse struct {
	ID         string          `json:"id"`
	LabID      string          `json:"lab_id"`
	Version    int             `json:"version"`
	State      domain.Snapshot `json:"state"`
	TokenCount *int            `json:"token_count"`
	CreatedAt  time.Time       `json:"created_at"`
	CreatedBy  string          `json:"created_by,omitempty"`
}

func toStateResponse(sv *domain.StateVersion) stateResponse {
	return stateResponse{
		ID:         sv.ID,
		LabID:      sv.LabID,
		Version:    sv.Version,
		State:      sv.State,
		TokenCount: sv.TokenCount,
		CreatedAt:  sv.CreatedAt,
		CreatedBy:  sv.CreatedBy,
	}
}

// Current returns the lab's latest state version, or 404 when the lab has not
// been distilled yet.
func (h *Handler) Current(c *gin.Context) {
	lab := middleware.LabFrom(c)
	sv, err := h.repo.Latest(c.Request.Context(), lab.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	if sv == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no state versions yet"})
		return
	}
	c.JSON(http.StatusOK, toStateResponse(sv))
}

// History returns state versions, newest first, paginated with a total count.
func (h *Handler) History(c *gin.Context) {
	lab := middleware.LabFrom(c)
	limit := queryInt32(c, "limit", 20, 100)
	offset := queryInt32(c, "offset", 0, 1<<30)

	versions, err := h.repo.ListByLab(c.Request.Context(), lab.ID, limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	total, err := h.repo.CountByLab(c.Request.Context(), lab.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	out := make([]stateResponse, 0, len(versions))
	for _, sv := range versions {
		out = append(out, toStateResponse(sv))
	}
	c.JSON(http.StatusOK, gin.H{"versions": out, "total": total})
}

// ByVersion returns one specific version of the lab's state.
func (h *Handler) ByVersion(c *gin.Context) {
	lab := middleware.LabFrom(c)
	version, err := strconv.Atoi(c.Param("version"))
	if err != nil || version < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "version must be a positive integer"})
		return
	}

	sv, err := h.repo.GetByVersion(c.Request.Context(), lab.ID, version)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	if sv == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "state version not found"})
		return
	}
	c.JSON(http.StatusOK, toStateResponse(sv))
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
