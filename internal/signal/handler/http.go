// Package handler exposes signal ingestion and listing over HTTP.
package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"labstate/internal/server/middleware"
	"labstate/internal/signal/domain"
	"labstate/internal/signal/repository"
)

type Handler struct {
	repo repository.Repository
}

// NewHandler returns a signal HTTP handler backed by the repository.
func NewHandler(repo repository.Repository) *Handler {
	return &Handler{repo: repo}
}

// Register mounts the signal routes on the lab-scoped group.
func (h *Handler) Register(rg *gin.RouterGroup) {
	rg.POST("/signals", h.Create)
	rg.GET("/signals", h.List)
	rg.GET("/signals/:signalID", h.Get)
}

type createSignalRequest struct {
	Kind    domain.Kind     `json:"kind"`
	Content json.RawMessage `json:"content"`
}

type signalResponse struct {
	ID        string          `json:"id"`
	LabID     string          `json:"lab_id"`
	Kind      domain.Kind     `json:"kind"`
	Content   json.RawMessage `json:"content"`
	Processed bool            `json:"processed"`
	CreatedAt time.Time       `json:"created_at"`
	CreatedBy string          `json:"created_by,omitempty"`
}

func toSignalResponse(s *domain.Signal) signalResponse {
	return signalResponse{
		ID:        s.ID,
		LabID:     s.LabID,
		Kind:      s.Kind,
		Content:   s.Content,
		Processed: s.Processed,
		CreatedAt: s.CreatedAt,
		CreatedBy: s.CreatedBy,
	}
}

// Create ingests one signal. The content payload must match the declared kind.
func (h *Handler) Create(c *gin.Context) {
	lab := middleware.LabFrom(c)
	id := middleware.IdentityFrom(c)

	var req createSignalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if !req.Kind.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "kind must be one of experiment, document, correction"})
		return
	}
	if _, err := domain.ParseContent(req.Kind, req.Content); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sig := &domain.Signal{
		ID:        uuid.NewString(),
		LabID:     lab.ID,
		Kind:      req.Kind,
		Content:   req.Content,
		CreatedAt: time.Now().UTC(),
		CreatedBy: id.Actor,
	}
	if err := h.repo.Create(c.Request.Context(), sig); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusCreated, toSignalResponse(sig))
}

// List returns the lab's signals, newest first, with optional processed and
// kind filters and a total count for pagination.
func (h *Handler) List(c *gin.Context) {
	lab := middleware.LabFrom(c)

	f := repository.ListFilter{Limit: 50}
	if v := c.Query("processed"); v != "" {
		processed, err := strconv.ParseBool(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "processed must be true or false"})
			return
		}
		f.Processed = &processed
	}
	if v := c.Query("kind"); v != "" {
		kind := domain.Kind(v)
		if !kind.Valid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown kind"})
			return
		}
		f.Kind = &kind
	}
	f.Limit = queryInt32(c, "limit", f.Limit, 200)
	f.Offset = queryInt32(c, "offset", 0, 1<<30)

	signals, err := h.repo.ListByLab(c.Request.Context(), lab.ID, f)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	total, err := h.repo.CountByLab(c.Request.Context(), lab.ID, f)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	out := make([]signalResponse, 0, len(signals))
	for _, s := range signals {
		out = append(out, toSignalResponse(s))
	}
	c.JSON(http.StatusOK, gin.H{"signals": out, "total": total})
}

// Get returns one signal scoped to the lab.
func (h *Handler) Get(c *gin.Context) {
	lab := middleware.LabFrom(c)
	sig, err := h.repo.GetByID(c.Request.Context(), lab.ID, c.Param("signalID"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	if sig == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "signal not found"})
		return
	}
	c.JSON(http.StatusOK, toSignalResponse(sig))
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
