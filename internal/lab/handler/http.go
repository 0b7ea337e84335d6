// Package handler exposes lab management over HTTP.
package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"labstate/internal/lab/domain"
	"labstate/internal/lab/repository"
	"labstate/internal/server/middleware"
)

type Handler struct {
	repo repository.Repository
}

// NewHandler returns a lab HTTP handler backed by the repository.
func NewHandler(repo repository.Repository) *Handler {
	return &Handler{repo: repo}
}

// Register mounts the lab routes on the authenticated group.
func (h *Handler) Register(rg *gin.RouterGroup) {
	rg.POST("/labs", h.Create)
	rg.GET("/labs", h.List)
	rg.GET("/labs/:labID", h.Get)
}

type createLabRequest struct {
	Name string `json:"name" binding:"required"`
}

type labResponse struct {
	ID        string    `json:"id"`
	OrgID     string    `json:"org_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toLabResponse(l *domain.Lab) labResponse {
	return labResponse{ID: l.ID, OrgID: l.OrgID, Name: l.Name, CreatedAt: l.CreatedAt, UpdatedAt: l.UpdatedAt}
}

// Create registers the caller org's lab. One lab per org; a second create is a conflict.
func (h *Handler) Create(c *gin.Context) {
	id := middleware.IdentityFrom(c)
	var req createLabRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name is required"})
		return
	}

	existing, err := h.repo.GetByOrg(c.Request.Context(), id.OrgID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	if existing != nil {
		c.JSON(http.StatusConflict, gin.H{"error": "lab already exists for this organization"})
		return
	}

	now := time.Now().UTC()
	lab := &domain.Lab{
		ID:        uuid.NewString(),
		OrgID:     id.OrgID,
		Name:      req.Name,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := lab.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.repo.Create(c.Request.Context(), lab); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusCreated, toLabResponse(lab))
}

// List returns the caller org's labs. At most one exists.
func (h *Handler) List(c *gin.Context) {
	id := middleware.IdentityFrom(c)
	lab, err := h.repo.GetByOrg(c.Request.Context(), id.OrgID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	labs := []labResponse{}
	if lab != nil {
		labs = append(labs, toLabResponse(lab))
	}
	c.JSON(http.StatusOK, gin.H{"labs": labs})
}

// Get returns one lab scoped to the caller's org.
func (h *Handler) Get(c *gin.Context) {
	id := middleware.IdentityFrom(c)
	lab, err := h.repo.GetByID(c.Request.Context(), c.Param("labID"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	if lab == nil || lab.OrgID != id.OrgID {
		c.JSON(http.StatusNotFound, gin.H{"error": "lab not found"})
		return
	}
	c.JSON(http.StatusOK, toLabResponse(lab))
}
