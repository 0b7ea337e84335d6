package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	labdomain "labstate/internal/lab/domain"
	labrepo "labstate/internal/lab/repository"
)

const labKey = "labstate.lab"

// RequireLab resolves the :labID path parameter and verifies the caller's org
// owns it. Labs outside the caller's org 404 rather than 403 so lab IDs do not
// leak across tenants.
func RequireLab(labs labrepo.Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := IdentityFrom(c)
		if id == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
			return
		}
		lab, err := labs.GetByID(c.Request.Context(), c.Param("labID"))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
		if lab == nil || lab.OrgID != id.OrgID {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "lab not found"})
			return
		}
		c.Set(labKey, lab)
		c.Next()
	}
}

// LabFrom returns the lab resolved by RequireLab, or nil.
func LabFrom(c *gin.Context) *labdomain.Lab {
	v, ok := c.Get(labKey)
	if !ok {
		return nil
	}
	lab, _ := v.(*labdomain.Lab)
	return lab
}
