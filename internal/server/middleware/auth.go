// Package middleware provides the gin middleware chain: bearer auth, lab
// ownership resolution, and audit recording.
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"labstate/internal/security"
)

const identityKey = "labstate.identity"

// Auth validates the Authorization bearer token and stores the caller identity
// on the request context. Requests without a valid token get 401.
func Auth(validator *security.Validator) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		id, err := validator.Validate(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Set(identityKey, id)
		c.Next()
	}
}

// IdentityFrom returns the authenticated identity set by Auth, or nil.
func IdentityFrom(c *gin.Context) *security.Identity {
	v, ok := c.Get(identityKey)
	if !ok {
		return nil
	}
	id, _ := v.(*security.Identity)
	return id
}
