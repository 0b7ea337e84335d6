package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"labstate/internal/audit"
	auditdomain "labstate/internal/audit/domain"
)

// Audit records successful mutating requests. It runs after the handler and is
// fire-and-forget; a failed audit write never fails the request. Distillation
// commits write their own transactional audit entry, so the trigger route is
// recorded here only as the request event.
func Audit(logger *audit.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Request.Method == "GET" || c.Request.Method == "HEAD" {
			return
		}
		if status := c.Writer.Status(); status < 200 || status > 299 {
			return
		}
		id := IdentityFrom(c)
		if id == nil {
			return
		}

		resourceType, resourceID := auditResource(c)
		entry := &auditdomain.Entry{
			Actor:        id.Actor,
			Action:       strings.ToLower(c.Request.Method) + "." + resourceType,
			ResourceType: resourceType,
			ResourceID:   resourceID,
			IPAddress:    c.ClientIP(),
		}
		if lab := LabFrom(c); lab != nil {
			entry.LabID = lab.ID
		}
		logger.Record(c.Request.Context(), entry)
	}
}

// auditResource derives the resource type and ID from the matched route. The
// last static path segment names the resource; a trailing parameter is the ID.
func auditResource(c *gin.Context) (string, string) {
	segments := strings.Split(strings.Trim(c.FullPath(), "/"), "/")
	resourceType := "unknown"
	resourceID := ""
	for i := len(segments) - 1; i >= 0; i-- {
		seg := segments[i]
		if seg == "" {
			continue
		}
		if strings.HasPrefix(seg, ":") {
			if resourceID == "" && i == len(segments)-1 {
				resourceID = c.Param(strings.TrimPrefix(seg, ":"))
			}
			continue
		}
		resourceType = strings.TrimSuffix(seg, "s")
		break
	}
	return resourceType, resourceID
}
