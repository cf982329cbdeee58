package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/Florentin-artemix/Galileo-sub000/internal/models"
	"github.com/Florentin-artemix/Galileo-sub000/internal/service"
	appErrors "github.com/Florentin-artemix/Galileo-sub000/pkg/errors"
	"github.com/Florentin-artemix/Galileo-sub000/pkg/response"
)

// RequireCapability rejects callers whose role lacks any of the listed
// capabilities. Anonymous callers are checked as VIEWER.
func RequireCapability(capabilities ...service.Capability) gin.HandlerFunc {
	return func(c *gin.Context) {
		session := SessionFromContext(c)
		if session == nil {
			session = models.AnonymousSession()
		}
		for _, capability := range capabilities {
			if service.Permits(session, capability) {
				continue
			}
			if !session.Authenticated() {
				response.Error(c, appErrors.Clone(appErrors.ErrUnauthenticated, "authentication required"))
			} else {
				response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "role "+string(session.Role)+" may not perform "+string(capability)))
			}
			c.Abort()
			return
		}
		c.Next()
	}
}
