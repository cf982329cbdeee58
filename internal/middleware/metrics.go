package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Florentin-artemix/Galileo-sub000/internal/service"
)

// Metrics observes every request on the route template, and counts refusals
// from the session and capability gates by the caller's role.
func Metrics(metricsSvc *service.MetricsService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if metricsSvc == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		metricsSvc.ObserveHTTPRequest(c.Request.Method, route, status, time.Since(start))

		if status == http.StatusUnauthorized || status == http.StatusForbidden {
			metricsSvc.RecordAccessDenied(callerRole(c), status)
		}
	}
}

func callerRole(c *gin.Context) string {
	session := SessionFromContext(c)
	if session == nil || !session.Authenticated() {
		return "anonymous"
	}
	return strings.ToLower(string(session.Role))
}
