package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/elab-api/internal/service"
)

// unmatchedRoute labels requests that hit no route, keeping raw paths out of metric labels.
const unmatchedRoute = "unmatched"

// Metrics returns middleware that captures request metrics using the provided service.
// Routes listed in skipRoutes, typically health checks and the scrape endpoint, are not observed.
func Metrics(metricsSvc *service.MetricsService, skipRoutes ...string) gin.HandlerFunc {
	skip := make(map[string]struct{}, len(skipRoutes))
	for _, route := range skipRoutes {
		skip[route] = struct{}{}
	}
	return func(c *gin.Context) {
		if metricsSvc == nil {
			c.Next()
			return
		}
		path := c.FullPath()
		if _, ok := skip[path]; ok && path != "" {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()
		duration := time.Since(start)
		status := c.Writer.Status()
		if path == "" {
			path = unmatchedRoute
		}
		metricsSvc.ObserveHTTPRequest(c.Request.Method, path, status, duration)
	}
}
