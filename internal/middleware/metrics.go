// Package middleware provides the Gin HTTP middleware chain for the Crewbase
// API. All middleware here is registered in internal/api/router.go before any
// route handlers so every request is covered regardless of handler.
package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/crewbase/crewbase/internal/telemetry"
)

// MetricsMiddleware records request count and latency for every request.
//
// The path label is set from c.FullPath(), the matched route template
// (e.g. /api/v1/onboarding/employee) rather than the raw URL. Requests that
// match no registered route use the literal "<no-route>" so scanner traffic
// does not inflate label cardinality.
func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "<no-route>"
		}

		method := c.Request.Method
		status := strconv.Itoa(c.Writer.Status())

		telemetry.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
		telemetry.HTTPRequestDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
	}
}
