package middleware

import (
	"time"

	"kickstarter/pkg/metrics"

	"github.com/gin-gonic/gin"
)

// RequestMetrics records every request against its route template
func RequestMetrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		metrics.Kickstarter().ObserveRequest(c.FullPath(), c.Request.Method, c.Writer.Status(), time.Since(start))
	}
}
