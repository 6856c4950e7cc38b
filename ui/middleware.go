package ui

import (
	"time"

	"github.com/gin-gonic/gin"

	"neuropeaks/internal"
)

// requestLogger logs every request once it has been served.
func requestLogger(logger *internal.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		status := c.Writer.Status()
		switch {
		case status >= 500:
			logger.Error("[API] %s %s -> %d in %v: %s", c.Request.Method, c.Request.URL.Path, status, time.Since(start), c.Errors.String())
		case status >= 400:
			logger.Warn("[API] %s %s -> %d in %v", c.Request.Method, c.Request.URL.Path, status, time.Since(start))
		default:
			logger.Debug("[API] %s %s -> %d in %v", c.Request.Method, c.Request.URL.Path, status, time.Since(start))
		}
	}
}
