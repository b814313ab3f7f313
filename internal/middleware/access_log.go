package middleware

import (
	"log"
	"time"

	"github.com/gin-gonic/gin"
)

// AccessLog writes one line per request to logger.
func AccessLog(logger *log.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		line := "%s %s %d %v id=%s"
		args := []any{c.Request.Method, path, c.Writer.Status(), time.Since(start).Round(time.Microsecond), GetRequestID(c)}
		if len(c.Errors) > 0 {
			line += " errors=%s"
			args = append(args, c.Errors.String())
		}
		logger.Printf(line, args...)
	}
}
