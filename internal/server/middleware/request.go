package middleware

import (
	"log"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// HeaderRequestID carries the request id in both directions.
const HeaderRequestID = "X-Request-ID"

const maxRequestIDLen = 128

// RequestID reuses a sane incoming X-Request-ID or generates one, echoes it, and stores it with
// the client IP in the request context for audit records.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(HeaderRequestID))
		if id == "" || len(id) > maxRequestIDLen {
			id = uuid.NewString()
		}
		c.Header(HeaderRequestID, id)
		c.Request = c.Request.WithContext(WithRequestMeta(c.Request.Context(), c.ClientIP(), id))
		c.Next()
	}
}

// AccessLog logs method, route, status, duration and request id.
func AccessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		_, rid := RequestMeta(c.Request.Context())
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		log.Printf("http: %s %s -> %d (%s) rid=%s", c.Request.Method, path, c.Writer.Status(), time.Since(start), rid)
	}
}
