package middleware

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"transitwatch/backend/internal/ratelimit"
	"transitwatch/backend/internal/server/respond"
	"transitwatch/backend/internal/telemetry"
)

// RateLimit throttles requests per client IP within scope (e.g. "login"). When the limiter
// backend fails the request is let through and the failure logged; account lockout still applies.
func RateLimit(l ratelimit.Limiter, scope string, metrics *telemetry.SecurityMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		if ip == "" {
			ip = "unknown"
		}
		ok, err := l.Allow(c.Request.Context(), scope+":"+ip)
		if err != nil {
			log.Printf("ratelimit: %s: %v", scope, err)
			c.Next()
			return
		}
		if !ok {
			if scope == "login" {
				metrics.Login(c.Request.Context(), telemetry.LoginRateLimited)
			}
			respond.Fail(c, http.StatusTooManyRequests, respond.CodeRateLimited, "too many requests, try again later", nil)
			return
		}
		c.Next()
	}
}
