package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"transitwatch/backend/internal/security"
	"transitwatch/backend/internal/server/respond"
)

const (
	bearerPrefix = "bearer "
	// CodeInvalidToken is returned when an access token is present but expired or forged.
	CodeInvalidToken = "INVALID_TOKEN"

	tokenRejectedKey = "auth.token_rejected"
	tokenExpiredKey  = "auth.token_expired"
)

// Authenticate validates the access token from the access cookie (or an Authorization Bearer
// header) and puts the identity in the request context. It never rejects; RequireAuth does.
func Authenticate(tokens *security.TokenProvider, accessCookie string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := accessToken(c, accessCookie)
		if token == "" {
			c.Next()
			return
		}
		claims, err := tokens.VerifyAccess(token)
		if err != nil {
			c.Set(tokenRejectedKey, true)
			c.Set(tokenExpiredKey, errors.Is(err, security.ErrTokenExpired))
			c.Next()
			return
		}
		c.Request = c.Request.WithContext(WithIdentity(c.Request.Context(), claims.Identity))
		c.Next()
	}
}

// RequireAuth rejects requests without a valid access token with 401.
func RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := GetIdentity(c.Request.Context()); ok {
			c.Next()
			return
		}
		if c.GetBool(tokenRejectedKey) {
			msg := "invalid access token"
			if c.GetBool(tokenExpiredKey) {
				msg = "access token expired"
			}
			respond.Fail(c, http.StatusUnauthorized, CodeInvalidToken, msg, nil)
			return
		}
		respond.Fail(c, http.StatusUnauthorized, respond.CodeUnauthenticated, "authentication required", nil)
	}
}

func accessToken(c *gin.Context, cookieName string) string {
	if v, err := c.Cookie(cookieName); err == nil && v != "" {
		return v
	}
	return extractBearer(c.GetHeader("Authorization"))
}

// extractBearer returns the token from an Authorization header value, or "" if missing or malformed.
func extractBearer(v string) string {
	v = strings.TrimSpace(v)
	if len(v) < len(bearerPrefix) {
		return ""
	}
	if !strings.EqualFold(v[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(v[len(bearerPrefix):])
}
