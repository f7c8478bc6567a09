// Package rbac guards administrative routes.
package rbac

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"transitwatch/backend/internal/security"
	"transitwatch/backend/internal/server/middleware"
	"transitwatch/backend/internal/server/respond"
)

// CodePasswordChangeRequired is returned to callers whose token still demands a password change.
const CodePasswordChangeRequired = "PASSWORD_CHANGE_REQUIRED"

var (
	ErrUnauthenticated        = errors.New("authentication required")
	ErrPasswordChangeRequired = errors.New("password change required")
	ErrNotAdmin               = errors.New("administrator role required")
)

// AdminChecker reports whether an account currently holds the administrator role.
type AdminChecker interface {
	IsAdmin(ctx context.Context, accountID int64) (bool, error)
}

// RequireAdmin resolves the caller from ctx and checks their administrator membership
// against the store, so a revoked admin loses access before their token expires.
// Returns the caller identity on success.
func RequireAdmin(ctx context.Context, checker AdminChecker) (security.Identity, error) {
	id, ok := middleware.GetIdentity(ctx)
	if !ok || id.AccountID <= 0 {
		return security.Identity{}, ErrUnauthenticated
	}
	if id.MustChangePassword {
		return security.Identity{}, ErrPasswordChangeRequired
	}
	admin, err := checker.IsAdmin(ctx, id.AccountID)
	if err != nil {
		return security.Identity{}, err
	}
	if !admin {
		return security.Identity{}, ErrNotAdmin
	}
	return id, nil
}

// AdminOnly is the gin form of RequireAdmin. It must run after middleware.Authenticate.
func AdminOnly(checker AdminChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		_, err := RequireAdmin(c.Request.Context(), checker)
		switch {
		case err == nil:
			c.Next()
		case errors.Is(err, ErrUnauthenticated):
			respond.Fail(c, http.StatusUnauthorized, respond.CodeUnauthenticated, err.Error(), nil)
		case errors.Is(err, ErrPasswordChangeRequired):
			respond.Fail(c, http.StatusForbidden, CodePasswordChangeRequired, "change your password before continuing", nil)
		case errors.Is(err, ErrNotAdmin):
			respond.Fail(c, http.StatusForbidden, respond.CodeForbidden, err.Error(), nil)
		default:
			respond.Internal(c, err)
		}
	}
}
