package rbac

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"transitwatch/backend/internal/security"
	"transitwatch/backend/internal/server/middleware"
)

// mockAdminChecker implements AdminChecker for tests.
type mockAdminChecker struct {
	admins map[int64]bool
	err    error
}

func (m *mockAdminChecker) IsAdmin(ctx context.Context, accountID int64) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	return m.admins[accountID], nil
}

func TestRequireAdmin_Success(t *testing.T) {
	checker := &mockAdminChecker{admins: map[int64]bool{1: true}}
	ctx := middleware.WithIdentity(context.Background(), security.Identity{AccountID: 1, Role: "admin"})

	id, err := RequireAdmin(ctx, checker)
	if err != nil {
		t.Fatalf("RequireAdmin: %v", err)
	}
	if id.AccountID != 1 {
		t.Errorf("account id = %d, want 1", id.AccountID)
	}
}

func TestRequireAdmin_NoIdentity(t *testing.T) {
	_, err := RequireAdmin(context.Background(), &mockAdminChecker{})
	if !errors.Is(err, ErrUnauthenticated) {
		t.Errorf("err = %v, want ErrUnauthenticated", err)
	}
}

func TestRequireAdmin_StaleTokenRole(t *testing.T) {
	// Token still says admin but the membership was revoked.
	checker := &mockAdminChecker{admins: map[int64]bool{}}
	ctx := middleware.WithIdentity(context.Background(), security.Identity{AccountID: 2, Role: "admin"})

	if _, err := RequireAdmin(ctx, checker); !errors.Is(err, ErrNotAdmin) {
		t.Errorf("err = %v, want ErrNotAdmin", err)
	}
}

func TestRequireAdmin_PasswordChangeRequired(t *testing.T) {
	checker := &mockAdminChecker{admins: map[int64]bool{3: true}}
	ctx := middleware.WithIdentity(context.Background(), security.Identity{AccountID: 3, MustChangePassword: true})

	if _, err := RequireAdmin(ctx, checker); !errors.Is(err, ErrPasswordChangeRequired) {
		t.Errorf("err = %v, want ErrPasswordChangeRequired", err)
	}
}

func TestRequireAdmin_CheckerError(t *testing.T) {
	checker := &mockAdminChecker{err: errors.New("db down")}
	ctx := middleware.WithIdentity(context.Background(), security.Identity{AccountID: 1})

	if _, err := RequireAdmin(ctx, checker); err == nil || err.Error() != "db down" {
		t.Errorf("err = %v, want db down", err)
	}
}

func TestAdminOnly(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tests := []struct {
		name       string
		identity   *security.Identity
		checker    *mockAdminChecker
		wantStatus int
		wantCode   string
	}{
		{"admin", &security.Identity{AccountID: 1}, &mockAdminChecker{admins: map[int64]bool{1: true}}, http.StatusNoContent, ""},
		{"anonymous", nil, &mockAdminChecker{}, http.StatusUnauthorized, "UNAUTHENTICATED"},
		{"not admin", &security.Identity{AccountID: 2}, &mockAdminChecker{}, http.StatusForbidden, "FORBIDDEN"},
		{"must change", &security.Identity{AccountID: 1, MustChangePassword: true}, &mockAdminChecker{admins: map[int64]bool{1: true}}, http.StatusForbidden, CodePasswordChangeRequired},
		{"store error", &security.Identity{AccountID: 1}, &mockAdminChecker{err: errors.New("db down")}, http.StatusInternalServerError, "INTERNAL"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := gin.New()
			r.Use(func(c *gin.Context) {
				if tt.identity != nil {
					c.Request = c.Request.WithContext(middleware.WithIdentity(c.Request.Context(), *tt.identity))
				}
			})
			r.DELETE("/admin/roles/:role", AdminOnly(tt.checker), func(c *gin.Context) {
				c.Status(http.StatusNoContent)
			})
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/admin/roles/dispatcher", nil))
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if tt.wantCode != "" && !strings.Contains(rec.Body.String(), `"code":"`+tt.wantCode+`"`) {
				t.Errorf("body = %s, want code %s", rec.Body.String(), tt.wantCode)
			}
		})
	}
}
