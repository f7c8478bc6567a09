// Package server assembles the HTTP router and the gRPC health server.
package server

import (
	"github.com/gin-gonic/gin"

	audithandler "transitwatch/backend/internal/audit/handler"
	"transitwatch/backend/internal/devreset"
	devresethandler "transitwatch/backend/internal/devreset/handler"
	healthhandler "transitwatch/backend/internal/health/handler"
	identityhandler "transitwatch/backend/internal/identity/handler"
	"transitwatch/backend/internal/platform/rbac"
	"transitwatch/backend/internal/ratelimit"
	rolehandler "transitwatch/backend/internal/role/handler"
	"transitwatch/backend/internal/security"
	"transitwatch/backend/internal/server/middleware"
	"transitwatch/backend/internal/telemetry"
)

// RoleAuthority mutates roles and answers live admin checks. *roleservice.RoleService implements it.
type RoleAuthority interface {
	rolehandler.RoleService
	rbac.AdminChecker
}

// Deps holds the dependencies of the HTTP surface.
type Deps struct {
	// Auth serves /auth and POST /admin/users. Required.
	Auth identityhandler.AuthService
	// Roles serves the /admin role endpoints and the admin check. Required.
	Roles RoleAuthority
	// Tokens verifies access tokens. Required.
	Tokens  *security.TokenProvider
	Cookies identityhandler.CookieConfig
	// AuditRecords serves GET /admin/audit. If nil, the route is not registered.
	AuditRecords audithandler.Lister
	// Health serves /healthz and /readyz. If nil, both report ok without checks.
	Health *healthhandler.Checker
	// LoginLimiter throttles login and forgot-password per client IP. If nil, no limit applies.
	LoginLimiter ratelimit.Limiter
	// Security counts rate-limited logins. May be nil.
	Security *telemetry.SecurityMetrics
	// HTTPMetrics instruments requests and serves GET /metrics. If nil, neither is registered.
	HTTPMetrics *middleware.HTTPMetrics
	// DevResets serves GET /dev/reset-token. Set only when reset tokens may be returned to the client.
	DevResets devreset.Store
}

// NewRouter builds the gin engine with every route.
//
// Route → handler mapping:
//   - /auth/*                    → internal/identity/handler
//   - /admin/users (POST)        → internal/identity/handler
//   - /admin/users/:id, /roles   → internal/role/handler
//   - /admin/audit               → internal/audit/handler
//   - /dev/reset-token           → internal/devreset/handler
//   - /healthz, /readyz          → internal/health/handler
func NewRouter(deps Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestID(), middleware.Trace(), middleware.AccessLog())
	if deps.HTTPMetrics != nil {
		r.Use(deps.HTTPMetrics.Instrument())
		r.GET("/metrics", gin.WrapH(deps.HTTPMetrics.Handler()))
	}

	health := deps.Health
	if health == nil {
		health = healthhandler.NewChecker(nil, nil)
	}
	r.GET("/healthz", health.Live)
	r.GET("/readyz", health.Ready)

	limiter := deps.LoginLimiter
	if limiter == nil {
		limiter = ratelimit.Noop{}
	}

	auth := identityhandler.NewHandler(deps.Auth, deps.Cookies)
	api := r.Group("/", middleware.Authenticate(deps.Tokens, deps.Cookies.AccessName))

	a := api.Group("/auth")
	a.POST("/login", middleware.RateLimit(limiter, "login", deps.Security), auth.Login)
	a.POST("/refresh", auth.Refresh)
	a.POST("/logout", auth.Logout)
	a.POST("/forgot-password", middleware.RateLimit(limiter, "forgot", deps.Security), auth.ForgotPassword)
	a.POST("/reset-password", middleware.RateLimit(limiter, "reset", deps.Security), auth.ResetPassword)
	a.GET("/me", middleware.RequireAuth(), auth.Me)
	a.PUT("/change-password", middleware.RequireAuth(), auth.ChangePassword)

	roles := rolehandler.NewHandler(deps.Roles)
	admin := api.Group("/admin", middleware.RequireAuth(), rbac.AdminOnly(deps.Roles))
	admin.POST("/users", auth.ProvisionAccount)
	admin.DELETE("/users/:id", roles.DeleteAccount)
	admin.POST("/users/:id/roles", roles.Grant)
	admin.DELETE("/users/:id/roles/:role", roles.Revoke)
	admin.PATCH("/roles/:role", roles.RenameRole)
	admin.DELETE("/roles/:role", roles.DeleteRole)
	if deps.AuditRecords != nil {
		admin.GET("/audit", audithandler.NewHandler(deps.AuditRecords).List)
	}

	if deps.DevResets != nil {
		r.GET("/dev/reset-token", devresethandler.NewHandler(deps.DevResets).ResetToken)
	}
	return r
}
