// Package handler serves the /auth endpoints and account provisioning over HTTP.
package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	accountdomain "transitwatch/backend/internal/account/domain"
	"transitwatch/backend/internal/identity/service"
	"transitwatch/backend/internal/security"
	"transitwatch/backend/internal/server/middleware"
	"transitwatch/backend/internal/server/respond"
)

// Error codes specific to authentication.
const (
	CodeBadCredentials = "BAD_CREDENTIALS"
	CodeAccountLocked  = "ACCOUNT_LOCKED"
	CodeNoRefreshToken = "NO_REFRESH_TOKEN"
	CodeInvalidRefresh = "INVALID_REFRESH"
	CodeInvalidToken   = "INVALID_TOKEN"
)

const forgotPasswordMessage = "If an account exists for that email, a reset link has been sent."

// AuthService is the subset of *service.AuthService used by the handlers.
type AuthService interface {
	Login(ctx context.Context, email, password string) (*service.Session, error)
	Refresh(ctx context.Context, refreshToken string) (security.TokenPair, security.Identity, error)
	ChangePassword(ctx context.Context, accountID int64, oldPassword, newPassword, confirmPassword string) (*service.Session, error)
	ForgotPassword(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, token, newPassword, confirmPassword string) (*service.Session, error)
	Logout(ctx context.Context, accountID int64)
	Me(ctx context.Context, accountID int64) (*service.Profile, error)
	ProvisionAccount(ctx context.Context, actorID int64, email, name, password, role string) (*service.Profile, error)
}

// Handler implements the auth HTTP endpoints.
type Handler struct {
	auth    AuthService
	cookies CookieConfig
	now     func() time.Time
}

// NewHandler returns a Handler. auth must not be nil.
func NewHandler(auth AuthService, cookies CookieConfig) *Handler {
	return &Handler{auth: auth, cookies: cookies, now: time.Now}
}

type userView struct {
	ID                 int64    `json:"id"`
	Name               string   `json:"name"`
	Email              string   `json:"email"`
	Role               string   `json:"role"`
	Roles              []string `json:"roles,omitempty"`
	MustChangePassword bool     `json:"mustChangePassword"`
}

func viewOf(a *accountdomain.Account, roles []string, mustChange bool) userView {
	return userView{
		ID:                 a.ID,
		Name:               a.Name,
		Email:              a.Email,
		Role:               a.Role,
		Roles:              roles,
		MustChangePassword: mustChange,
	}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login handles POST /auth/login.
func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if !bind(c, &req) {
		return
	}
	sess, err := h.auth.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		writeError(c, err)
		return
	}
	h.startSession(c, sess, http.StatusOK)
}

// Refresh handles POST /auth/refresh. It reads only the refresh cookie; on failure both cookies are cleared.
func (h *Handler) Refresh(c *gin.Context) {
	token, _ := c.Cookie(h.cookies.RefreshName)
	pair, _, err := h.auth.Refresh(c.Request.Context(), token)
	if err != nil {
		h.cookies.clear(c)
		writeError(c, err)
		return
	}
	h.cookies.set(c, pair, h.now())
	respond.OK(c, http.StatusOK, gin.H{"message": "session refreshed"})
}

// Me handles GET /auth/me.
func (h *Handler) Me(c *gin.Context) {
	id, ok := middleware.GetIdentity(c.Request.Context())
	if !ok {
		respond.Fail(c, http.StatusUnauthorized, respond.CodeUnauthenticated, "authentication required", nil)
		return
	}
	p, err := h.auth.Me(c.Request.Context(), id.AccountID)
	if err != nil {
		writeError(c, err)
		return
	}
	respond.OK(c, http.StatusOK, gin.H{"user": viewOf(p.Account, p.Roles, id.MustChangePassword)})
}

// Logout handles POST /auth/logout. It succeeds without a session.
func (h *Handler) Logout(c *gin.Context) {
	var accountID int64
	if id, ok := middleware.GetIdentity(c.Request.Context()); ok {
		accountID = id.AccountID
	}
	h.auth.Logout(c.Request.Context(), accountID)
	h.cookies.clear(c)
	respond.OK(c, http.StatusOK, gin.H{"message": "logged out"})
}

type changePasswordRequest struct {
	OldPassword     string `json:"old_password"`
	NewPassword     string `json:"new_password"`
	ConfirmPassword string `json:"confirm_password"`
}

// ChangePassword handles PUT /auth/change-password and reissues the cookies.
func (h *Handler) ChangePassword(c *gin.Context) {
	id, ok := middleware.GetIdentity(c.Request.Context())
	if !ok {
		respond.Fail(c, http.StatusUnauthorized, respond.CodeUnauthenticated, "authentication required", nil)
		return
	}
	var req changePasswordRequest
	if !bind(c, &req) {
		return
	}
	sess, err := h.auth.ChangePassword(c.Request.Context(), id.AccountID, req.OldPassword, req.NewPassword, req.ConfirmPassword)
	if err != nil {
		writeError(c, err)
		return
	}
	h.startSession(c, sess, http.StatusOK)
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

// ForgotPassword handles POST /auth/forgot-password. The body is the same for known and unknown emails.
func (h *Handler) ForgotPassword(c *gin.Context) {
	var req forgotPasswordRequest
	if !bind(c, &req) {
		return
	}
	if err := h.auth.ForgotPassword(c.Request.Context(), req.Email); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "message": forgotPasswordMessage})
}

type resetPasswordRequest struct {
	Token           string `json:"token"`
	NewPassword     string `json:"new_password"`
	ConfirmPassword string `json:"confirm_password"`
}

// ResetPassword handles POST /auth/reset-password and signs the account in on success.
func (h *Handler) ResetPassword(c *gin.Context) {
	var req resetPasswordRequest
	if !bind(c, &req) {
		return
	}
	sess, err := h.auth.ResetPassword(c.Request.Context(), req.Token, req.NewPassword, req.ConfirmPassword)
	if err != nil {
		writeError(c, err)
		return
	}
	h.startSession(c, sess, http.StatusOK)
}

type provisionRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

// ProvisionAccount handles POST /admin/users. Runs behind rbac.AdminOnly.
func (h *Handler) ProvisionAccount(c *gin.Context) {
	id, _ := middleware.GetIdentity(c.Request.Context())
	var req provisionRequest
	if !bind(c, &req) {
		return
	}
	p, err := h.auth.ProvisionAccount(c.Request.Context(), id.AccountID, req.Email, req.Name, req.Password, req.Role)
	if err != nil {
		writeError(c, err)
		return
	}
	respond.OK(c, http.StatusCreated, gin.H{"user": viewOf(p.Account, p.Roles, true)})
}

func (h *Handler) startSession(c *gin.Context, sess *service.Session, status int) {
	h.cookies.set(c, sess.Tokens, h.now())
	respond.OK(c, status, viewOf(sess.Account, nil, sess.MustChangePassword))
}

func bind(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		respond.Invalid(c, "malformed request body", gin.H{"body": []string{err.Error()}})
		return false
	}
	return true
}

func writeError(c *gin.Context, err error) {
	var ve *service.ValidationError
	switch {
	case errors.As(err, &ve):
		respond.Invalid(c, ve.Message, ve.Fields)
	case errors.Is(err, service.ErrBadCredentials):
		respond.Fail(c, http.StatusUnauthorized, CodeBadCredentials, err.Error(), nil)
	case errors.Is(err, service.ErrAccountLocked):
		respond.Fail(c, http.StatusLocked, CodeAccountLocked, err.Error(), nil)
	case errors.Is(err, service.ErrNoRefreshToken):
		respond.Fail(c, http.StatusUnauthorized, CodeNoRefreshToken, err.Error(), nil)
	case errors.Is(err, service.ErrInvalidRefresh):
		respond.Fail(c, http.StatusUnauthorized, CodeInvalidRefresh, err.Error(), nil)
	case errors.Is(err, service.ErrInvalidToken):
		respond.Fail(c, http.StatusUnauthorized, CodeInvalidToken, err.Error(), nil)
	case errors.Is(err, service.ErrNotFound):
		respond.Fail(c, http.StatusNotFound, respond.CodeNotFound, err.Error(), nil)
	case errors.Is(err, service.ErrEmailTaken):
		respond.Fail(c, http.StatusConflict, respond.CodeConflict, err.Error(), nil)
	default:
		respond.Internal(c, err)
	}
}
