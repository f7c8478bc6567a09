// Package handler serves the administrative role and account endpoints.
package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"transitwatch/backend/internal/role/domain"
	"transitwatch/backend/internal/role/service"
	"transitwatch/backend/internal/server/middleware"
	"transitwatch/backend/internal/server/respond"
)

// CodeLastAdmin is returned when a change would leave no administrator.
const CodeLastAdmin = "LAST_ADMIN"

// RoleService is the subset of *service.RoleService used by the handlers.
type RoleService interface {
	Grant(ctx context.Context, actorID, targetID int64, ref domain.RoleRef) ([]string, error)
	Revoke(ctx context.Context, actorID, targetID int64, ref domain.RoleRef) ([]string, error)
	DeleteAccount(ctx context.Context, actorID, targetID int64) error
	RenameRole(ctx context.Context, actorID int64, ref domain.RoleRef, newName string) error
	DeleteRole(ctx context.Context, actorID int64, ref domain.RoleRef) error
}

// Handler implements the /admin role endpoints. Every route runs behind rbac.AdminOnly.
type Handler struct {
	roles RoleService
}

// NewHandler returns a Handler.
func NewHandler(roles RoleService) *Handler {
	return &Handler{roles: roles}
}

type grantRequest struct {
	Role   string `json:"role"`
	RoleID int64  `json:"role_id"`
}

// Grant handles POST /admin/users/:id/roles with {role} or {role_id}.
func (h *Handler) Grant(c *gin.Context) {
	targetID, ok := accountParam(c)
	if !ok {
		return
	}
	var req grantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Invalid(c, "malformed request body", gin.H{"body": []string{err.Error()}})
		return
	}
	var ref domain.RoleRef
	switch {
	case req.RoleID > 0:
		ref = domain.RoleByID(req.RoleID)
	case req.Role != "":
		r, err := domain.ParseRoleRef(req.Role)
		if err != nil {
			respond.Invalid(c, "validation failed", gin.H{"role": []string{err.Error()}})
			return
		}
		ref = r
	default:
		respond.Invalid(c, "validation failed", gin.H{"role": []string{"is required"}})
		return
	}
	names, err := h.roles.Grant(c.Request.Context(), actor(c), targetID, ref)
	if err != nil {
		writeError(c, err)
		return
	}
	respond.OK(c, http.StatusOK, gin.H{"id": targetID, "roles": names, "role": domain.PrimaryRole(names)})
}

// Revoke handles DELETE /admin/users/:id/roles/:role.
func (h *Handler) Revoke(c *gin.Context) {
	targetID, ok := accountParam(c)
	if !ok {
		return
	}
	ref, ok := roleParam(c)
	if !ok {
		return
	}
	names, err := h.roles.Revoke(c.Request.Context(), actor(c), targetID, ref)
	if err != nil {
		writeError(c, err)
		return
	}
	respond.OK(c, http.StatusOK, gin.H{"id": targetID, "roles": names, "role": domain.PrimaryRole(names)})
}

// DeleteAccount handles DELETE /admin/users/:id.
func (h *Handler) DeleteAccount(c *gin.Context) {
	targetID, ok := accountParam(c)
	if !ok {
		return
	}
	if err := h.roles.DeleteAccount(c.Request.Context(), actor(c), targetID); err != nil {
		writeError(c, err)
		return
	}
	respond.OK(c, http.StatusOK, gin.H{"message": "account deleted"})
}

type renameRequest struct {
	Name string `json:"name"`
}

// RenameRole handles PATCH /admin/roles/:role.
func (h *Handler) RenameRole(c *gin.Context) {
	ref, ok := roleParam(c)
	if !ok {
		return
	}
	var req renameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Invalid(c, "malformed request body", gin.H{"body": []string{err.Error()}})
		return
	}
	if err := h.roles.RenameRole(c.Request.Context(), actor(c), ref, req.Name); err != nil {
		writeError(c, err)
		return
	}
	respond.OK(c, http.StatusOK, gin.H{"message": "role renamed"})
}

// DeleteRole handles DELETE /admin/roles/:role.
func (h *Handler) DeleteRole(c *gin.Context) {
	ref, ok := roleParam(c)
	if !ok {
		return
	}
	if err := h.roles.DeleteRole(c.Request.Context(), actor(c), ref); err != nil {
		writeError(c, err)
		return
	}
	respond.OK(c, http.StatusOK, gin.H{"message": "role deleted"})
}

func actor(c *gin.Context) int64 {
	id, _ := middleware.GetIdentity(c.Request.Context())
	return id.AccountID
}

func accountParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		respond.Invalid(c, "validation failed", gin.H{"id": []string{"must be a positive integer"}})
		return 0, false
	}
	return id, true
}

func roleParam(c *gin.Context) (domain.RoleRef, bool) {
	ref, err := domain.ParseRoleRef(c.Param("role"))
	if err != nil {
		respond.Invalid(c, "validation failed", gin.H{"role": []string{err.Error()}})
		return domain.RoleRef{}, false
	}
	return ref, true
}

func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrLastAdmin):
		respond.Fail(c, http.StatusForbidden, CodeLastAdmin, err.Error(), nil)
	case errors.Is(err, service.ErrSelfRevoke), errors.Is(err, service.ErrSelfDelete),
		errors.Is(err, service.ErrProtectedRole):
		respond.Fail(c, http.StatusForbidden, respond.CodeForbidden, err.Error(), nil)
	case errors.Is(err, service.ErrNotFound):
		respond.Fail(c, http.StatusNotFound, respond.CodeNotFound, err.Error(), nil)
	case errors.Is(err, service.ErrRoleNameTaken):
		respond.Fail(c, http.StatusConflict, respond.CodeConflict, err.Error(), nil)
	case errors.Is(err, service.ErrInvalidName):
		respond.Invalid(c, "validation failed", gin.H{"name": []string{err.Error()}})
	default:
		respond.Internal(c, err)
	}
}
