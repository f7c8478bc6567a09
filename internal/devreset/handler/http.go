// Package handler serves GET /dev/reset-token. Registered only when reset tokens may be
// returned to the client, never in production.
package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"transitwatch/backend/internal/devreset"
	"transitwatch/backend/internal/server/respond"
)

const devNote = "DEV MODE ONLY"

// Handler reads reset tokens from the dev store.
type Handler struct {
	store devreset.Store
}

// NewHandler returns a Handler backed by store.
func NewHandler(store devreset.Store) *Handler {
	return &Handler{store: store}
}

// ResetToken returns the latest unexpired reset token for ?email=.
func (h *Handler) ResetToken(c *gin.Context) {
	email := strings.TrimSpace(c.Query("email"))
	if email == "" {
		respond.Invalid(c, "validation failed", gin.H{"email": []string{"is required"}})
		return
	}
	token, ok := h.store.Get(c.Request.Context(), email)
	if !ok {
		respond.Fail(c, http.StatusNotFound, respond.CodeNotFound, "reset token not found or expired", nil)
		return
	}
	respond.OK(c, http.StatusOK, gin.H{"token": token, "note": devNote})
}
