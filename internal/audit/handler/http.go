// Package handler serves the audit trail to administrators.
package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"transitwatch/backend/internal/audit/domain"
	"transitwatch/backend/internal/server/respond"
)

const defaultLimit = 100

// Lister returns recent audit records, newest first.
type Lister interface {
	ListRecent(ctx context.Context, limit int) ([]*domain.Record, error)
}

// Handler serves GET /admin/audit. Runs behind rbac.AdminOnly.
type Handler struct {
	records Lister
}

// NewHandler returns a Handler reading from records.
func NewHandler(records Lister) *Handler {
	return &Handler{records: records}
}

// List handles GET /admin/audit?limit=N.
func (h *Handler) List(c *gin.Context) {
	limit := defaultLimit
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			respond.Invalid(c, "validation failed", gin.H{"limit": []string{"must be a positive integer"}})
			return
		}
		limit = n
	}
	recs, err := h.records.ListRecent(c.Request.Context(), limit)
	if err != nil {
		respond.Internal(c, err)
		return
	}
	if recs == nil {
		recs = []*domain.Record{}
	}
	respond.OK(c, http.StatusOK, gin.H{"records": recs})
}
