// Package handler reports liveness and readiness over HTTP and the gRPC health protocol.
package handler

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"transitwatch/backend/internal/server/respond"
)

const checkTimeout = 2 * time.Second

// Pinger checks database connectivity. *sql.DB implements it.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// PolicyChecker checks that the rotation policy evaluates. *engine.OPAEvaluator implements it.
type PolicyChecker interface {
	HealthCheck(ctx context.Context) error
}

// Checker runs the readiness checks. Nil dependencies are skipped.
type Checker struct {
	pinger Pinger
	policy PolicyChecker
}

// NewChecker returns a Checker. pinger and policy may be nil.
func NewChecker(pinger Pinger, policy PolicyChecker) *Checker {
	return &Checker{pinger: pinger, policy: policy}
}

// Check returns the first failing dependency.
func (h *Checker) Check(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()
	if h.pinger != nil {
		if err := h.pinger.PingContext(ctx); err != nil {
			return fmt.Errorf("database: %w", err)
		}
	}
	if h.policy != nil {
		if err := h.policy.HealthCheck(ctx); err != nil {
			return fmt.Errorf("policy: %w", err)
		}
	}
	return nil
}

// Live handles GET /healthz. It only reports that the process serves requests.
func (h *Checker) Live(c *gin.Context) {
	respond.OK(c, http.StatusOK, gin.H{"status": "ok"})
}

// Ready handles GET /readyz: 200 when every dependency answers, 503 otherwise.
func (h *Checker) Ready(c *gin.Context) {
	if err := h.Check(c.Request.Context()); err != nil {
		respond.Fail(c, http.StatusServiceUnavailable, "NOT_READY", err.Error(), nil)
		return
	}
	respond.OK(c, http.StatusOK, gin.H{"status": "ready"})
}
