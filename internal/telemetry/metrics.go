// Package telemetry holds the security counters exported through OpenTelemetry.
package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "transitwatch.identity"

// Login outcomes.
const (
	LoginSuccess        = "success"
	LoginBadCredentials = "bad_credentials"
	LoginLocked         = "locked"
	LoginRateLimited    = "rate_limited"
)

// SecurityMetrics counts authentication and authorisation outcomes.
// A nil *SecurityMetrics records nothing.
type SecurityMetrics struct {
	logins      metric.Int64Counter
	lockouts    metric.Int64Counter
	roleChanges metric.Int64Counter
	resets      metric.Int64Counter
}

// NewSecurityMetrics registers the counters on mp.
func NewSecurityMetrics(mp metric.MeterProvider) (*SecurityMetrics, error) {
	meter := mp.Meter(meterName)
	logins, err := meter.Int64Counter("identity.logins",
		metric.WithDescription("Login attempts by outcome"))
	if err != nil {
		return nil, err
	}
	lockouts, err := meter.Int64Counter("identity.lockouts",
		metric.WithDescription("Accounts locked after repeated failures"))
	if err != nil {
		return nil, err
	}
	roleChanges, err := meter.Int64Counter("identity.role_changes",
		metric.WithDescription("Role mutations by operation and outcome"))
	if err != nil {
		return nil, err
	}
	resets, err := meter.Int64Counter("identity.password_resets",
		metric.WithDescription("Password reset requests and completions"))
	if err != nil {
		return nil, err
	}
	return &SecurityMetrics{logins: logins, lockouts: lockouts, roleChanges: roleChanges, resets: resets}, nil
}

func (m *SecurityMetrics) Login(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.logins.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func (m *SecurityMetrics) Lockout(ctx context.Context) {
	if m == nil {
		return
	}
	m.lockouts.Add(ctx, 1)
}

func (m *SecurityMetrics) RoleChange(ctx context.Context, op, outcome string) {
	if m == nil {
		return
	}
	m.roleChanges.Add(ctx, 1, metric.WithAttributes(
		attribute.String("op", op),
		attribute.String("outcome", outcome),
	))
}

func (m *SecurityMetrics) PasswordReset(ctx context.Context, stage string) {
	if m == nil {
		return
	}
	m.resets.Add(ctx, 1, metric.WithAttributes(attribute.String("stage", stage)))
}
