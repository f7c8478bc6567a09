package telemetry

import (
	"context"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestSecurityMetrics_Counts(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m, err := NewSecurityMetrics(mp)
	if err != nil {
		t.Fatalf("NewSecurityMetrics: %v", err)
	}
	ctx := context.Background()
	m.Login(ctx, LoginSuccess)
	m.Login(ctx, LoginBadCredentials)
	m.Login(ctx, LoginBadCredentials)
	m.Lockout(ctx)
	m.RoleChange(ctx, "revoke", "last_admin")

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	totals := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, md := range sm.Metrics {
			sum, ok := md.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}
			for _, dp := range sum.DataPoints {
				totals[md.Name] += dp.Value
			}
		}
	}
	if totals["identity.logins"] != 3 {
		t.Errorf("logins = %d, want 3", totals["identity.logins"])
	}
	if totals["identity.lockouts"] != 1 {
		t.Errorf("lockouts = %d, want 1", totals["identity.lockouts"])
	}
	if totals["identity.role_changes"] != 1 {
		t.Errorf("role_changes = %d, want 1", totals["identity.role_changes"])
	}
}

func TestSecurityMetrics_NilIsNoop(t *testing.T) {
	var m *SecurityMetrics
	ctx := context.Background()
	m.Login(ctx, LoginSuccess)
	m.Lockout(ctx)
	m.RoleChange(ctx, "grant", "ok")
	m.PasswordReset(ctx, "requested")
}
