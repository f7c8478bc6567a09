package otel

import (
	"context"
	"testing"
	"time"

	otellog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	"transitwatch/backend/internal/audit/domain"
)

// recordCapture stores the last Record passed to Emit for assertion.
type recordCapture struct {
	rec otellog.Record
	n   int
}

func (r *recordCapture) Emit(_ context.Context, rec otellog.Record) {
	r.rec = rec
	r.n++
}

func TestNewAuditSink_NilProvider(t *testing.T) {
	if NewAuditSink(nil) != nil {
		t.Error("NewAuditSink(nil) should return nil")
	}
	provider := sdklog.NewLoggerProvider()
	defer func() { _ = provider.Shutdown(context.Background()) }()
	if NewAuditSink(provider) == nil {
		t.Error("NewAuditSink(provider) should not be nil")
	}
}

func TestAuditSink_Write_Mapping(t *testing.T) {
	cap := &recordCapture{}
	sink := NewAuditSinkWithLogger(cap)
	actor := int64(9)
	created := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)

	err := sink.Write(context.Background(), &domain.Record{
		ActorID:   &actor,
		Event:     domain.EventAccountLocked,
		Metadata:  map[string]any{"attempts": 5},
		IP:        "10.1.1.1",
		RequestID: "req-9",
		CreatedAt: created,
	})
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if cap.n != 1 {
		t.Fatalf("Emit calls = %d, want 1", cap.n)
	}
	if cap.rec.Body().AsString() != domain.EventAccountLocked {
		t.Errorf("body = %q", cap.rec.Body().AsString())
	}
	if cap.rec.Severity() != otellog.SeverityError {
		t.Errorf("severity = %v, want error", cap.rec.Severity())
	}
	if !cap.rec.Timestamp().Equal(created) {
		t.Errorf("timestamp = %v", cap.rec.Timestamp())
	}
	attrs := map[string]string{}
	cap.rec.WalkAttributes(func(kv otellog.KeyValue) bool {
		attrs[kv.Key] = kv.Value.AsString()
		return true
	})
	want := map[string]string{
		"event":      domain.EventAccountLocked,
		"actor_id":   "9",
		"client_ip":  "10.1.1.1",
		"request_id": "req-9",
		"metadata":   `{"attempts":5}`,
	}
	for k, v := range want {
		if attrs[k] != v {
			t.Errorf("attr %s = %q, want %q", k, attrs[k], v)
		}
	}
}

func TestAuditSink_Write_NilRecord(t *testing.T) {
	cap := &recordCapture{}
	if err := NewAuditSinkWithLogger(cap).Write(context.Background(), nil); err != nil {
		t.Errorf("Write(nil): %v", err)
	}
	if cap.n != 0 {
		t.Error("nil record should not be emitted")
	}
}
