package otel

import (
	"context"
	"encoding/json"
	"strconv"

	otellog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	"transitwatch/backend/internal/audit/domain"
)

// recordEmitter is the part of otellog.Logger the audit sink needs.
type recordEmitter interface {
	Emit(ctx context.Context, rec otellog.Record)
}

// AuditSink mirrors audit records as OTel log records.
type AuditSink struct {
	logger recordEmitter
}

// NewAuditSink returns a sink emitting through provider, or nil when provider is nil.
func NewAuditSink(provider *sdklog.LoggerProvider) *AuditSink {
	if provider == nil {
		return nil
	}
	return &AuditSink{logger: provider.Logger("transitwatch.audit")}
}

// NewAuditSinkWithLogger returns a sink emitting through l. For tests.
func NewAuditSinkWithLogger(l recordEmitter) *AuditSink {
	return &AuditSink{logger: l}
}

// Write converts r to a log record. The event code is the body; actor, IP and
// request id become attributes, metadata is attached as JSON.
func (s *AuditSink) Write(ctx context.Context, r *domain.Record) error {
	if r == nil {
		return nil
	}
	rec := otellog.Record{}
	rec.SetTimestamp(r.CreatedAt)
	rec.SetSeverity(severityFor(r.Event))
	rec.SetBody(otellog.StringValue(r.Event))
	rec.AddAttributes(otellog.String("event", r.Event))
	if r.ActorID != nil {
		rec.AddAttributes(otellog.String("actor_id", strconv.FormatInt(*r.ActorID, 10)))
	}
	if r.IP != "" {
		rec.AddAttributes(otellog.String("client_ip", r.IP))
	}
	if r.RequestID != "" {
		rec.AddAttributes(otellog.String("request_id", r.RequestID))
	}
	if len(r.Metadata) > 0 {
		b, err := json.Marshal(r.Metadata)
		if err != nil {
			return err
		}
		rec.AddAttributes(otellog.String("metadata", string(b)))
	}
	s.logger.Emit(ctx, rec)
	return nil
}

func severityFor(event string) otellog.Severity {
	switch event {
	case domain.EventLoginFailure, domain.EventTokenRefreshFailed, domain.EventRoleChangeDenied:
		return otellog.SeverityWarn
	case domain.EventAccountLocked:
		return otellog.SeverityError
	}
	return otellog.SeverityInfo
}
