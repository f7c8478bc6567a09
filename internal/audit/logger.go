// Package audit records security events. Recording is best-effort: a failing
// sink is logged and never surfaces to the caller.
package audit

import (
	"context"
	"log"
	"time"

	"transitwatch/backend/internal/audit/domain"
	auditrepo "transitwatch/backend/internal/audit/repository"
)

// Sink receives each audit record.
type Sink interface {
	Write(ctx context.Context, r *domain.Record) error
}

// MetaExtractor returns the client IP and request id carried by ctx.
type MetaExtractor func(context.Context) (ip, requestID string)

// Recorder is the narrow interface services depend on.
type Recorder interface {
	Record(ctx context.Context, event string, actorID *int64, metadata map[string]any)
}

// Logger fans each event out to its sinks.
type Logger struct {
	sinks []Sink
	meta  MetaExtractor
	now   func() time.Time
}

// NewLogger returns a Logger writing to sinks; nil sinks are skipped.
// meta may be nil; then IP and request id are left empty.
func NewLogger(meta MetaExtractor, sinks ...Sink) *Logger {
	l := &Logger{meta: meta, now: time.Now}
	for _, s := range sinks {
		if s != nil {
			l.sinks = append(l.sinks, s)
		}
	}
	return l
}

// Record writes one audit event to every sink. Errors are logged and not returned.
func (l *Logger) Record(ctx context.Context, event string, actorID *int64, metadata map[string]any) {
	if l == nil {
		return
	}
	rec := &domain.Record{
		ActorID:   actorID,
		Event:     event,
		Metadata:  metadata,
		CreatedAt: l.now().UTC(),
	}
	if l.meta != nil {
		rec.IP, rec.RequestID = l.meta(ctx)
	}
	for _, s := range l.sinks {
		if err := s.Write(ctx, rec); err != nil {
			log.Printf("audit: failed to record %s: %v", event, err)
		}
	}
}

// RepositorySink persists records through the audit repository.
type RepositorySink struct {
	repo auditrepo.Repository
}

// NewRepositorySink returns a Sink backed by repo, or nil when repo is nil.
func NewRepositorySink(repo auditrepo.Repository) Sink {
	if repo == nil {
		return nil
	}
	return &RepositorySink{repo: repo}
}

func (s *RepositorySink) Write(ctx context.Context, r *domain.Record) error {
	cp := *r
	return s.repo.Append(ctx, &cp)
}

// ActorID returns a pointer to id for use as an audit actor, or nil for id <= 0.
func ActorID(id int64) *int64 {
	if id <= 0 {
		return nil
	}
	return &id
}

// Discard is a Recorder that drops every event.
var Discard Recorder = discard{}

type discard struct{}

func (discard) Record(context.Context, string, *int64, map[string]any) {}
