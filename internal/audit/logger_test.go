package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"transitwatch/backend/internal/audit/domain"
)

type mockSink struct {
	mu      sync.Mutex
	records []*domain.Record
	err     error
}

func (m *mockSink) Write(_ context.Context, r *domain.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.records = append(m.records, r)
	return nil
}

type mockAuditRepo struct {
	appended []*domain.Record
	err      error
}

func (m *mockAuditRepo) Append(_ context.Context, r *domain.Record) error {
	if m.err != nil {
		return m.err
	}
	r.ID = int64(len(m.appended) + 1)
	m.appended = append(m.appended, r)
	return nil
}

func (m *mockAuditRepo) ListRecent(context.Context, int) ([]*domain.Record, error) {
	return m.appended, nil
}

func TestLogger_Record_FansOut(t *testing.T) {
	a, b := &mockSink{}, &mockSink{}
	meta := func(context.Context) (string, string) { return "192.168.1.1", "req-1" }
	logger := NewLogger(meta, a, nil, b)

	logger.Record(context.Background(), domain.EventLoginSuccess, ActorID(7), map[string]any{"email": "a@b.c"})

	for i, s := range []*mockSink{a, b} {
		if len(s.records) != 1 {
			t.Fatalf("sink %d: expected 1 record, got %d", i, len(s.records))
		}
		rec := s.records[0]
		if rec.Event != domain.EventLoginSuccess || rec.ActorID == nil || *rec.ActorID != 7 {
			t.Errorf("sink %d: record = %+v", i, rec)
		}
		if rec.IP != "192.168.1.1" || rec.RequestID != "req-1" {
			t.Errorf("sink %d: meta = %q/%q", i, rec.IP, rec.RequestID)
		}
		if rec.CreatedAt.IsZero() {
			t.Errorf("sink %d: CreatedAt not set", i)
		}
	}
}

func TestLogger_Record_SinkFailureIsSwallowed(t *testing.T) {
	failing := &mockSink{err: errors.New("disk full")}
	ok := &mockSink{}
	logger := NewLogger(nil, failing, ok)

	logger.Record(context.Background(), domain.EventLogout, nil, nil)

	if len(ok.records) != 1 {
		t.Fatalf("healthy sink should still receive the record, got %d", len(ok.records))
	}
	if ok.records[0].ActorID != nil {
		t.Error("anonymous event should have nil actor")
	}
}

func TestLogger_NilIsNoop(t *testing.T) {
	var logger *Logger
	logger.Record(context.Background(), domain.EventLogout, nil, nil)
}

func TestRepositorySink(t *testing.T) {
	if NewRepositorySink(nil) != nil {
		t.Error("NewRepositorySink(nil) should return nil")
	}
	repo := &mockAuditRepo{}
	logger := NewLogger(nil, NewRepositorySink(repo))
	logger.Record(context.Background(), domain.EventRoleGranted, ActorID(1), map[string]any{"role": "operator"})
	if len(repo.appended) != 1 || repo.appended[0].Event != domain.EventRoleGranted {
		t.Fatalf("appended = %+v", repo.appended)
	}

	repo.err = errors.New("db down")
	logger.Record(context.Background(), domain.EventRoleRevoked, ActorID(1), nil)
}

func TestActorID(t *testing.T) {
	if ActorID(0) != nil || ActorID(-1) != nil {
		t.Error("non-positive ids should map to nil")
	}
	if p := ActorID(3); p == nil || *p != 3 {
		t.Errorf("ActorID(3) = %v", p)
	}
}

func TestFileSink_AppendsJSONLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	sink, err := OpenFileSink(path)
	if err != nil {
		t.Fatalf("OpenFileSink: %v", err)
	}
	logger := NewLogger(nil, sink)
	logger.Record(context.Background(), domain.EventLoginFailure, nil, map[string]any{"email": "x@y.z"})
	logger.Record(context.Background(), domain.EventAccountLocked, ActorID(4), nil)
	if err := sink.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	sink, err = OpenFileSink(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	NewLogger(nil, sink).Record(context.Background(), domain.EventLogout, ActorID(4), nil)
	sink.Close()

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer f.Close()
	var events []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var rec domain.Record
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			t.Fatalf("line %q: %v", sc.Text(), err)
		}
		events = append(events, rec.Event)
	}
	want := []string{domain.EventLoginFailure, domain.EventAccountLocked, domain.EventLogout}
	if len(events) != len(want) {
		t.Fatalf("events = %v, want %v", events, want)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Errorf("events[%d] = %q, want %q", i, events[i], want[i])
		}
	}
}
