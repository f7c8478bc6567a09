package audit

import (
	"context"
	"encoding/json"
	"os"
	"sync"

	"transitwatch/backend/internal/audit/domain"
)

// FileSink appends one JSON object per line to a file opened O_APPEND.
// Existing lines are never rewritten.
type FileSink struct {
	mu sync.Mutex
	f  *os.File
}

// OpenFileSink opens (creating if needed) path for appending.
func OpenFileSink(path string) (*FileSink, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}
	return &FileSink{f: f}, nil
}

func (s *FileSink) Write(_ context.Context, r *domain.Record) error {
	line, err := json.Marshal(r)
	if err != nil {
		return err
	}
	line = append(line, '\n')
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.f.Write(line)
	return err
}

// Close closes the underlying file.
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.f.Close()
}
