package repository

import (
	"context"

	"transitwatch/backend/internal/audit/domain"
)

// Repository persists audit records. There is deliberately no update or delete.
type Repository interface {
	Append(ctx context.Context, r *domain.Record) error
	ListRecent(ctx context.Context, limit int) ([]*domain.Record, error)
}
