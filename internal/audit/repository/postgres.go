package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"transitwatch/backend/internal/audit/domain"
)

const maxListLimit = 500

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns an audit repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Append inserts r and sets its ID.
func (r *PostgresRepository) Append(ctx context.Context, rec *domain.Record) error {
	meta := []byte("{}")
	if len(rec.Metadata) > 0 {
		b, err := json.Marshal(rec.Metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata: %w", err)
		}
		meta = b
	}
	var actor sql.NullInt64
	if rec.ActorID != nil {
		actor = sql.NullInt64{Int64: *rec.ActorID, Valid: true}
	}
	return r.db.QueryRowContext(ctx, `
		insert into audit_records (actor_id, event, metadata, ip, request_id, created_at)
		values ($1, $2, $3, $4, $5, $6)
		returning id
	`, actor, rec.Event, meta, rec.IP, rec.RequestID, rec.CreatedAt).Scan(&rec.ID)
}

// ListRecent returns up to limit records, newest first.
func (r *PostgresRepository) ListRecent(ctx context.Context, limit int) ([]*domain.Record, error) {
	if limit <= 0 || limit > maxListLimit {
		limit = maxListLimit
	}
	rows, err := r.db.QueryContext(ctx, `
		select id, actor_id, event, metadata, ip, request_id, created_at
		from audit_records
		order by created_at desc, id desc
		limit $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Record
	for rows.Next() {
		var (
			rec   domain.Record
			actor sql.NullInt64
			meta  []byte
		)
		if err := rows.Scan(&rec.ID, &actor, &rec.Event, &meta, &rec.IP, &rec.RequestID, &rec.CreatedAt); err != nil {
			return nil, err
		}
		if actor.Valid {
			v := actor.Int64
			rec.ActorID = &v
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &rec.Metadata); err != nil {
				return nil, fmt.Errorf("decode metadata: %w", err)
			}
		}
		out = append(out, &rec)
	}
	return out, rows.Err()
}
