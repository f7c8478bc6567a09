package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"transitwatch/backend/internal/account/domain"
)

const pgErrUniqueViolation = "23505"

const accountColumns = `id, email, name, password_hash, role, active, deleted_at, created_at, updated_at,
	last_login_at, password_changed_at, must_change_password, rotation_exempt,
	failed_login_attempts, locked_until`

var _ Repository = (*PostgresRepository)(nil)

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns an account repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// GetByID returns the account for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id int64) (*domain.Account, error) {
	row := r.db.QueryRowContext(ctx, `select `+accountColumns+`
		from accounts where id = $1 and deleted_at is null`, id)
	return scanAccount(row)
}

// GetByEmail returns the account with the given email, or nil if not found.
func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*domain.Account, error) {
	row := r.db.QueryRowContext(ctx, `select `+accountColumns+`
		from accounts where lower(email) = $1 and deleted_at is null`, domain.NormalizeEmail(email))
	return scanAccount(row)
}

// Create persists a new account. The email is stored normalised.
func (r *PostgresRepository) Create(ctx context.Context, a *domain.Account) (int64, error) {
	if err := a.Validate(); err != nil {
		return 0, err
	}
	var id int64
	err := r.db.QueryRowContext(ctx, `
		insert into accounts (email, name, password_hash, role, active, must_change_password, rotation_exempt)
		values ($1, $2, $3, $4, $5, $6, $7)
		returning id
	`, domain.NormalizeEmail(a.Email), a.Name, a.PasswordHash, a.Role, a.Active, a.MustChangePassword, a.RotationExempt).Scan(&id)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return 0, ErrEmailTaken
		}
		return 0, err
	}
	return id, nil
}

// RecordLoginFailure locks the account row, applies one failure to the values just
// read, and writes them back in the same transaction.
func (r *PostgresRepository) RecordLoginFailure(ctx context.Context, id int64, policy domain.LockoutPolicy, now time.Time) (domain.LoginFailure, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.LoginFailure{}, err
	}
	defer func() { _ = tx.Rollback() }()

	var (
		attempts    int
		lockedUntil sql.NullTime
	)
	err = tx.QueryRowContext(ctx, `
		select failed_login_attempts, locked_until
		from accounts where id = $1 and deleted_at is null
		for update
	`, id).Scan(&attempts, &lockedUntil)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.LoginFailure{}, ErrNotFound
	}
	if err != nil {
		return domain.LoginFailure{}, err
	}

	res := domain.ApplyFailure(attempts, timePtr(lockedUntil), policy, now)
	if res.Locked && !res.LockedNow {
		return res, tx.Commit()
	}
	if _, err := tx.ExecContext(ctx, `
		update accounts set failed_login_attempts = $2, locked_until = $3, updated_at = $4
		where id = $1
	`, id, res.Attempts, nullTime(res.LockedUntil), now); err != nil {
		return domain.LoginFailure{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.LoginFailure{}, err
	}
	return res, nil
}

// RecordLoginSuccess re-reads the lock under a row lock, so a lock set by a concurrent
// failed attempt after the caller's read is honoured, then clears the failure counter and
// lock expiry and stamps the login.
func (r *PostgresRepository) RecordLoginSuccess(ctx context.Context, id int64, now time.Time) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var lockedUntil sql.NullTime
	err = tx.QueryRowContext(ctx, `
		select locked_until from accounts where id = $1 and deleted_at is null
		for update
	`, id).Scan(&lockedUntil)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if lockedUntil.Valid && lockedUntil.Time.After(now) {
		return ErrLocked
	}
	if _, err := tx.ExecContext(ctx, `
		update accounts
		set failed_login_attempts = 0, locked_until = null, last_login_at = $2, updated_at = $2
		where id = $1
	`, id, now); err != nil {
		return err
	}
	return tx.Commit()
}

// UpdatePassword replaces the digest, clears the forced-change flag and any lockout.
func (r *PostgresRepository) UpdatePassword(ctx context.Context, id int64, passwordHash string, now time.Time) error {
	return r.execOne(ctx, `
		update accounts
		set password_hash = $2, password_changed_at = $3, must_change_password = false,
			failed_login_attempts = 0, locked_until = null, updated_at = $3
		where id = $1 and deleted_at is null
	`, id, passwordHash, now)
}

// Discard removes an account that has never logged in and holds no role.
func (r *PostgresRepository) Discard(ctx context.Context, id int64) error {
	return r.execOne(ctx, `
		delete from accounts
		where id = $1 and last_login_at is null
			and not exists (select 1 from account_roles where account_id = $1)
	`, id)
}

func (r *PostgresRepository) execOne(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanAccount(row *sql.Row) (*domain.Account, error) {
	var (
		a                                             domain.Account
		deletedAt, lastLogin, pwdChanged, lockedUntil sql.NullTime
	)
	err := row.Scan(&a.ID, &a.Email, &a.Name, &a.PasswordHash, &a.Role, &a.Active, &deletedAt,
		&a.CreatedAt, &a.UpdatedAt, &lastLogin, &pwdChanged, &a.MustChangePassword, &a.RotationExempt,
		&a.FailedLoginAttempts, &lockedUntil)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	a.DeletedAt = timePtr(deletedAt)
	a.LastLoginAt = timePtr(lastLogin)
	a.PasswordChangedAt = timePtr(pwdChanged)
	a.LockedUntil = timePtr(lockedUntil)
	return &a, nil
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func maybePgError(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr, true
	}
	return nil, false
}
