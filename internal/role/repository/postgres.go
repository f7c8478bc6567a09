package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"transitwatch/backend/internal/role/domain"
)

// roleMutationLockKey is the pg_advisory_xact_lock key shared by every role mutation.
const roleMutationLockKey int64 = 0x74776f6c65 // "twole"

const pgErrUniqueViolation = "23505"

var (
	_ Store = (*PostgresStore)(nil)
	_ Tx    = (*postgresTx)(nil)
)

// PostgresStore implements Store with a transaction-scoped advisory lock.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore returns a role store backed by db.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// WithRoleLock opens a transaction, takes the advisory lock, runs fn and commits.
// Any error from fn rolls back, which also releases the lock.
func (s *PostgresStore) WithRoleLock(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `select pg_advisory_xact_lock($1)`, roleMutationLockKey); err != nil {
		return err
	}
	if err := fn(ctx, &postgresTx{tx: tx}); err != nil {
		return err
	}
	return tx.Commit()
}

// IsAdmin reports whether the account holds the protected role.
func (s *PostgresStore) IsAdmin(ctx context.Context, accountID int64) (bool, error) {
	var ok bool
	err := s.db.QueryRowContext(ctx, `
		select exists (
			select 1 from account_roles ar
			join roles r on r.id = ar.role_id
			join accounts a on a.id = ar.account_id
			where ar.account_id = $1 and r.protected and r.deleted_at is null
				and a.deleted_at is null and a.active
		)
	`, accountID).Scan(&ok)
	return ok, err
}

// ListRoleNames returns the account's role names.
func (s *PostgresStore) ListRoleNames(ctx context.Context, accountID int64) ([]string, error) {
	return listRoleNames(ctx, s.db, accountID)
}

// FindRole returns the active role for ref, or nil. It does not take the role lock.
func (s *PostgresStore) FindRole(ctx context.Context, ref domain.RoleRef) (*domain.Role, error) {
	return resolveRole(ctx, s.db, ref)
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

type rowQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func listRoleNames(ctx context.Context, q querier, accountID int64) ([]string, error) {
	rows, err := q.QueryContext(ctx, `
		select r.name from account_roles ar
		join roles r on r.id = ar.role_id
		where ar.account_id = $1 and r.deleted_at is null
		order by r.name
	`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

type postgresTx struct {
	tx *sql.Tx
}

func (t *postgresTx) ResolveRole(ctx context.Context, ref domain.RoleRef) (*domain.Role, error) {
	return resolveRole(ctx, t.tx, ref)
}

func resolveRole(ctx context.Context, q rowQuerier, ref domain.RoleRef) (*domain.Role, error) {
	var row *sql.Row
	if id, ok := ref.ID(); ok {
		row = q.QueryRowContext(ctx, `
			select id, name, protected, active, created_at from roles
			where id = $1 and deleted_at is null`, id)
	} else if name, ok := ref.Name(); ok {
		row = q.QueryRowContext(ctx, `
			select id, name, protected, active, created_at from roles
			where lower(name) = $1 and deleted_at is null`, strings.ToLower(name))
	} else {
		return nil, nil
	}
	var r domain.Role
	err := row.Scan(&r.ID, &r.Name, &r.Protected, &r.Active, &r.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (t *postgresTx) AccountExists(ctx context.Context, accountID int64) (bool, error) {
	var ok bool
	err := t.tx.QueryRowContext(ctx, `
		select exists (select 1 from accounts where id = $1 and deleted_at is null)
	`, accountID).Scan(&ok)
	return ok, err
}

func (t *postgresTx) HasRole(ctx context.Context, accountID, roleID int64) (bool, error) {
	var ok bool
	err := t.tx.QueryRowContext(ctx, `
		select exists (select 1 from account_roles where account_id = $1 and role_id = $2)
	`, accountID, roleID).Scan(&ok)
	return ok, err
}

func (t *postgresTx) CountHolders(ctx context.Context, roleID int64) (int64, error) {
	var n int64
	err := t.tx.QueryRowContext(ctx, `
		select count(*) from account_roles ar
		join accounts a on a.id = ar.account_id
		where ar.role_id = $1 and a.deleted_at is null and a.active
	`, roleID).Scan(&n)
	return n, err
}

func (t *postgresTx) ListHolders(ctx context.Context, roleID int64) ([]int64, error) {
	rows, err := t.tx.QueryContext(ctx, `
		select ar.account_id from account_roles ar
		join accounts a on a.id = ar.account_id
		where ar.role_id = $1 and a.deleted_at is null
		order by ar.account_id
	`, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (t *postgresTx) Grant(ctx context.Context, accountID, roleID int64) error {
	_, err := t.tx.ExecContext(ctx, `
		insert into account_roles (account_id, role_id) values ($1, $2)
		on conflict (account_id, role_id) do nothing
	`, accountID, roleID)
	return err
}

func (t *postgresTx) Revoke(ctx context.Context, accountID, roleID int64) error {
	_, err := t.tx.ExecContext(ctx, `
		delete from account_roles where account_id = $1 and role_id = $2
	`, accountID, roleID)
	return err
}

func (t *postgresTx) ListRoleNames(ctx context.Context, accountID int64) ([]string, error) {
	return listRoleNames(ctx, t.tx, accountID)
}

func (t *postgresTx) SetPrimaryRole(ctx context.Context, accountID int64, role string) error {
	_, err := t.tx.ExecContext(ctx, `
		update accounts set role = $2, updated_at = now() where id = $1
	`, accountID, role)
	return err
}

func (t *postgresTx) SoftDeleteAccount(ctx context.Context, accountID int64, now time.Time) error {
	res, err := t.tx.ExecContext(ctx, `
		update accounts set deleted_at = $2, active = false, updated_at = $2
		where id = $1 and deleted_at is null
	`, accountID, now)
	return expectOne(res, err)
}

func (t *postgresTx) RenameRole(ctx context.Context, roleID int64, name string) error {
	res, err := t.tx.ExecContext(ctx, `
		update roles set name = $2 where id = $1 and deleted_at is null and not protected
	`, roleID, name)
	if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
		return ErrRoleNameTaken
	}
	return expectOne(res, err)
}

func (t *postgresTx) SoftDeleteRole(ctx context.Context, roleID int64, now time.Time) error {
	res, err := t.tx.ExecContext(ctx, `
		update roles set deleted_at = $2, active = false
		where id = $1 and deleted_at is null and not protected
	`, roleID, now)
	return expectOne(res, err)
}

func expectOne(res sql.Result, err error) error {
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

func maybePgError(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr, true
	}
	return nil, false
}
