package repository

import (
	"context"
	"errors"
	"time"

	"transitwatch/backend/internal/role/domain"
)

var (
	// ErrNotFound is returned when a role or account does not exist (or is deleted).
	ErrNotFound = errors.New("not found")
	// ErrRoleNameTaken is returned by RenameRole when another role already has the name.
	ErrRoleNameTaken = errors.New("role name already in use")
)

// Store serialises role mutations and answers membership questions.
type Store interface {
	// WithRoleLock runs fn while holding the global role-mutation lock. All of fn's
	// reads and writes commit together or not at all; the lock is released either way.
	WithRoleLock(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	// IsAdmin reports whether the active account holds the protected role.
	IsAdmin(ctx context.Context, accountID int64) (bool, error)
	// ListRoleNames returns the names of the account's active roles, sorted.
	ListRoleNames(ctx context.Context, accountID int64) ([]string, error)
	// FindRole returns the active role for ref, or nil, without taking the lock.
	FindRole(ctx context.Context, ref domain.RoleRef) (*domain.Role, error)
}

// Tx is the view of the store available inside WithRoleLock.
type Tx interface {
	// ResolveRole returns the active role for ref, or nil.
	ResolveRole(ctx context.Context, ref domain.RoleRef) (*domain.Role, error)
	// AccountExists reports whether a non-deleted account has id.
	AccountExists(ctx context.Context, accountID int64) (bool, error)
	HasRole(ctx context.Context, accountID, roleID int64) (bool, error)
	// CountHolders counts active, non-deleted accounts holding roleID, the same accounts
	// IsAdmin accepts.
	CountHolders(ctx context.Context, roleID int64) (int64, error)
	// ListHolders returns the ids of non-deleted accounts holding roleID.
	ListHolders(ctx context.Context, roleID int64) ([]int64, error)
	// Grant inserts the membership; an existing one is left as is.
	Grant(ctx context.Context, accountID, roleID int64) error
	Revoke(ctx context.Context, accountID, roleID int64) error
	ListRoleNames(ctx context.Context, accountID int64) ([]string, error)
	SetPrimaryRole(ctx context.Context, accountID int64, role string) error
	SoftDeleteAccount(ctx context.Context, accountID int64, now time.Time) error
	RenameRole(ctx context.Context, roleID int64, name string) error
	SoftDeleteRole(ctx context.Context, roleID int64, now time.Time) error
}
