package repository

import (
	"context"
	"errors"
	"time"

	"transitwatch/backend/internal/account/domain"
)

var (
	// ErrEmailTaken is returned by Create when another account already uses the email.
	ErrEmailTaken = errors.New("email already registered")
	// ErrNotFound is returned by mutations when the account does not exist or is deleted.
	ErrNotFound = errors.New("account not found")
	// ErrLocked is returned by RecordLoginSuccess when the account holds an unexpired lock.
	ErrLocked = errors.New("account locked")
)

// Repository defines persistence for accounts and their login-security state.
type Repository interface {
	// GetByID returns the account, or nil if absent or soft-deleted.
	GetByID(ctx context.Context, id int64) (*domain.Account, error)
	// GetByEmail returns the account matching email case-insensitively, or nil if absent or soft-deleted.
	GetByEmail(ctx context.Context, email string) (*domain.Account, error)
	// Create inserts the account and returns its id.
	Create(ctx context.Context, a *domain.Account) (int64, error)
	// RecordLoginFailure atomically counts one failed attempt against a fresh read of the
	// counters and locks the account once the threshold is reached.
	RecordLoginFailure(ctx context.Context, id int64, policy domain.LockoutPolicy, now time.Time) (domain.LoginFailure, error)
	// RecordLoginSuccess resets the failure counter and lock and stamps last login. It fails
	// with ErrLocked when the account is locked at now, checked against a fresh read.
	RecordLoginSuccess(ctx context.Context, id int64, now time.Time) error
	// UpdatePassword stores a new digest, stamps the change time and clears the forced-change
	// flag and any lockout.
	UpdatePassword(ctx context.Context, id int64, passwordHash string, now time.Time) error
	// Discard hard-deletes an account that never logged in and holds no role.
	Discard(ctx context.Context, id int64) error
}
