package domain

import (
	"errors"
	"strings"
	"time"
)

// Primary role labels. The protected administrator role is RoleAdmin.
const (
	RoleAdmin    = "admin"
	RoleOperator = "operator"
	RoleCitizen  = "citizen"
)

// Account is a user who can authenticate. Accounts are soft-deleted, never removed.
type Account struct {
	ID           int64
	Email        string
	Name         string
	PasswordHash string
	// Role is the primary role label, recomputed from memberships after each grant or revoke.
	Role      string
	Active    bool
	DeletedAt *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time

	LastLoginAt       *time.Time
	PasswordChangedAt *time.Time
	// MustChangePassword is set for provisioned accounts and cleared by a password change.
	// The login-time decision is computed by the rotation policy and never stored here.
	MustChangePassword bool
	// RotationExempt excludes the account from forced rotation.
	RotationExempt bool

	FailedLoginAttempts int
	LockedUntil         *time.Time
}

// IsLocked reports whether the account has an unexpired lock at now.
func (a *Account) IsLocked(now time.Time) bool {
	return a.LockedUntil != nil && a.LockedUntil.After(now)
}

// IsDeleted reports whether the account has been soft-deleted.
func (a *Account) IsDeleted() bool {
	return a.DeletedAt != nil
}

// CanAuthenticate reports whether the account may log in at all (ignoring lockout).
func (a *Account) CanAuthenticate() bool {
	return a.Active && !a.IsDeleted()
}

// NormalizeEmail lower-cases and trims an email so lookups are case-insensitive.
func NormalizeEmail(email string) string {
	return strings.TrimSpace(strings.ToLower(email))
}

// Validate validates the account for persistence. Returns an error describing the first validation failure.
func (a *Account) Validate() error {
	if a.Email == "" {
		return errors.New("email is required")
	}
	if a.PasswordHash == "" {
		return errors.New("password hash is required")
	}
	if a.Role == "" {
		a.Role = RoleCitizen
	}
	return nil
}

// LockoutPolicy is the consecutive-failure threshold and lock duration.
type LockoutPolicy struct {
	Threshold int
	Duration  time.Duration
}

// LoginFailure is the outcome of recording one failed login attempt.
type LoginFailure struct {
	// Attempts is the consecutive failure count after this attempt.
	Attempts int
	// Locked is true when the account is locked after this attempt.
	Locked bool
	// LockedNow is true when this attempt crossed the threshold.
	LockedNow   bool
	LockedUntil *time.Time
}

// ApplyFailure computes the counters after one failed attempt at now, starting from
// the freshly read attempts and lock expiry. An unexpired lock is left untouched;
// an expired one restarts the count.
func ApplyFailure(attempts int, lockedUntil *time.Time, p LockoutPolicy, now time.Time) LoginFailure {
	if lockedUntil != nil && lockedUntil.After(now) {
		return LoginFailure{Attempts: attempts, Locked: true, LockedUntil: lockedUntil}
	}
	if lockedUntil != nil {
		attempts = 0
	}
	attempts++
	out := LoginFailure{Attempts: attempts}
	if p.Threshold > 0 && attempts >= p.Threshold {
		until := now.Add(p.Duration)
		out.Locked = true
		out.LockedNow = true
		out.LockedUntil = &until
	}
	return out
}
