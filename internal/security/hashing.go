package security

import (
	"sync"
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

// MinPasswordLength is the minimum number of characters a password must have.
const MinPasswordLength = 8

// maxPasswordBytes is the bcrypt input limit; longer inputs are rejected rather than truncated.
const maxPasswordBytes = 72

// Password strength violations, reported verbatim to clients.
const (
	ViolationTooShort  = "must be at least 8 characters"
	ViolationTooLong   = "must be at most 72 bytes"
	ViolationNoUpper   = "must contain an uppercase letter"
	ViolationNoLower   = "must contain a lowercase letter"
	ViolationNoDigit   = "must contain a digit"
	ViolationNoSpecial = "must contain a special character"
)

// Hasher hashes and verifies passwords using bcrypt. Callers must not log or
// persist plaintext passwords.
type Hasher struct {
	Cost int

	dummyOnce sync.Once
	dummy     string
}

// NewHasher returns a Hasher with the given bcrypt cost (4–31). Cost 12 is the
// default for interactive login.
func NewHasher(cost int) *Hasher {
	if cost <= 0 {
		cost = 12
	}
	if cost < bcrypt.MinCost {
		cost = bcrypt.MinCost
	}
	if cost > bcrypt.MaxCost {
		cost = bcrypt.MaxCost
	}
	return &Hasher{Cost: cost}
}

// Hash produces a salted bcrypt digest of password suitable for storage.
func (h *Hasher) Hash(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), h.Cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Verify reports whether password matches digest. A malformed or empty digest
// yields false, never an error.
func (h *Hasher) Verify(password, digest string) bool {
	if digest == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(password)) == nil
}

// VerifyDummy spends the same work as Verify against a fixed digest. Used when
// the account does not exist so response timing does not reveal it.
func (h *Hasher) VerifyDummy(password string) {
	h.dummyOnce.Do(func() {
		b, err := bcrypt.GenerateFromPassword([]byte("transitwatch-dummy-password"), h.Cost)
		if err == nil {
			h.dummy = string(b)
		}
	})
	_ = h.Verify(password, h.dummy)
}

// StrengthResult lists every strength rule a candidate password breaks.
type StrengthResult struct {
	Valid      bool
	Violations []string
}

// ValidateStrength checks password against the strength rules and reports all
// violations at once.
func ValidateStrength(password string) StrengthResult {
	var violations []string
	if len([]rune(password)) < MinPasswordLength {
		violations = append(violations, ViolationTooShort)
	}
	if len(password) > maxPasswordBytes {
		violations = append(violations, ViolationTooLong)
	}
	var hasUpper, hasLower, hasDigit, hasSpecial bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			hasSpecial = true
		}
	}
	if !hasUpper {
		violations = append(violations, ViolationNoUpper)
	}
	if !hasLower {
		violations = append(violations, ViolationNoLower)
	}
	if !hasDigit {
		violations = append(violations, ViolationNoDigit)
	}
	if !hasSpecial {
		violations = append(violations, ViolationNoSpecial)
	}
	return StrengthResult{Valid: len(violations) == 0, Violations: violations}
}
