package security

import "time"

// NewTestTokenProvider returns a TokenProvider with fixed test secrets.
// For unit tests only. Callers must not use in production.
func NewTestTokenProvider() *TokenProvider {
	p, _ := NewTokenProvider(TokenConfig{
		Issuer:        "test-issuer",
		AccessSecret:  "test-access-secret",
		RefreshSecret: "test-refresh-secret",
		ResetSecret:   "test-reset-secret",
		AccessTTL:     time.Hour,
		RefreshTTL:    7 * 24 * time.Hour,
		ResetTTL:      15 * time.Minute,
	})
	return p
}

// WithClock returns a copy of p that reads time from now. For tests that need
// to issue or verify tokens at a fixed instant.
func (p *TokenProvider) WithClock(now func() time.Time) *TokenProvider {
	cp := *p
	cp.now = now
	return &cp
}
