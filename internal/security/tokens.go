package security

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrTokenExpired is returned when a token's exp is in the past.
	ErrTokenExpired = errors.New("token expired")
	// ErrInvalidSignature is returned when a token was not signed with the expected secret or issuer.
	ErrInvalidSignature = errors.New("invalid token signature")
	// ErrTokenMalformed is returned when a token cannot be parsed or lacks required claims.
	ErrTokenMalformed = errors.New("malformed token")
	// ErrMissingSecret is returned by NewTokenProvider when a signing secret is empty.
	ErrMissingSecret = errors.New("token secret must not be empty")
)

// PurposePasswordReset tags reset tokens so they are never accepted as session tokens.
const PurposePasswordReset = "password_reset"

// Identity is the claim set carried by access and refresh tokens.
type Identity struct {
	AccountID          int64  `json:"id"`
	Email              string `json:"email"`
	Role               string `json:"role"`
	MustChangePassword bool   `json:"mustChangePassword"`
}

// Claims holds JWT claims for access and refresh tokens.
type Claims struct {
	Identity
	jwt.RegisteredClaims
}

// ResetClaims holds JWT claims for a password-reset token. Fingerprint binds the
// token to the password digest current at issue time.
type ResetClaims struct {
	jwt.RegisteredClaims
	Purpose     string `json:"purpose"`
	Fingerprint string `json:"pwd_fp"`
}

// AccountID returns the numeric subject of the reset token.
func (c *ResetClaims) AccountID() (int64, error) {
	return strconv.ParseInt(c.Subject, 10, 64)
}

// TokenPair is an access token and a refresh token issued together.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// TokenConfig configures a TokenProvider. Each token kind has its own secret.
type TokenConfig struct {
	Issuer        string
	AccessSecret  string
	RefreshSecret string
	ResetSecret   string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	ResetTTL      time.Duration
}

// TokenProvider issues and verifies HS256 access, refresh and password-reset tokens.
// Verification is pure; it never touches storage.
type TokenProvider struct {
	issuer        string
	accessSecret  []byte
	refreshSecret []byte
	resetSecret   []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	resetTTL      time.Duration
	now           func() time.Time
}

// NewTokenProvider returns a TokenProvider. The reset secret falls back to the access secret.
func NewTokenProvider(cfg TokenConfig) (*TokenProvider, error) {
	if cfg.AccessSecret == "" || cfg.RefreshSecret == "" {
		return nil, ErrMissingSecret
	}
	reset := cfg.ResetSecret
	if reset == "" {
		reset = cfg.AccessSecret
	}
	return &TokenProvider{
		issuer:        cfg.Issuer,
		accessSecret:  []byte(cfg.AccessSecret),
		refreshSecret: []byte(cfg.RefreshSecret),
		resetSecret:   []byte(reset),
		accessTTL:     cfg.AccessTTL,
		refreshTTL:    cfg.RefreshTTL,
		resetTTL:      cfg.ResetTTL,
		now:           time.Now,
	}, nil
}

// AccessTTL returns the access token lifetime (cookie max-age).
func (p *TokenProvider) AccessTTL() time.Duration { return p.accessTTL }

// RefreshTTL returns the refresh token lifetime (cookie max-age).
func (p *TokenProvider) RefreshTTL() time.Duration { return p.refreshTTL }

// IssueAccess issues a short-lived access token for id.
func (p *TokenProvider) IssueAccess(id Identity) (string, time.Time, error) {
	return p.issue(id, p.accessSecret, p.accessTTL)
}

// IssueRefresh issues a long-lived refresh token for id.
func (p *TokenProvider) IssueRefresh(id Identity) (string, time.Time, error) {
	return p.issue(id, p.refreshSecret, p.refreshTTL)
}

// IssuePair issues an access and a refresh token carrying the same identity claims.
func (p *TokenProvider) IssuePair(id Identity) (TokenPair, error) {
	access, accessExp, err := p.IssueAccess(id)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, refreshExp, err := p.IssueRefresh(id)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

func (p *TokenProvider) issue(id Identity, secret []byte, ttl time.Duration) (string, time.Time, error) {
	jti, err := generateJTI()
	if err != nil {
		return "", time.Time{}, err
	}
	now := p.now().UTC()
	expiresAt := now.Add(ttl)
	claims := Claims{
		Identity: id,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   strconv.FormatInt(id.AccountID, 10),
			Issuer:    p.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	return token, expiresAt, err
}

// VerifyAccess checks signature, expiry and issuer of an access token and returns its claims.
func (p *TokenProvider) VerifyAccess(token string) (*Claims, error) {
	return p.verify(token, p.accessSecret)
}

// VerifyRefresh checks signature, expiry and issuer of a refresh token and returns its claims.
func (p *TokenProvider) VerifyRefresh(token string) (*Claims, error) {
	return p.verify(token, p.refreshSecret)
}

func (p *TokenProvider) verify(tokenString string, secret []byte) (*Claims, error) {
	claims := &Claims{}
	if err := p.parse(tokenString, claims, secret); err != nil {
		return nil, err
	}
	if claims.AccountID <= 0 {
		return nil, ErrTokenMalformed
	}
	return claims, nil
}

// IssuePasswordReset issues a reset token for accountID bound to currentDigest.
func (p *TokenProvider) IssuePasswordReset(accountID int64, currentDigest string) (string, time.Time, error) {
	now := p.now().UTC()
	expiresAt := now.Add(p.resetTTL)
	claims := ResetClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(accountID, 10),
			Issuer:    p.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Purpose:     PurposePasswordReset,
		Fingerprint: Fingerprint(currentDigest),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.resetSecret)
	return token, expiresAt, err
}

// VerifyPasswordReset checks signature, expiry, issuer and purpose of a reset token.
// The caller must still compare the fingerprint against the current digest.
func (p *TokenProvider) VerifyPasswordReset(token string) (*ResetClaims, error) {
	claims := &ResetClaims{}
	if err := p.parse(token, claims, p.resetSecret); err != nil {
		return nil, err
	}
	if claims.Purpose != PurposePasswordReset || claims.Fingerprint == "" {
		return nil, ErrTokenMalformed
	}
	if _, err := claims.AccountID(); err != nil {
		return nil, ErrTokenMalformed
	}
	return claims, nil
}

// ResetFingerprintMatches reports whether claims were issued against currentDigest.
func ResetFingerprintMatches(claims *ResetClaims, currentDigest string) bool {
	if claims == nil {
		return false
	}
	return FingerprintMatches(currentDigest, claims.Fingerprint)
}

func (p *TokenProvider) parse(tokenString string, claims jwt.Claims, secret []byte) error {
	if tokenString == "" {
		return ErrTokenMalformed
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(p.now),
	}
	if p.issuer != "" {
		opts = append(opts, jwt.WithIssuer(p.issuer))
	}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return secret, nil
	}, opts...)
	return mapJWTError(err)
}

func mapJWTError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrTokenExpired
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return ErrInvalidSignature
	default:
		return ErrTokenMalformed
	}
}

func generateJTI() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
