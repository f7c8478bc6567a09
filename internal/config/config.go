// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvProduction is the APP_ENV value that switches cookies to Secure/Strict and
// forbids dev-only features.
const EnvProduction = "production"

// Config holds application configuration loaded from the environment.
type Config struct {
	// HTTPAddr is the address the HTTP API listens on (e.g. :8080).
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// GRPCAddr is the address of the gRPC health endpoint (e.g. :9090). Empty disables it.
	GRPCAddr string `mapstructure:"GRPC_ADDR"`
	// DatabaseURL is the Postgres DSN.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`

	// JWTIssuer is the iss claim set on every token and checked on verification.
	JWTIssuer string `mapstructure:"JWT_ISSUER"`
	// JWTAccessSecret signs access tokens (HS256).
	JWTAccessSecret string `mapstructure:"JWT_ACCESS_SECRET"`
	// JWTRefreshSecret signs refresh tokens; must differ from JWTAccessSecret.
	JWTRefreshSecret string `mapstructure:"JWT_REFRESH_SECRET"`
	// JWTResetSecret signs password-reset tokens. Falls back to JWTAccessSecret when empty.
	JWTResetSecret string `mapstructure:"JWT_RESET_SECRET"`
	// JWTAccessTTL is the access token lifetime (e.g. "1h").
	JWTAccessTTL string `mapstructure:"JWT_ACCESS_TTL"`
	// JWTRefreshTTL is the refresh token lifetime (e.g. "168h").
	JWTRefreshTTL string `mapstructure:"JWT_REFRESH_TTL"`
	// ResetTokenTTL is the password-reset token lifetime (e.g. "15m").
	ResetTokenTTL string `mapstructure:"RESET_TOKEN_TTL"`
	// BcryptCost is the bcrypt cost factor (4–31); default 12.
	BcryptCost int `mapstructure:"BCRYPT_COST"`

	CookieAccessName  string `mapstructure:"COOKIE_ACCESS_NAME"`
	CookieRefreshName string `mapstructure:"COOKIE_REFRESH_NAME"`
	CookieDomain      string `mapstructure:"COOKIE_DOMAIN"`
	// CookieSecure overrides the Secure attribute; empty means "secure in production".
	CookieSecure string `mapstructure:"COOKIE_SECURE"`
	// CookieSameSite is strict, lax or none; empty means strict in production, lax otherwise.
	CookieSameSite string `mapstructure:"COOKIE_SAMESITE"`

	// LockoutThreshold is the number of consecutive failed logins that locks an account.
	LockoutThreshold int `mapstructure:"LOCKOUT_THRESHOLD"`
	// LockoutDuration is how long a locked account stays locked (e.g. "15m").
	LockoutDuration string `mapstructure:"LOCKOUT_DURATION"`
	// RootAdminEmail identifies the root account, never subject to forced rotation.
	RootAdminEmail string `mapstructure:"ROOT_ADMIN_EMAIL"`
	// RotationPolicyPath is a Rego file replacing the built-in forced-rotation policy. Empty uses the default.
	RotationPolicyPath string `mapstructure:"ROTATION_POLICY_PATH"`

	// RedisAddr enables the shared Redis rate limiter; empty uses an in-process limiter.
	RedisAddr string `mapstructure:"REDIS_ADDR"`
	// LoginRateLimit is the number of login/forgot-password requests allowed per client per window.
	LoginRateLimit int `mapstructure:"LOGIN_RATE_LIMIT"`
	// LoginRateWindow is the rate limit window (e.g. "1m").
	LoginRateWindow string `mapstructure:"LOGIN_RATE_WINDOW"`

	// AuditLogPath is the append-only JSON lines audit file. Empty disables the file sink.
	AuditLogPath string `mapstructure:"AUDIT_LOG_PATH"`

	// OTelEndpoint is the OTLP gRPC collector endpoint (e.g. localhost:4317). Empty disables export.
	OTelEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	// OTelInsecure disables TLS to the collector.
	OTelInsecure bool `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`
	// OTelServiceName is the service.name resource attribute.
	OTelServiceName string `mapstructure:"OTEL_SERVICE_NAME"`

	// ResetNotifyURL is the webhook that delivers reset links (mail relay). Empty logs the link instead.
	ResetNotifyURL    string `mapstructure:"RESET_NOTIFY_URL"`
	ResetNotifyAPIKey string `mapstructure:"RESET_NOTIFY_API_KEY"`
	// ResetLinkBaseURL is the front-end page that consumes ?token=.
	ResetLinkBaseURL string `mapstructure:"RESET_LINK_BASE_URL"`
	// ResetTokenReturnToClient enables GET /dev/reset-token. Must not be true in production.
	ResetTokenReturnToClient bool `mapstructure:"RESET_TOKEN_RETURN_TO_CLIENT"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("GRPC_ADDR", ":9090")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("APP_ENV", "")
	v.SetDefault("JWT_ISSUER", "transitwatch-auth")
	v.SetDefault("JWT_ACCESS_SECRET", "")
	v.SetDefault("JWT_REFRESH_SECRET", "")
	v.SetDefault("JWT_RESET_SECRET", "")
	v.SetDefault("JWT_ACCESS_TTL", "1h")
	v.SetDefault("JWT_REFRESH_TTL", "168h") // 7d
	v.SetDefault("RESET_TOKEN_TTL", "15m")
	v.SetDefault("BCRYPT_COST", 12)
	v.SetDefault("COOKIE_ACCESS_NAME", "access_token")
	v.SetDefault("COOKIE_REFRESH_NAME", "refresh_token")
	v.SetDefault("COOKIE_DOMAIN", "")
	v.SetDefault("COOKIE_SECURE", "")
	v.SetDefault("COOKIE_SAMESITE", "")
	v.SetDefault("LOCKOUT_THRESHOLD", 5)
	v.SetDefault("LOCKOUT_DURATION", "15m")
	v.SetDefault("ROOT_ADMIN_EMAIL", "")
	v.SetDefault("ROTATION_POLICY_PATH", "")
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("LOGIN_RATE_LIMIT", 20)
	v.SetDefault("LOGIN_RATE_WINDOW", "1m")
	v.SetDefault("AUDIT_LOG_PATH", "audit.log")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)
	v.SetDefault("OTEL_SERVICE_NAME", "transitwatch-backend")
	v.SetDefault("RESET_NOTIFY_URL", "")
	v.SetDefault("RESET_NOTIFY_API_KEY", "")
	v.SetDefault("RESET_LINK_BASE_URL", "http://localhost:3000/reset-password")
	v.SetDefault("RESET_TOKEN_RETURN_TO_CLIENT", false)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.HTTPAddr == "" {
		return nil, errors.New("config: HTTP_ADDR must be set")
	}

	if cfg.ResetTokenReturnToClient && cfg.IsProduction() {
		return nil, errors.New("config: RESET_TOKEN_RETURN_TO_CLIENT must not be true when APP_ENV=production")
	}

	if cfg.IsProduction() {
		if cfg.JWTAccessSecret == "" || cfg.JWTRefreshSecret == "" {
			return nil, errors.New("config: JWT_ACCESS_SECRET and JWT_REFRESH_SECRET must be set in production")
		}
	}
	if cfg.JWTAccessSecret != "" && cfg.JWTAccessSecret == cfg.JWTRefreshSecret {
		return nil, errors.New("config: JWT_ACCESS_SECRET and JWT_REFRESH_SECRET must differ")
	}

	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = 12
	}
	if cfg.BcryptCost < 4 || cfg.BcryptCost > 31 {
		return nil, errors.New("config: BCRYPT_COST must be between 4 and 31")
	}

	if cfg.LockoutThreshold <= 0 {
		return nil, errors.New("config: LOCKOUT_THRESHOLD must be positive")
	}

	switch strings.ToLower(cfg.CookieSameSite) {
	case "", "strict", "lax", "none":
	default:
		return nil, errors.New("config: COOKIE_SAMESITE must be strict, lax or none")
	}

	return &cfg, nil
}

// IsProduction reports whether APP_ENV is production.
func (c *Config) IsProduction() bool {
	return c != nil && strings.EqualFold(c.Env, EnvProduction)
}

// AccessTTL parses JWTAccessTTL as a time.Duration. Returns 1h if unset or invalid.
func (c *Config) AccessTTL() time.Duration {
	return parseDuration(c.JWTAccessTTL, time.Hour)
}

// RefreshTTL parses JWTRefreshTTL as a time.Duration. Returns 168h if unset or invalid.
func (c *Config) RefreshTTL() time.Duration {
	return parseDuration(c.JWTRefreshTTL, 168*time.Hour)
}

// ResetTTL parses ResetTokenTTL as a time.Duration. Returns 15m if unset or invalid.
func (c *Config) ResetTTL() time.Duration {
	return parseDuration(c.ResetTokenTTL, 15*time.Minute)
}

// LockoutWindow parses LockoutDuration. Returns 15m if unset or invalid.
func (c *Config) LockoutWindow() time.Duration {
	return parseDuration(c.LockoutDuration, 15*time.Minute)
}

// RateWindow parses LoginRateWindow. Returns 1m if unset or invalid.
func (c *Config) RateWindow() time.Duration {
	return parseDuration(c.LoginRateWindow, time.Minute)
}

// ResetSecret returns the reset signing secret, falling back to the access secret.
func (c *Config) ResetSecret() string {
	if c.JWTResetSecret != "" {
		return c.JWTResetSecret
	}
	return c.JWTAccessSecret
}

// SecureCookies reports whether auth cookies carry the Secure attribute.
func (c *Config) SecureCookies() bool {
	switch strings.ToLower(strings.TrimSpace(c.CookieSecure)) {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	}
	return c.IsProduction()
}

// SameSite returns the SameSite mode for auth cookies.
func (c *Config) SameSite() http.SameSite {
	switch strings.ToLower(c.CookieSameSite) {
	case "strict":
		return http.SameSiteStrictMode
	case "lax":
		return http.SameSiteLaxMode
	case "none":
		return http.SameSiteNoneMode
	}
	if c.IsProduction() {
		return http.SameSiteStrictMode
	}
	return http.SameSiteLaxMode
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
