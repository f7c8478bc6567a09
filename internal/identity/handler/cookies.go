package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"transitwatch/backend/internal/security"
)

// CookieConfig names and scopes the access and refresh cookies. Both are HttpOnly.
type CookieConfig struct {
	AccessName  string
	RefreshName string
	Domain      string
	Secure      bool
	SameSite    http.SameSite
}

func (cfg CookieConfig) set(c *gin.Context, pair security.TokenPair, now time.Time) {
	c.SetSameSite(cfg.SameSite)
	c.SetCookie(cfg.AccessName, pair.AccessToken, maxAge(pair.AccessExpiresAt, now), "/", cfg.Domain, cfg.Secure, true)
	c.SetCookie(cfg.RefreshName, pair.RefreshToken, maxAge(pair.RefreshExpiresAt, now), "/", cfg.Domain, cfg.Secure, true)
}

func (cfg CookieConfig) clear(c *gin.Context) {
	c.SetSameSite(cfg.SameSite)
	c.SetCookie(cfg.AccessName, "", -1, "/", cfg.Domain, cfg.Secure, true)
	c.SetCookie(cfg.RefreshName, "", -1, "/", cfg.Domain, cfg.Secure, true)
}

func maxAge(exp, now time.Time) int {
	s := int(exp.Sub(now).Seconds())
	if s < 1 {
		return 1
	}
	return s
}
