// Package notify delivers password-reset links to account holders.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"
)

const defaultTimeout = 15 * time.Second

// ResetNotifier sends a reset link to email. Implementations must not log the token.
type ResetNotifier interface {
	SendPasswordReset(ctx context.Context, email, link string) error
}

// ResetLink appends token as the token query parameter of base.
func ResetLink(base, token string) string {
	u, err := url.Parse(base)
	if err != nil || base == "" {
		return "?token=" + url.QueryEscape(token)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String()
}

// WebhookNotifier posts reset links to a mail relay as JSON.
type WebhookNotifier struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
}

// NewWebhookNotifier returns a notifier posting to baseURL with apiKey in the Authorization header.
func NewWebhookNotifier(baseURL, apiKey string) *WebhookNotifier {
	return &WebhookNotifier{
		APIKey:     apiKey,
		BaseURL:    baseURL,
		HTTPClient: &http.Client{Timeout: defaultTimeout},
	}
}

// SendPasswordReset posts {"template":"password_reset","to":email,"link":link}.
func (n *WebhookNotifier) SendPasswordReset(ctx context.Context, email, link string) error {
	if n.BaseURL == "" {
		return fmt.Errorf("notify: webhook URL not configured")
	}
	raw, err := json.Marshal(map[string]string{
		"template": "password_reset",
		"to":       email,
		"link":     link,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.BaseURL, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if n.APIKey != "" {
		req.Header.Set("Authorization", n.APIKey)
	}
	resp, err := n.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("notify: request failed status=%d body=%s", resp.StatusCode, string(b))
	}
	return nil
}

// LogNotifier only records that a reset was requested. Used in development when no relay is configured.
type LogNotifier struct{}

func (LogNotifier) SendPasswordReset(_ context.Context, email, _ string) error {
	log.Printf("notify: password reset link issued for %s (no relay configured)", email)
	return nil
}
