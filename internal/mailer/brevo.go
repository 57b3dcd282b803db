// Package mailer sends transactional email through the Brevo REST API. The
// moderator service uses it to alert the on-call moderator when a report
// needs priority review.
package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const defaultEndpoint = "https://api.brevo.com/v3/smtp/email"

// Config holds Brevo API settings.
type Config struct {
	APIKey      string
	SenderName  string
	SenderEmail string
	Endpoint    string // override for tests; defaults to the Brevo API
}

// Client is a minimal Brevo transactional email client.
type Client struct {
	cfg  Config
	http *http.Client
}

// NewClient creates a Brevo client. A zero Endpoint uses the production API.
func NewClient(cfg Config) *Client {
	if cfg.Endpoint == "" {
		cfg.Endpoint = defaultEndpoint
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: 10 * time.Second},
	}
}

type sendRequest struct {
	Sender      emailAddress   `json:"sender"`
	To          []emailAddress `json:"to"`
	Subject     string         `json:"subject"`
	HTMLContent string         `json:"htmlContent"`
}

type emailAddress struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email"`
}

// Send delivers one HTML email to the given recipient.
func (c *Client) Send(ctx context.Context, to, subject, htmlBody string) error {
	payload, err := json.Marshal(sendRequest{
		Sender:      emailAddress{Name: c.cfg.SenderName, Email: c.cfg.SenderEmail},
		To:          []emailAddress{{Email: to}},
		Subject:     subject,
		HTMLContent: htmlBody,
	})
	if err != nil {
		return fmt.Errorf("mailer: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("mailer: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("api-key", c.cfg.APIKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("mailer: send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("mailer: brevo returned %d: %s", resp.StatusCode, body)
	}
	return nil
}
