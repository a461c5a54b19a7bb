/**
 * @description
 * Resend email client for OTP delivery.
 * Sends the signup verification and account-deletion warning emails. Email
 * delivery is an external collaborator; this client only knows the Resend
 * HTTP API contract.
 *
 * @dependencies
 * - net/http
 * - encoding/json
 * - backend/internal/config
 */

package resend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/mantis-project/backend/internal/config"
	"github.com/mantis-project/backend/internal/logger"
)

const (
	DefaultBaseURL = "https://api.resend.com"
	requestTimeout = 15 * time.Second
)

type Client struct {
	apiKey     string
	fromEmail  string
	otpMinutes int
	baseURL    string
	httpClient *http.Client
}

type sendRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
	Text    string   `json:"text"`
}

func NewClient(cfg *config.Config) *Client {
	return &Client{
		apiKey:     cfg.Email.ResendAPIKey,
		fromEmail:  cfg.Email.FromEmail,
		otpMinutes: cfg.Refresh.OTPExpirationMinutes,
		baseURL:    DefaultBaseURL,
		httpClient: &http.Client{
			Timeout: requestTimeout,
		},
	}
}

// SendSignupOTP emails the verification code for a pending registration.
func (c *Client) SendSignupOTP(ctx context.Context, to, name, code string) error {
	greeting := "Hello,"
	if name != "" {
		greeting = fmt.Sprintf("Hi %s,", name)
	}

	html := fmt.Sprintf(`<h2>Mantis Price Tracker</h2>
<p>%s</p>
<p>Thank you for signing up for Mantis! Please verify your email address to complete your registration.</p>
<p>Your verification code is:</p>
<p style="font-size:32px;font-weight:bold;letter-spacing:8px;font-family:monospace;">%s</p>
<p>This code will expire in <strong>%d minutes</strong>.</p>
<p>If you didn't create an account with Mantis, you can safely ignore this email.</p>`,
		greeting, code, c.otpMinutes)

	text := fmt.Sprintf(`%s

Thank you for signing up for Mantis! Please verify your email address to complete your registration.

Your verification code is: %s

This code will expire in %d minutes.

If you didn't create an account with Mantis, you can safely ignore this email.`,
		greeting, code, c.otpMinutes)

	subject := fmt.Sprintf("Verify Your Email - Your Code: %s", code)
	return c.send(ctx, to, subject, html, text)
}

// SendDeletionOTP emails the confirmation code for a pending account deletion.
func (c *Client) SendDeletionOTP(ctx context.Context, to, name, code string) error {
	greeting := "Hello,"
	if name != "" {
		greeting = fmt.Sprintf("Hi %s,", name)
	}

	html := fmt.Sprintf(`<h2>Account Deletion Warning</h2>
<p>%s</p>
<p><strong>WARNING: This action cannot be undone!</strong></p>
<p>You requested to permanently delete your Mantis account. All tracked products,
price history, provider configurations and profile data will be removed.</p>
<p>If you're sure you want to proceed, enter this verification code:</p>
<p style="font-size:32px;font-weight:bold;letter-spacing:8px;font-family:monospace;">%s</p>
<p>This code will expire in <strong>%d minutes</strong>.</p>
<p>Changed your mind? Simply ignore this email and your account will remain active.</p>`,
		greeting, code, c.otpMinutes)

	text := fmt.Sprintf(`%s

WARNING: This action cannot be undone!

You requested to permanently delete your Mantis account. All tracked products,
price history, provider configurations and profile data will be removed.

If you're sure you want to proceed, enter this verification code: %s

This code will expire in %d minutes.

Changed your mind? Simply ignore this email and your account will remain active.`,
		greeting, code, c.otpMinutes)

	return c.send(ctx, to, "Account Deletion Warning - Verify to Delete", html, text)
}

func (c *Client) send(ctx context.Context, to, subject, html, text string) error {
	if c.apiKey == "" {
		return fmt.Errorf("resend api key is not configured")
	}

	body, err := json.Marshal(sendRequest{
		From:    c.fromEmail,
		To:      []string{to},
		Subject: subject,
		HTML:    html,
		Text:    text,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/emails", bytes.NewBuffer(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("resend request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		respBody, _ := io.ReadAll(resp.Body)
		logger.Error("Resend API error: %d - %s", resp.StatusCode, string(respBody))
		return fmt.Errorf("resend api returned status %d", resp.StatusCode)
	}

	return nil
}
