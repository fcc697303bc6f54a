package alertdispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/smtp"
	"os"
	"strings"
)

// SMTPConfig carries the environment-driven SMTP settings used for HIGH and
// CRITICAL alert email.
type SMTPConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	From     string
	To       []string
}

// SMTPConfigFromEnv reads the SMTP_* and REPORT_* environment variables.
func SMTPConfigFromEnv() SMTPConfig {
	cfg := SMTPConfig{
		Host:     os.Getenv("SMTP_HOST"),
		Port:     os.Getenv("SMTP_PORT"),
		User:     os.Getenv("SMTP_USER"),
		Password: os.Getenv("SMTP_PASSWORD"),
		From:     os.Getenv("REPORT_FROM_EMAIL"),
	}
	if to := os.Getenv("REPORT_TO_EMAILS"); to != "" {
		for _, addr := range strings.Split(to, ",") {
			if addr = strings.TrimSpace(addr); addr != "" {
				cfg.To = append(cfg.To, addr)
			}
		}
	}
	if cfg.Port == "" {
		cfg.Port = "587"
	}
	return cfg
}

// Configured reports whether enough settings are present to attempt a send.
func (c SMTPConfig) Configured() bool {
	return c.Host != "" && c.From != "" && len(c.To) > 0
}

// SMTPSender is the production EmailSender over net/smtp.
type SMTPSender struct {
	cfg SMTPConfig
}

// NewSMTPSender returns a sender for cfg, or nil if cfg is not usable (a
// nil transport is skipped by the Dispatcher).
func NewSMTPSender(cfg SMTPConfig) *SMTPSender {
	if !cfg.Configured() {
		return nil
	}
	return &SMTPSender{cfg: cfg}
}

// SendEmail delivers one plain-text message to the configured recipients.
func (s *SMTPSender) SendEmail(ctx context.Context, subject, body string) error {
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s\r\n",
		s.cfg.From, strings.Join(s.cfg.To, ", "), subject, body)

	addr := s.cfg.Host + ":" + s.cfg.Port
	var auth smtp.Auth
	if s.cfg.User != "" {
		auth = smtp.PlainAuth("", s.cfg.User, s.cfg.Password, s.cfg.Host)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- smtp.SendMail(addr, auth, s.cfg.From, s.cfg.To, []byte(msg))
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("smtp send: %w", err)
		}
		return nil
	}
}

// HTTPSMSConfig points at the SMS gateway's JSON endpoint.
type HTTPSMSConfig struct {
	URL    string
	APIKey string
	To     string
}

// HTTPSMSConfigFromEnv reads the SMS_* environment variables.
func HTTPSMSConfigFromEnv() HTTPSMSConfig {
	return HTTPSMSConfig{
		URL:    os.Getenv("SMS_API_URL"),
		APIKey: os.Getenv("SMS_API_KEY"),
		To:     os.Getenv("SMS_TO_NUMBER"),
	}
}

// HTTPSMSSender posts CRITICAL alerts to an SMS gateway API.
type HTTPSMSSender struct {
	cfg    HTTPSMSConfig
	client *http.Client
}

// NewHTTPSMSSender returns a sender, or nil when the gateway is not
// configured.
func NewHTTPSMSSender(cfg HTTPSMSConfig) *HTTPSMSSender {
	if cfg.URL == "" || cfg.To == "" {
		return nil
	}
	return &HTTPSMSSender{cfg: cfg, client: &http.Client{}}
}

// SendSMS posts one message to the gateway.
func (s *HTTPSMSSender) SendSMS(ctx context.Context, message string) error {
	payload, err := json.Marshal(map[string]string{
		"to":      s.cfg.To,
		"message": message,
	})
	if err != nil {
		return fmt.Errorf("encode sms payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.URL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build sms request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("sms gateway: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("sms gateway returned %s", resp.Status)
	}
	return nil
}
