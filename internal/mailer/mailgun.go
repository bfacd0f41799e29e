package mailer

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// MailgunSender sends messages through the Mailgun HTTP API.
type MailgunSender struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	domain     string
	from       string
}

// MailgunConfig holds Mailgun credentials and sender identity.
type MailgunConfig struct {
	APIKey   string `yaml:"api_key"`
	Domain   string `yaml:"domain"`
	BaseURL  string `yaml:"base_url"`
	FromName string `yaml:"from_name"`
	From     string `yaml:"from"`
}

// NewMailgunSender creates a Mailgun-backed sender.
func NewMailgunSender(cfg MailgunConfig) *MailgunSender {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.mailgun.net/v3"
	}
	from := cfg.From
	if cfg.FromName != "" {
		from = fmt.Sprintf("%s <%s>", cfg.FromName, cfg.From)
	}
	return &MailgunSender{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    baseURL,
		apiKey:     cfg.APIKey,
		domain:     cfg.Domain,
		from:       from,
	}
}

// Send posts one message to the Mailgun messages endpoint. Non-2xx
// responses are returned as errors carrying the status code and body, which
// is what IsThrottle inspects for 429-style rejections.
func (s *MailgunSender) Send(ctx context.Context, msg Message) error {
	form := url.Values{}
	form.Set("from", s.from)
	form.Set("to", msg.To)
	form.Set("subject", msg.Subject)
	form.Set("html", msg.HTMLBody)
	form.Set("text", msg.TextBody)

	endpoint := fmt.Sprintf("%s/%s/messages", s.baseURL, s.domain)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.SetBasicAuth("api", s.apiKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("mailgun API error (status %d): %s", resp.StatusCode, string(body))
	}
	return nil
}
