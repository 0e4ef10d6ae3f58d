package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"text/template"
	"time"
)

// RetryConfig holds retry configuration for webhooks.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts (default: 3).
	MaxAttempts int

	// Backoff strategy: fixed, linear, exponential (default: exponential).
	Backoff string

	// InitialWait is the wait before the second attempt.
	InitialWait time.Duration
}

// WebhookConfig holds configuration for webhook alerts.
type WebhookConfig struct {
	// Name is a human-readable name for this webhook.
	Name string

	// URL is the webhook endpoint URL.
	URL string

	// Method is the HTTP method to use (default: POST).
	Method string

	// Headers are additional HTTP headers to include.
	Headers map[string]string

	// PayloadTemplate is a Go template for the request body with the fields
	// of webhookTemplateData and a json function. If empty, a default JSON
	// payload is used.
	PayloadTemplate string

	// Source identifies the sender in the default payload.
	Source string

	Retry *RetryConfig

	// Timeout for each HTTP request.
	Timeout time.Duration
}

// WebhookAlertSink posts rotation failures to an HTTP endpoint, such as a
// chat incoming webhook.
type WebhookAlertSink struct {
	config   WebhookConfig
	client   *http.Client
	template *template.Template
	now      func() time.Time
}

// NewWebhookAlertSink validates config and creates a sink.
func NewWebhookAlertSink(config WebhookConfig) (*WebhookAlertSink, error) {
	if config.Method == "" {
		config.Method = http.MethodPost
	}
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}
	if config.Source == "" {
		config.Source = "keyrotate"
	}
	if config.Retry == nil {
		config.Retry = &RetryConfig{}
	}
	if config.Retry.MaxAttempts == 0 {
		config.Retry.MaxAttempts = 3
	}
	if config.Retry.Backoff == "" {
		config.Retry.Backoff = "exponential"
	}
	if config.Retry.InitialWait == 0 {
		config.Retry.InitialWait = 1 * time.Second
	}

	if err := validateWebhook(config); err != nil {
		return nil, err
	}

	sink := &WebhookAlertSink{
		config: config,
		client: &http.Client{Timeout: config.Timeout},
		now:    time.Now,
	}

	if config.PayloadTemplate != "" {
		tmpl, err := template.New("payload").Funcs(template.FuncMap{"json": jsonString}).Parse(config.PayloadTemplate)
		if err != nil {
			return nil, fmt.Errorf("invalid payload template: %w", err)
		}
		sink.template = tmpl
	}

	return sink, nil
}

func validateWebhook(config WebhookConfig) error {
	if config.URL == "" {
		return fmt.Errorf("URL is required")
	}

	parsed, err := url.Parse(config.URL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("invalid URL: %s", config.URL)
	}

	switch strings.ToUpper(config.Method) {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
	default:
		return fmt.Errorf("invalid method: %s (must be POST, PUT, or PATCH)", config.Method)
	}

	switch strings.ToLower(config.Retry.Backoff) {
	case "linear", "exponential", "fixed":
	default:
		return fmt.Errorf("invalid backoff strategy: %s (must be linear, exponential, or fixed)", config.Retry.Backoff)
	}

	return nil
}

// Name returns the sink name.
func (s *WebhookAlertSink) Name() string {
	if s.config.Name != "" {
		return "webhook:" + s.config.Name
	}
	return "webhook"
}

// Publish posts message, retrying failed requests with backoff.
func (s *WebhookAlertSink) Publish(ctx context.Context, message string) error {
	payload, err := s.buildPayload(message)
	if err != nil {
		return fmt.Errorf("failed to build payload: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= s.config.Retry.MaxAttempts; attempt++ {
		err := s.doSend(ctx, payload)
		if err == nil {
			return nil
		}
		lastErr = err

		if attempt < s.config.Retry.MaxAttempts {
			timer := time.NewTimer(s.calculateBackoff(attempt))
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
	}

	return fmt.Errorf("webhook failed after %d attempts: %w", s.config.Retry.MaxAttempts, lastErr)
}

func (s *WebhookAlertSink) doSend(ctx context.Context, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, strings.ToUpper(s.config.Method), s.config.URL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	for key, value := range s.config.Headers {
		req.Header.Set(key, value)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	return nil
}

// webhookTemplateData is available to custom payload templates.
type webhookTemplateData struct {
	Source    string
	Subject   string
	Message   string
	Timestamp string
}

func (s *WebhookAlertSink) buildPayload(message string) ([]byte, error) {
	data := webhookTemplateData{
		Source:    s.config.Source,
		Subject:   alertSubject,
		Message:   message,
		Timestamp: s.now().UTC().Format(time.RFC3339),
	}

	if s.template != nil {
		var buf bytes.Buffer
		if err := s.template.Execute(&buf, data); err != nil {
			return nil, fmt.Errorf("failed to render payload template: %w", err)
		}
		return buf.Bytes(), nil
	}

	return json.Marshal(map[string]string{
		"source":    data.Source,
		"subject":   data.Subject,
		"text":      data.Message,
		"timestamp": data.Timestamp,
	})
}

// jsonString quotes v as a JSON string, so templates can embed messages
// containing quotes or newlines: {"text": {{json .Message}}}.
func jsonString(v string) (string, error) {
	b, err := json.Marshal(v)
	return string(b), err
}

func (s *WebhookAlertSink) calculateBackoff(attempt int) time.Duration {
	initial := s.config.Retry.InitialWait

	switch strings.ToLower(s.config.Retry.Backoff) {
	case "linear":
		return initial * time.Duration(attempt)
	case "exponential":
		return initial * time.Duration(1<<(attempt-1))
	default:
		return initial
	}
}
