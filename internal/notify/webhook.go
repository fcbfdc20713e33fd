package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// WebhookConfig defines a webhook destination.
type WebhookConfig struct {
	URL     string            `yaml:"url"     json:"url"     mapstructure:"url"`
	Format  string            `yaml:"format"  json:"format"  mapstructure:"format"` // "generic", "slack"
	Events  []string          `yaml:"events"  json:"events"  mapstructure:"events"` // event kinds; empty means all
	Headers map[string]string `yaml:"headers" json:"headers" mapstructure:"headers"`
}

const (
	requestTimeout = 5 * time.Second
	maxRetries     = 3
)

// Webhook posts events to HTTP endpoints with retry on 5xx.
type Webhook struct {
	configs    []WebhookConfig
	client     *http.Client
	retryDelay time.Duration
}

// NewWebhook creates a Webhook for the given destinations.
func NewWebhook(configs []WebhookConfig) *Webhook {
	return &Webhook{
		configs:    configs,
		client:     &http.Client{Timeout: requestTimeout},
		retryDelay: time.Second,
	}
}

// Handle sends e to every destination whose event list matches. It is a
// Handler and runs synchronously.
func (w *Webhook) Handle(ctx context.Context, e Event) error {
	var errs []error
	for _, cfg := range w.configs {
		if !matches(cfg.Events, e.Kind) {
			continue
		}
		if err := w.send(ctx, cfg, e); err != nil {
			errs = append(errs, fmt.Errorf("webhook %s: %w", cfg.URL, err))
		}
	}
	return errors.Join(errs...)
}

func (w *Webhook) send(ctx context.Context, cfg WebhookConfig, e Event) error {
	body, err := FormatPayload(cfg.Format, e)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt) * w.retryDelay):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.URL, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		for k, v := range cfg.Headers {
			req.Header.Set(k, v)
		}

		resp, err := w.client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		_ = resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return nil
		}
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return fmt.Errorf("rejected: HTTP %d", resp.StatusCode)
		}
		lastErr = fmt.Errorf("server error: HTTP %d", resp.StatusCode)
	}
	return fmt.Errorf("failed after %d attempts: %w", maxRetries, lastErr)
}

func matches(kinds []string, kind string) bool {
	if len(kinds) == 0 {
		return true
	}
	for _, k := range kinds {
		if k == kind || k == "*" {
			return true
		}
	}
	return false
}

// FormatPayload builds the webhook body for the given format.
func FormatPayload(format string, e Event) ([]byte, error) {
	if format == "slack" {
		return formatSlack(e)
	}
	return json.Marshal(e)
}

func formatSlack(e Event) ([]byte, error) {
	detail := ""
	switch {
	case e.RevisionID != 0:
		detail = fmt.Sprintf("revision %d", e.RevisionID)
	case e.SHA1 != "":
		detail = fmt.Sprintf("upload %s", e.FileTimestamp)
	}
	actor := e.Actor
	if actor == "" {
		actor = "anonymous"
	}

	fields := []any{
		map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Page:* %s", e.Title)},
		map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*By:* %s", actor)},
	}
	if detail != "" {
		fields = append(fields, map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Version:* %s", detail)})
	}

	payload := map[string]any{
		"blocks": []any{
			map[string]any{
				"type": "header",
				"text": map[string]any{
					"type": "plain_text",
					"text": fmt.Sprintf("approvedrevs: %s", e.Kind),
				},
			},
			map[string]any{
				"type":   "section",
				"fields": fields,
			},
		},
	}
	return json.Marshal(payload)
}
