package config

import (
	"fmt"
	"net/url"
	"slices"
	"strings"

	"github.com/ppiankov/approvedrevs/internal/logging"
	"github.com/ppiankov/approvedrevs/internal/notify"
)

// ValidationError is a single invalid setting.
type ValidationError struct {
	Field   string
	Value   any
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors collects every invalid setting.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// ValidWebhookFormats lists the payload formats a webhook may use.
func ValidWebhookFormats() []string {
	return []string{"", "generic", "slack"}
}

// Validate returns every invalid setting in c.
func (c *Config) Validate() []ValidationError {
	var errs []ValidationError

	if strings.TrimSpace(c.Database) == "" {
		errs = append(errs, ValidationError{Field: "database", Value: c.Database, Message: "must not be empty"})
	}
	if strings.TrimSpace(c.AuditLog) == "" {
		errs = append(errs, ValidationError{Field: "audit_log", Value: c.AuditLog, Message: "must not be empty"})
	}
	if c.BaseURL != "" {
		if u, err := url.Parse(c.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, ValidationError{Field: "base_url", Value: c.BaseURL, Message: "must be an absolute URL"})
		}
	}
	if c.Logging.Level != "" && !slices.Contains(logging.ValidLevels(), strings.ToLower(c.Logging.Level)) {
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of %s", strings.Join(logging.ValidLevels(), ", ")),
		})
	}
	errs = append(errs, validateWebhooks(c.Webhooks)...)
	return errs
}

func validateWebhooks(hooks []notify.WebhookConfig) []ValidationError {
	var errs []ValidationError
	for i, h := range hooks {
		field := fmt.Sprintf("webhooks[%d]", i)
		if u, err := url.Parse(h.URL); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, ValidationError{Field: field + ".url", Value: h.URL, Message: "must be an absolute URL"})
		}
		if !slices.Contains(ValidWebhookFormats(), h.Format) {
			errs = append(errs, ValidationError{Field: field + ".format", Value: h.Format, Message: "must be generic or slack"})
		}
		for _, kind := range h.Events {
			if !slices.Contains(notify.Kinds(), kind) {
				errs = append(errs, ValidationError{Field: field + ".events", Value: kind, Message: "unknown event kind"})
			}
		}
	}
	return errs
}
