// Package config loads runtime settings for approvedrevs.
//
// Settings live in config.yaml and can be overridden per key with
// APPROVEDREVS_* environment variables (APPROVEDREVS_APPROVALS_BLANK_IF_UNAPPROVED
// for approvals.blank_if_unapproved). The approval policy itself is a separate
// file loaded by internal/policy.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/ppiankov/approvedrevs/internal/notify"
)

// EnvPrefix prefixes environment overrides.
const EnvPrefix = "APPROVEDREVS"

// Config holds all settings.
type Config struct {
	Database string `mapstructure:"database"`
	AuditLog string `mapstructure:"audit_log"`
	Policy   string `mapstructure:"policy"`
	// BaseURL prefixes revision links written to the audit log.
	BaseURL string `mapstructure:"base_url"`

	Approvals ApprovalsConfig        `mapstructure:"approvals"`
	Logging   LoggingConfig          `mapstructure:"logging"`
	Webhooks  []notify.WebhookConfig `mapstructure:"webhooks"`
}

// ApprovalsConfig controls approval behavior and display.
type ApprovalsConfig struct {
	// BlankIfUnapproved shows and indexes blank text for approvable pages
	// that have no approved revision.
	BlankIfUnapproved bool `mapstructure:"blank_if_unapproved"`
	// AutomaticApprovals approves a saved revision when its author may approve.
	AutomaticApprovals bool `mapstructure:"automatic_approvals"`
	// ShowApproveLatest offers an approve-latest action in listings.
	ShowApproveLatest bool `mapstructure:"show_approve_latest"`
	// ShowNotApprovedMessage flags views of pages with no approved revision.
	ShowNotApprovedMessage bool `mapstructure:"show_not_approved_message"`
}

// LoggingConfig controls the structured log.
type LoggingConfig struct {
	Level string `mapstructure:"level"`
	// File is the log destination; empty logs to stderr.
	File string `mapstructure:"file"`
}

// Dir returns ~/.approvedrevs, the home of every default path.
func Dir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".approvedrevs"
	}
	return filepath.Join(home, ".approvedrevs")
}

// File returns the default settings file path.
func File() string {
	return filepath.Join(Dir(), "config.yaml")
}

// Default returns the built-in settings.
func Default() *Config {
	dir := Dir()
	return &Config{
		Database: filepath.Join(dir, "approvedrevs.db"),
		AuditLog: filepath.Join(dir, "audit.jsonl"),
		Policy:   filepath.Join(dir, "policy.yaml"),
		BaseURL:  "http://localhost",
		Approvals: ApprovalsConfig{
			BlankIfUnapproved:      false,
			AutomaticApprovals:     true,
			ShowApproveLatest:      false,
			ShowNotApprovedMessage: false,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// SetDefaults registers every default on v so that environment overrides
// resolve for keys absent from the file.
func SetDefaults(v *viper.Viper) {
	defaults := Default()

	v.SetDefault("database", defaults.Database)
	v.SetDefault("audit_log", defaults.AuditLog)
	v.SetDefault("policy", defaults.Policy)
	v.SetDefault("base_url", defaults.BaseURL)

	v.SetDefault("approvals.blank_if_unapproved", defaults.Approvals.BlankIfUnapproved)
	v.SetDefault("approvals.automatic_approvals", defaults.Approvals.AutomaticApprovals)
	v.SetDefault("approvals.show_approve_latest", defaults.Approvals.ShowApproveLatest)
	v.SetDefault("approvals.show_not_approved_message", defaults.Approvals.ShowNotApprovedMessage)

	v.SetDefault("logging.level", defaults.Logging.Level)
	v.SetDefault("logging.file", defaults.Logging.File)
}

// New returns a viper instance with defaults and environment overrides
// configured.
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads settings from path. An empty path looks for config.yaml in
// Dir() and falls back to defaults when none exists; an explicit path must
// exist.
func Load(path string) (*Config, error) {
	v := New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(Dir())
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	return Decode(v)
}

// Decode unmarshals v into a Config and validates it.
func Decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}
	return &cfg, nil
}

// Write saves cfg as YAML at path, creating the directory.
func Write(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	v := viper.New()
	v.SetConfigType("yaml")
	v.Set("database", cfg.Database)
	v.Set("audit_log", cfg.AuditLog)
	v.Set("policy", cfg.Policy)
	v.Set("base_url", cfg.BaseURL)
	v.Set("approvals.blank_if_unapproved", cfg.Approvals.BlankIfUnapproved)
	v.Set("approvals.automatic_approvals", cfg.Approvals.AutomaticApprovals)
	v.Set("approvals.show_approve_latest", cfg.Approvals.ShowApproveLatest)
	v.Set("approvals.show_not_approved_message", cfg.Approvals.ShowNotApprovedMessage)
	v.Set("logging.level", cfg.Logging.Level)
	v.Set("logging.file", cfg.Logging.File)
	if len(cfg.Webhooks) > 0 {
		hooks := make([]map[string]any, 0, len(cfg.Webhooks))
		for _, h := range cfg.Webhooks {
			hooks = append(hooks, map[string]any{
				"url":     h.URL,
				"format":  h.Format,
				"events":  h.Events,
				"headers": h.Headers,
			})
		}
		v.Set("webhooks", hooks)
	}
	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
