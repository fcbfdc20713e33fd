package policy

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// StringList is a rule field that may be written as a bare string or a list.
// Anything else (maps, nulls, nested lists) decodes to an empty list.
type StringList []string

// UnmarshalYAML coerces scalars and sequences; it never fails.
func (l *StringList) UnmarshalYAML(node *yaml.Node) error {
	*l = nil
	switch node.Kind {
	case yaml.ScalarNode:
		if node.Tag == "!!null" {
			return nil
		}
		if v := strings.TrimSpace(node.Value); v != "" {
			*l = StringList{v}
		}
	case yaml.SequenceNode:
		for _, child := range node.Content {
			if child.Kind != yaml.ScalarNode || child.Tag == "!!null" {
				continue
			}
			if v := strings.TrimSpace(child.Value); v != "" {
				*l = append(*l, v)
			}
		}
	}
	return nil
}

// Flag is an optional boolean rule field. Values that are not booleans
// leave it unset so the default applies.
type Flag struct {
	Set   bool
	Value bool
}

// UnmarshalYAML accepts YAML booleans only; it never fails.
func (f *Flag) UnmarshalYAML(node *yaml.Node) error {
	*f = Flag{}
	if node.Kind != yaml.ScalarNode {
		return nil
	}
	var b bool
	if err := node.Decode(&b); err != nil {
		return nil
	}
	*f = Flag{Set: true, Value: b}
	return nil
}

// MarshalYAML writes unset flags as null.
func (f Flag) MarshalYAML() (any, error) {
	if !f.Set {
		return nil, nil
	}
	return f.Value, nil
}

// RawRule is a rule exactly as written in policy.yaml.
type RawRule struct {
	Group    StringList `yaml:"group,omitempty"`
	User     StringList `yaml:"user,omitempty"`
	Property StringList `yaml:"property,omitempty"`
	Creator  Flag       `yaml:"creator,omitempty"`
	Override Flag       `yaml:"override,omitempty"`
}

// UnmarshalYAML treats anything other than a mapping as an empty rule.
func (r *RawRule) UnmarshalYAML(node *yaml.Node) error {
	*r = RawRule{}
	if node.Kind != yaml.MappingNode {
		return nil
	}
	type plain RawRule
	var p plain
	if err := node.Decode(&p); err != nil {
		return nil
	}
	*r = RawRule(p)
	return nil
}

// Zone maps a namespace, category or page name to its rule. Keys are taken
// verbatim from the document, so numeric namespace ids are kept as text.
type Zone map[string]RawRule

// UnmarshalYAML treats anything other than a mapping as an empty zone.
func (z *Zone) UnmarshalYAML(node *yaml.Node) error {
	*z = Zone{}
	if node.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, value := node.Content[i], node.Content[i+1]
		if key.Kind != yaml.ScalarNode {
			continue
		}
		var rule RawRule
		_ = rule.UnmarshalYAML(value)
		(*z)[key.Value] = rule
	}
	return nil
}

// PolicyConfig is the permission structure: one rule for all pages plus
// namespace, category and page zones.
type PolicyConfig struct {
	AllPages             RawRule `yaml:"all_pages"`
	NamespacePermissions Zone    `yaml:"namespace_permissions"`
	CategoryPermissions  Zone    `yaml:"category_permissions"`
	PagePermissions      Zone    `yaml:"page_permissions"`
}

// DefaultConfig returns the built-in policy: sysops approve anything
// approvable; Main, User, Template, Help and Project are approvable.
func DefaultConfig() *PolicyConfig {
	return &PolicyConfig{
		AllPages: RawRule{Group: StringList{"sysop"}},
		NamespacePermissions: Zone{
			"Main":     {},
			"User":     {},
			"Template": {},
			"Help":     {},
			"Project":  {},
		},
		CategoryPermissions: Zone{},
		PagePermissions:     Zone{},
	}
}

// DefaultPath returns ~/.approvedrevs/policy.yaml.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".approvedrevs", "policy.yaml")
}

// LoadConfig loads policy configuration from a YAML file.
// Empty path falls back to ~/.approvedrevs/policy.yaml.
// Missing file returns defaults. Invalid YAML returns an error.
func LoadConfig(path string) (*PolicyConfig, error) {
	cfg, _, err := LoadConfigWithHash(path)
	return cfg, err
}

// LoadConfigWithHash loads policy configuration and returns its SHA-256 hash.
// The hash is computed over the raw YAML bytes on disk.
// When no file exists (defaults used), the hash is the SHA-256 of empty input.
func LoadConfigWithHash(path string) (*PolicyConfig, string, error) {
	if path == "" {
		path = DefaultPath()
	}
	if path == "" {
		return DefaultConfig(), hashBytes(nil), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), hashBytes(nil), nil
		}
		return nil, "", fmt.Errorf("failed to read policy config: %w", err)
	}

	cfg, err := ParseConfig(data)
	if err != nil {
		return nil, "", err
	}
	return cfg, hashBytes(data), nil
}

// ParseConfig decodes policy YAML. An empty document yields the defaults;
// otherwise the document replaces the defaults entirely.
func ParseConfig(data []byte) (*PolicyConfig, error) {
	var top map[string]yaml.Node
	if err := yaml.Unmarshal(data, &top); err != nil {
		return nil, fmt.Errorf("failed to parse policy config: %w", err)
	}
	if len(top) == 0 {
		return DefaultConfig(), nil
	}

	var cfg PolicyConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse policy config: %w", err)
	}
	return &cfg, nil
}

// HashConfig returns the hash of cfg's canonical YAML form, for policies
// that never came from a file.
func HashConfig(cfg *PolicyConfig) string {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return ""
	}
	return hashBytes(data)
}

func hashBytes(data []byte) string {
	h := sha256.Sum256(data)
	return "sha256:" + hex.EncodeToString(h[:])
}

// DefaultConfigYAML returns a commented YAML string for init-policy.
func DefaultConfigYAML() string {
	return `# approvedrevs policy configuration
# Generated by: approvedrevs init-policy
#
# An item is approvable when its namespace, one of its categories (including
# parent categories), or its full title is listed below.
#
# Who may approve is resolved zone by zone, in this order:
#   1. all_pages            - a match here grants immediately
#   2. namespace_permissions
#   3. category_permissions - every matching category is evaluated
#   4. page_permissions
# A later zone replaces the verdict of earlier ones, unless its rule sets
# override: false and an earlier zone already granted.
#
# Rule fields (each optional):
#   group:    group name or list of groups (case-insensitive)
#   user:     user name or list of users (case-insensitive)
#   property: page property (or list) whose values name approvers
#   creator:  true lets the item's creator approve
#   override: false protects an earlier grant from this zone

all_pages:
  group: sysop

namespace_permissions:
  Main: {}
  User: {}
  Template: {}
  Help: {}
  Project: {}

category_permissions: {}

page_permissions: {}
`
}
