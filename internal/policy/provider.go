package policy

import (
	"fmt"
	"sync"
)

// Provider builds the Registry lazily on first use and keeps it until an
// explicit Reload. It is shared by every request of a process.
type Provider struct {
	path string
	cfg  *PolicyConfig

	mu     sync.RWMutex
	reg    *Registry
	checks []func(*Registry) error
}

// NewProvider returns a Provider reading policy from path (empty path means
// the default location).
func NewProvider(path string) *Provider {
	return &Provider{path: path}
}

// NewStaticProvider returns a Provider over an in-memory config, hashed by
// its YAML form. Reload rebuilds from the same config.
func NewStaticProvider(cfg *PolicyConfig) *Provider {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Provider{cfg: cfg}
}

// Path returns the policy file path, or "" for static providers.
func (p *Provider) Path() string {
	if p.cfg != nil {
		return ""
	}
	if p.path == "" {
		return DefaultPath()
	}
	return p.path
}

// Registry returns the cached registry, building it on first call.
func (p *Provider) Registry() (*Registry, error) {
	p.mu.RLock()
	reg := p.reg
	p.mu.RUnlock()
	if reg != nil {
		return reg, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.reg != nil {
		return p.reg, nil
	}
	reg, err := p.build()
	if err != nil {
		return nil, err
	}
	p.reg = reg
	return reg, nil
}

// AddCheck registers a validation every reloaded registry must pass
// before it replaces the active one.
func (p *Provider) AddCheck(check func(*Registry) error) {
	p.mu.Lock()
	p.checks = append(p.checks, check)
	p.mu.Unlock()
}

// Reload rebuilds the registry and swaps it in. On error, from the file or
// from a check, the previous registry stays active.
func (p *Provider) Reload() (*Registry, error) {
	reg, err := p.build()
	if err != nil {
		return nil, err
	}
	p.mu.RLock()
	checks := append([]func(*Registry) error(nil), p.checks...)
	p.mu.RUnlock()
	for _, check := range checks {
		if err := check(reg); err != nil {
			return nil, fmt.Errorf("rejected policy: %w", err)
		}
	}
	p.mu.Lock()
	p.reg = reg
	p.mu.Unlock()
	return reg, nil
}

func (p *Provider) build() (*Registry, error) {
	if p.cfg != nil {
		return NewRegistry(p.cfg, HashConfig(p.cfg)), nil
	}
	cfg, hash, err := LoadConfigWithHash(p.path)
	if err != nil {
		return nil, fmt.Errorf("load policy: %w", err)
	}
	return NewRegistry(cfg, hash), nil
}
