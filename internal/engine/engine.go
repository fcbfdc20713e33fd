// Package engine wires the approval components together. An Engine is
// long-lived and shared; a Request carries the caches of one external
// request and exposes every approval operation.
package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/ppiankov/approvedrevs/internal/approvability"
	"github.com/ppiankov/approvedrevs/internal/approval"
	"github.com/ppiankov/approvedrevs/internal/audit"
	"github.com/ppiankov/approvedrevs/internal/authority"
	"github.com/ppiankov/approvedrevs/internal/category"
	"github.com/ppiankov/approvedrevs/internal/config"
	"github.com/ppiankov/approvedrevs/internal/listing"
	"github.com/ppiankov/approvedrevs/internal/model"
	"github.com/ppiankov/approvedrevs/internal/notify"
	"github.com/ppiankov/approvedrevs/internal/policy"
	"github.com/ppiankov/approvedrevs/internal/scope"
	"github.com/ppiankov/approvedrevs/internal/store"
	"github.com/ppiankov/approvedrevs/internal/wiki"
)

// Options configures an Engine. Store, Wiki and Policy are required.
type Options struct {
	Store  *store.DB
	Wiki   *wiki.Wiki
	Policy *policy.Provider

	// Audit and Events may be nil.
	Audit  approval.AuditLog
	Events approval.Publisher

	// Properties backs property rules. Nil uses the wiki's semantic
	// properties unless NoPropertyLookup is set.
	Properties       authority.PropertyLookup
	NoPropertyLookup bool

	// Overrides run before the policy zones when deciding approvability.
	Overrides []approvability.OverrideFunc

	Approvals config.ApprovalsConfig
	BaseURL   string
	Logger    zerolog.Logger
}

// Engine is the shared composition of registry, resolvers and stores.
type Engine struct {
	opts     Options
	db       *store.DB
	wiki     *wiki.Wiki
	policy   *policy.Provider
	settings config.ApprovalsConfig
	log      zerolog.Logger

	approvability *approvability.Resolver
	authority     *authority.Authorizer
	approvals     *approval.Service
	lister        *listing.Lister

	bus     *notify.Bus
	auditLg *audit.Log
}

// New builds an Engine. It fails with authority.ErrPropertyLookupUnavailable
// when the policy has property rules and no lookup is wired.
func New(opts Options) (*Engine, error) {
	if opts.Store == nil || opts.Wiki == nil || opts.Policy == nil {
		return nil, errors.New("engine: store, wiki and policy are required")
	}

	props := opts.Properties
	if props == nil && !opts.NoPropertyLookup {
		props = opts.Wiki
	}

	closures := category.NewResolver(opts.Wiki)
	resolver := approvability.NewResolver(opts.Policy, closures, opts.Wiki, opts.Store)
	for _, fn := range opts.Overrides {
		resolver.AddOverride(fn)
	}

	authz := authority.NewAuthorizer(opts.Policy, closures, opts.Wiki, props)
	if err := authz.CheckWiring(); err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}
	opts.Policy.AddCheck(authz.CheckRegistry)

	log := opts.Logger.With().Str("component", "engine").Logger()
	reg, err := opts.Policy.Registry()
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}
	for _, key := range reg.Unresolved() {
		log.Warn().Str("namespace", key).Msg("policy names an unknown namespace; entry ignored")
	}

	svcOpts := approval.Options{
		Audit:             opts.Audit,
		Events:            opts.Events,
		Records:           opts.Store,
		Approvability:     resolver,
		Content:           opts.Wiki,
		Renderer:          opts.Wiki,
		Indexer:           opts.Wiki,
		BlankIfUnapproved: opts.Approvals.BlankIfUnapproved,
		BaseURL:           opts.BaseURL,
		PolicyHash:        policyHash(opts.Policy),
		Logger:            opts.Logger,
	}
	return &Engine{
		opts:          opts,
		db:            opts.Store,
		wiki:          opts.Wiki,
		policy:        opts.Policy,
		settings:      opts.Approvals,
		log:           log,
		approvability: resolver,
		authority:     authz,
		approvals:     approval.NewService(svcOpts),
		lister:        listing.New(opts.Wiki, opts.Store, resolver, authz, opts.Approvals.ShowApproveLatest),
	}, nil
}

func policyHash(p *policy.Provider) func() string {
	return func() string {
		reg, err := p.Registry()
		if err != nil {
			return ""
		}
		return reg.Hash()
	}
}

// Open builds an Engine from settings: the SQLite database, the wiki
// tables, the audit log, the event bus with its webhooks, and the policy
// file. Close releases what Open acquired.
func Open(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*Engine, error) {
	db, err := store.Open(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	w, err := wiki.New(ctx, db.SQL())
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	auditLog, err := audit.Open(cfg.AuditLog)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	bus := notify.NewBus()
	if len(cfg.Webhooks) > 0 {
		bus.SubscribeAll(notify.NewWebhook(cfg.Webhooks).Handle)
	}

	e, err := New(Options{
		Store:     db,
		Wiki:      w,
		Policy:    policy.NewProvider(cfg.Policy),
		Audit:     auditLog,
		Events:    bus,
		Approvals: cfg.Approvals,
		BaseURL:   cfg.BaseURL,
		Logger:    log,
	})
	if err != nil {
		_ = auditLog.Close()
		_ = db.Close()
		return nil, err
	}
	e.bus = bus
	e.auditLg = auditLog
	return e, nil
}

// Close releases the audit log and database opened by Open.
func (e *Engine) Close() error {
	var errs []error
	if e.auditLg != nil {
		errs = append(errs, e.auditLg.Close())
	}
	if e.db != nil {
		errs = append(errs, e.db.Close())
	}
	return errors.Join(errs...)
}

// WithPolicy returns an Engine over the same database and wiki that decides
// with p instead. It has no audit log or event bus, so approvals made
// through it are recorded nowhere but the database; use it to evaluate
// a candidate policy.
func (e *Engine) WithPolicy(p *policy.Provider) (*Engine, error) {
	opts := e.opts
	opts.Policy = p
	opts.Audit = nil
	opts.Events = nil
	return New(opts)
}

// Wiki returns the host catalog.
func (e *Engine) Wiki() *wiki.Wiki { return e.wiki }

// Policy returns the permission registry provider.
func (e *Engine) Policy() *policy.Provider { return e.policy }

// Bus returns the event bus created by Open, or nil.
func (e *Engine) Bus() *notify.Bus { return e.bus }

// Settings returns the approval settings.
func (e *Engine) Settings() config.ApprovalsConfig { return e.settings }

// Reload rebuilds the permission registry from the policy file. Requests
// created afterwards see the new rules. A registry the engine cannot serve,
// such as one with property rules and no property lookup, is rejected and
// the old rules stay active.
func (e *Engine) Reload() error {
	reg, err := e.policy.Reload()
	if err != nil {
		e.log.Error().Err(err).Msg("policy reload failed")
		return err
	}
	e.log.Info().Str("policy_hash", reg.Hash()).Msg("policy reloaded")
	return nil
}

// NewRequest starts a request running as actor.
func (e *Engine) NewRequest(actor model.Actor) *Request {
	return &Request{e: e, sc: scope.New(actor)}
}

// RequestAs starts a request for the named user, loading their groups.
// An empty name is the anonymous actor.
func (e *Engine) RequestAs(ctx context.Context, name string) (*Request, error) {
	actor, err := e.wiki.Actor(ctx, name)
	if err != nil {
		return nil, err
	}
	return e.NewRequest(actor), nil
}
