// Package authority decides whether an actor may approve a specific item.
package authority

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ppiankov/approvedrevs/internal/model"
	"github.com/ppiankov/approvedrevs/internal/policy"
	"github.com/ppiankov/approvedrevs/internal/scope"
)

// ErrPropertyLookupUnavailable is returned when a rule names a property but
// no PropertyLookup was wired. It is a configuration error; callers must not
// treat it as a denial.
var ErrPropertyLookupUnavailable = errors.New("property rule configured but no property lookup is available")

// CreatorLookup returns the name of the actor who created an item: the
// author of its oldest revision. An empty name means unknown.
type CreatorLookup interface {
	Creator(ctx context.Context, item model.Item) (string, error)
}

// PropertyLookup returns the actor names a property of item points at.
type PropertyLookup interface {
	PropertyActors(ctx context.Context, property string, item model.Item) ([]string, error)
}

// RegistrySource yields the current permission registry.
type RegistrySource interface {
	Registry() (*policy.Registry, error)
}

// ClosureSource yields the category closure of an item within a request.
type ClosureSource interface {
	InScope(ctx context.Context, sc *scope.Scope, item model.Item) ([]string, error)
}

// Authorizer answers CanApprove.
type Authorizer struct {
	registry   RegistrySource
	closures   ClosureSource
	creators   CreatorLookup
	properties PropertyLookup
}

// NewAuthorizer creates an Authorizer. properties may be nil if no rule
// uses property matching.
func NewAuthorizer(registry RegistrySource, closures ClosureSource, creators CreatorLookup, properties PropertyLookup) *Authorizer {
	return &Authorizer{
		registry:   registry,
		closures:   closures,
		creators:   creators,
		properties: properties,
	}
}

// CheckWiring returns ErrPropertyLookupUnavailable when the registry holds
// property rules and no lookup is wired.
func (a *Authorizer) CheckWiring() error {
	reg, err := a.registry.Registry()
	if err != nil {
		return fmt.Errorf("permission registry: %w", err)
	}
	return a.CheckRegistry(reg)
}

// CheckRegistry is CheckWiring for a registry that is not active yet.
func (a *Authorizer) CheckRegistry(reg *policy.Registry) error {
	if a.properties == nil && reg.HasPropertyRules() {
		return ErrPropertyLookupUnavailable
	}
	return nil
}

// CanApprove reports whether actor may approve or unapprove item.
//
// Zones are applied in order: all pages, namespace, every matching
// category in closure order, page. A grant from the all-pages zone is
// final. In later zones a matching rule sets the decision to true and a
// failing rule sets it to false, unless the rule has override=false and the
// decision is already true. When nothing grants, actors may still manage
// their own user pages.
//
// The finished verdict is memoized in sc.
func (a *Authorizer) CanApprove(ctx context.Context, sc *scope.Scope, actor model.Actor, item model.Item) (bool, error) {
	if v, ok := sc.CanApprove(actor, item.ID); ok {
		return v, nil
	}
	v, err := a.decide(ctx, sc, actor, item)
	if err != nil {
		return false, err
	}
	sc.SetCanApprove(actor, item.ID, v)
	return v, nil
}

func (a *Authorizer) decide(ctx context.Context, sc *scope.Scope, actor model.Actor, item model.Item) (bool, error) {
	reg, err := a.registry.Registry()
	if err != nil {
		return false, fmt.Errorf("permission registry: %w", err)
	}

	granted, err := a.matches(ctx, reg.AllPages(), actor, item)
	if err != nil || granted {
		return granted, err
	}

	decision := false
	apply := func(rule policy.Rule) error {
		if !rule.Override && decision {
			return nil
		}
		m, err := a.matches(ctx, rule, actor, item)
		if err != nil {
			return err
		}
		decision = m
		return nil
	}

	if rule, ok := reg.NamespaceRule(item.Namespace); ok {
		if err := apply(rule); err != nil {
			return false, err
		}
	}

	if reg.HasCategoryRules() {
		closure, err := a.closures.InScope(ctx, sc, item)
		if err != nil {
			return false, err
		}
		for _, cat := range reg.MatchingCategories(closure) {
			rule, _ := reg.CategoryRule(cat)
			if err := apply(rule); err != nil {
				return false, err
			}
		}
	}

	if rule, ok := reg.PageRule(item); ok {
		if err := apply(rule); err != nil {
			return false, err
		}
	}

	if !decision && ownsUserPage(actor, item) {
		decision = true
	}
	return decision, nil
}

// matches evaluates one rule: creator, then groups, then users, then
// properties. The first match wins.
func (a *Authorizer) matches(ctx context.Context, rule policy.Rule, actor model.Actor, item model.Item) (bool, error) {
	if rule.CreatorAllowed && !actor.IsAnonymous() && a.creators != nil {
		creator, err := a.creators.Creator(ctx, item)
		if err != nil {
			return false, fmt.Errorf("creator of %s: %w", item.FullName(), err)
		}
		if creator != "" && creator == actor.Name {
			return true, nil
		}
	}

	for _, g := range rule.Groups {
		if actor.InGroup(g) {
			return true, nil
		}
	}

	if !actor.IsAnonymous() {
		for _, u := range rule.Users {
			if strings.EqualFold(u, actor.Name) {
				return true, nil
			}
		}
	}

	if len(rule.Properties) == 0 {
		return false, nil
	}
	if a.properties == nil {
		return false, ErrPropertyLookupUnavailable
	}
	if actor.IsAnonymous() {
		return false, nil
	}
	for _, p := range rule.Properties {
		names, err := a.properties.PropertyActors(ctx, p, item)
		if err != nil {
			return false, fmt.Errorf("property %s of %s: %w", p, item.FullName(), err)
		}
		for _, n := range names {
			if strings.EqualFold(n, actor.Name) {
				return true, nil
			}
		}
	}
	return false, nil
}

// ownsUserPage matches "User:Alice" and "User talk:Alice/Drafts" for Alice.
func ownsUserPage(actor model.Actor, item model.Item) bool {
	return !actor.IsAnonymous() && item.Namespace.IsUserSpace() && item.BaseName() == actor.Name
}
