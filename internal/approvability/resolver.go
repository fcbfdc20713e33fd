// Package approvability decides whether an item takes part in the approval
// workflow at all, independent of who may approve it.
package approvability

import (
	"context"
	"fmt"

	"github.com/ppiankov/approvedrevs/internal/model"
	"github.com/ppiankov/approvedrevs/internal/policy"
	"github.com/ppiankov/approvedrevs/internal/scope"
)

// OverrideFunc lets external policy force the answer for an item.
// When decided is false the resolver continues with its own checks.
type OverrideFunc func(ctx context.Context, item model.Item) (approvable, decided bool)

// RegistrySource yields the current permission registry.
type RegistrySource interface {
	Registry() (*policy.Registry, error)
}

// ClosureSource yields the category closure of an item within a request.
type ClosureSource interface {
	InScope(ctx context.Context, sc *scope.Scope, item model.Item) ([]string, error)
}

// MarkerLookup reports the legacy in-content approval marker of a page.
type MarkerLookup interface {
	HasApprovalMarker(ctx context.Context, item model.Item) (bool, error)
}

// RecordLookup reports whether approval records exist.
type RecordLookup interface {
	HasApprovalRecord(ctx context.Context, itemID int64) (bool, error)
	HasFileApprovalRecord(ctx context.Context, fileKey string) (bool, error)
}

// Resolver answers IsApprovable and MediaIsApprovable.
type Resolver struct {
	registry  RegistrySource
	closures  ClosureSource
	markers   MarkerLookup
	records   RecordLookup
	overrides []OverrideFunc
}

// NewResolver creates a Resolver. markers may be nil when the host has no
// legacy marker support.
func NewResolver(registry RegistrySource, closures ClosureSource, markers MarkerLookup, records RecordLookup) *Resolver {
	return &Resolver{
		registry: registry,
		closures: closures,
		markers:  markers,
		records:  records,
	}
}

// AddOverride registers an override hook. Hooks run in registration order;
// the first one that decides wins.
func (r *Resolver) AddOverride(fn OverrideFunc) {
	r.overrides = append(r.overrides, fn)
}

// IsApprovable reports whether a page is under the approval policy.
// The answer is memoized in sc.
func (r *Resolver) IsApprovable(ctx context.Context, sc *scope.Scope, item model.Item) (bool, error) {
	if v, ok := sc.Approvable(item.ID); ok {
		return v, nil
	}
	v, err := r.resolve(ctx, sc, item, false, true)
	if err != nil {
		return false, err
	}
	sc.SetApprovable(item.ID, v)
	return v, nil
}

// MediaIsApprovable reports whether a file is under the approval policy.
// Files have no in-content marker and are backed by file approval records.
func (r *Resolver) MediaIsApprovable(ctx context.Context, sc *scope.Scope, item model.Item) (bool, error) {
	if v, ok := sc.MediaApprovable(item.ID); ok {
		return v, nil
	}
	v, err := r.resolve(ctx, sc, item, true, true)
	if err != nil {
		return false, err
	}
	sc.SetMediaApprovable(item.ID, v)
	return v, nil
}

// PolicyApprovable is IsApprovable without the existing-record fallback:
// it reports whether current policy, overrides or the legacy marker put
// the item under approval. Listings use it to find stale records.
func (r *Resolver) PolicyApprovable(ctx context.Context, sc *scope.Scope, item model.Item, media bool) (bool, error) {
	return r.resolve(ctx, sc, item, media, false)
}

func (r *Resolver) resolve(ctx context.Context, sc *scope.Scope, item model.Item, media, withRecords bool) (bool, error) {
	if !item.Exists {
		return false, nil
	}

	for _, hook := range r.overrides {
		if v, decided := hook(ctx, item); decided {
			return v, nil
		}
	}

	covered, err := r.Covered(ctx, sc, item)
	if err != nil {
		return false, err
	}
	if covered {
		return true, nil
	}

	if !withRecords && (media || item.Namespace.IsBanned()) {
		return false, nil
	}

	if media {
		ok, err := r.records.HasFileApprovalRecord(ctx, item.DBKey())
		if err != nil {
			return false, fmt.Errorf("file approval record of %s: %w", item.FullName(), err)
		}
		return ok, nil
	}

	if item.Namespace.IsBanned() {
		return false, nil
	}

	if r.markers != nil {
		marked, err := r.markers.HasApprovalMarker(ctx, item)
		if err != nil {
			return false, fmt.Errorf("approval marker of %s: %w", item.FullName(), err)
		}
		if marked {
			return true, nil
		}
	}

	if !withRecords {
		return false, nil
	}
	ok, err := r.records.HasApprovalRecord(ctx, item.ID)
	if err != nil {
		return false, fmt.Errorf("approval record of %s: %w", item.FullName(), err)
	}
	return ok, nil
}

// Covered reports whether any policy zone explicitly governs the item:
// its namespace, one of its categories, or its full name.
func (r *Resolver) Covered(ctx context.Context, sc *scope.Scope, item model.Item) (bool, error) {
	reg, err := r.registry.Registry()
	if err != nil {
		return false, fmt.Errorf("permission registry: %w", err)
	}
	if reg.Covers(item, nil) {
		return true, nil
	}
	if !reg.HasCategoryRules() {
		return false, nil
	}
	closure, err := r.closures.InScope(ctx, sc, item)
	if err != nil {
		return false, err
	}
	return reg.Covers(item, closure), nil
}
