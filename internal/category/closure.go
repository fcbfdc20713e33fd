// Package category computes the transitive set of categories an item
// belongs to.
package category

import (
	"context"
	"fmt"

	"github.com/ppiankov/approvedrevs/internal/model"
	"github.com/ppiankov/approvedrevs/internal/scope"
)

// LinkSource returns the categories a page is directly placed in.
// Category pages are looked up in model.NSCategory by their name.
type LinkSource interface {
	Categories(ctx context.Context, ns model.NamespaceID, name string) ([]string, error)
}

// Resolver walks the category graph upwards.
type Resolver struct {
	links LinkSource
}

// NewResolver creates a Resolver backed by links.
func NewResolver(links LinkSource) *Resolver {
	return &Resolver{links: links}
}

// Closure returns every category reachable from the item: its direct
// categories, their parents, and so on. Each name appears once, in
// breadth-first discovery order. Cycles in the graph are tolerated.
func (r *Resolver) Closure(ctx context.Context, item model.Item) ([]string, error) {
	direct, err := r.links.Categories(ctx, item.Namespace, item.Name)
	if err != nil {
		return nil, fmt.Errorf("categories of %s: %w", item.FullName(), err)
	}

	var out []string
	visited := make(map[string]bool)
	queue := make([]string, 0, len(direct))
	for _, c := range direct {
		c = model.NormalizeTitle(c)
		if c == "" || visited[c] {
			continue
		}
		visited[c] = true
		queue = append(queue, c)
	}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		out = append(out, current)

		parents, err := r.links.Categories(ctx, model.NSCategory, current)
		if err != nil {
			return nil, fmt.Errorf("parents of category %s: %w", current, err)
		}
		for _, p := range parents {
			p = model.NormalizeTitle(p)
			if p == "" || visited[p] {
				continue
			}
			visited[p] = true
			queue = append(queue, p)
		}
	}
	return out, nil
}

// InScope returns the item's closure, memoized in sc for the request.
func (r *Resolver) InScope(ctx context.Context, sc *scope.Scope, item model.Item) ([]string, error) {
	if c, ok := sc.Closure(item.ID); ok {
		return c, nil
	}
	c, err := r.Closure(ctx, item)
	if err != nil {
		return nil, err
	}
	sc.SetClosure(item.ID, c)
	return c, nil
}
