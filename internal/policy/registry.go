package policy

import (
	"sort"
	"strconv"
	"strings"

	"github.com/ppiankov/approvedrevs/internal/model"
)

// Rule is a normalized zone rule.
type Rule struct {
	Groups         []string `json:"groups"`
	Users          []string `json:"users"`
	Properties     []string `json:"properties"`
	CreatorAllowed bool     `json:"creator"`
	Override       bool     `json:"override"`
}

// NormalizeRule fills in defaults: empty lists, creator false, override true.
func NormalizeRule(r RawRule) Rule {
	rule := Rule{
		Groups:     dedupe(r.Group),
		Users:      dedupe(r.User),
		Properties: dedupe(r.Property),
		Override:   true,
	}
	if r.Creator.Set {
		rule.CreatorAllowed = r.Creator.Value
	}
	if r.Override.Set {
		rule.Override = r.Override.Value
	}
	return rule
}

func dedupe(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}

// Registry is the immutable, normalized permission structure.
// Build it once with NewRegistry; never mutate it afterwards.
type Registry struct {
	allPages   Rule
	namespaces map[model.NamespaceID]Rule
	categories map[string]Rule
	pages      map[string]Rule

	namespaceIDs  []model.NamespaceID
	categoryNames []string
	pageNames     []string

	unresolved []string
	hash       string
}

// NewRegistry normalizes cfg. Namespace keys may be canonical names or
// numeric ids; names that do not resolve are recorded in Unresolved and never
// match. Category keys drop any "Category:" prefix. Page keys are normalized
// to their fully-qualified title.
func NewRegistry(cfg *PolicyConfig, hash string) *Registry {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	r := &Registry{
		allPages:   NormalizeRule(cfg.AllPages),
		namespaces: make(map[model.NamespaceID]Rule, len(cfg.NamespacePermissions)),
		categories: make(map[string]Rule, len(cfg.CategoryPermissions)),
		pages:      make(map[string]Rule, len(cfg.PagePermissions)),
		hash:       hash,
	}

	for _, key := range sortedKeys(cfg.NamespacePermissions) {
		ns := resolveNamespaceKey(key)
		if ns == model.NamespaceNotFound {
			r.unresolved = append(r.unresolved, key)
			continue
		}
		r.namespaces[ns] = NormalizeRule(cfg.NamespacePermissions[key])
	}
	for _, key := range sortedKeys(cfg.CategoryPermissions) {
		name := NormalizeCategory(key)
		if name == "" {
			continue
		}
		r.categories[name] = NormalizeRule(cfg.CategoryPermissions[key])
	}
	for _, key := range sortedKeys(cfg.PagePermissions) {
		ns, name := model.SplitTitle(key)
		if name == "" {
			continue
		}
		full := model.Item{Namespace: ns, Name: name}.FullName()
		r.pages[full] = NormalizeRule(cfg.PagePermissions[key])
	}

	for ns := range r.namespaces {
		r.namespaceIDs = append(r.namespaceIDs, ns)
	}
	sort.Slice(r.namespaceIDs, func(i, j int) bool { return r.namespaceIDs[i] < r.namespaceIDs[j] })
	r.categoryNames = sortedKeys(r.categories)
	r.pageNames = sortedKeys(r.pages)
	return r
}

func resolveNamespaceKey(key string) model.NamespaceID {
	if id, err := strconv.Atoi(strings.TrimSpace(key)); err == nil {
		if model.NamespaceID(id).Name() != "" || id == int(model.NSMain) {
			return model.NamespaceID(id)
		}
		return model.NamespaceNotFound
	}
	return model.NamespaceFromName(key)
}

// NormalizeCategory strips a "Category:" prefix and normalizes the title.
func NormalizeCategory(name string) string {
	name = strings.TrimSpace(name)
	if i := strings.Index(name, ":"); i > 0 {
		if model.NamespaceFromName(name[:i]) == model.NSCategory {
			name = name[i+1:]
		}
	}
	return model.NormalizeTitle(name)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Hash returns the policy hash the registry was built from.
func (r *Registry) Hash() string { return r.hash }

// Unresolved returns namespace keys that did not resolve to a namespace.
func (r *Registry) Unresolved() []string { return append([]string(nil), r.unresolved...) }

// AllPages returns the rule that applies to every item.
func (r *Registry) AllPages() Rule { return r.allPages }

// NamespaceIDs returns the configured namespace ids in ascending order.
func (r *Registry) NamespaceIDs() []model.NamespaceID {
	return append([]model.NamespaceID(nil), r.namespaceIDs...)
}

// CategoryNames returns the configured category names, sorted.
func (r *Registry) CategoryNames() []string { return append([]string(nil), r.categoryNames...) }

// PageNames returns the configured fully-qualified page names, sorted.
func (r *Registry) PageNames() []string { return append([]string(nil), r.pageNames...) }

// NamespaceRule returns the rule configured for ns.
func (r *Registry) NamespaceRule(ns model.NamespaceID) (Rule, bool) {
	rule, ok := r.namespaces[ns]
	return rule, ok
}

// CategoryRule returns the rule configured for a category name.
func (r *Registry) CategoryRule(name string) (Rule, bool) {
	rule, ok := r.categories[NormalizeCategory(name)]
	return rule, ok
}

// PageRule returns the rule configured for the item's fully-qualified name.
func (r *Registry) PageRule(item model.Item) (Rule, bool) {
	rule, ok := r.pages[item.FullName()]
	return rule, ok
}

// CoversNamespace reports whether ns is in the namespace zone.
func (r *Registry) CoversNamespace(ns model.NamespaceID) bool {
	_, ok := r.namespaces[ns]
	return ok
}

// CoversPage reports whether the item's fully-qualified name is in the page zone.
func (r *Registry) CoversPage(item model.Item) bool {
	_, ok := r.pages[item.FullName()]
	return ok
}

// MatchingCategories returns the members of closure that are configured in
// the category zone, in closure order.
func (r *Registry) MatchingCategories(closure []string) []string {
	var out []string
	for _, c := range closure {
		if _, ok := r.categories[NormalizeCategory(c)]; ok {
			out = append(out, c)
		}
	}
	return out
}

// Covers reports whether any zone explicitly governs the item.
func (r *Registry) Covers(item model.Item, closure []string) bool {
	return r.CoversNamespace(item.Namespace) ||
		len(r.MatchingCategories(closure)) > 0 ||
		r.CoversPage(item)
}

// HasCategoryRules reports whether the category zone is non-empty.
func (r *Registry) HasCategoryRules() bool { return len(r.categories) > 0 }

// HasPropertyRules reports whether any rule names a property.
func (r *Registry) HasPropertyRules() bool {
	if len(r.allPages.Properties) > 0 {
		return true
	}
	for _, zone := range []map[string]Rule{r.categories, r.pages} {
		for _, rule := range zone {
			if len(rule.Properties) > 0 {
				return true
			}
		}
	}
	for _, rule := range r.namespaces {
		if len(rule.Properties) > 0 {
			return true
		}
	}
	return false
}
