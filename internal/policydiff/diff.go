// Package policydiff compares two approval policies zone by zone.
package policydiff

import (
	"fmt"
	"slices"
	"strings"

	"github.com/ppiankov/approvedrevs/internal/model"
	"github.com/ppiankov/approvedrevs/internal/policy"
)

// Zone names as they appear in policy.yaml.
const (
	ZoneAllPages   = "all_pages"
	ZoneNamespaces = "namespace_permissions"
	ZoneCategories = "category_permissions"
	ZonePages      = "page_permissions"
)

// RuleChange is a zone entry that was added, removed or changed.
type RuleChange struct {
	Type string `json:"type"` // "added", "removed", "changed"
	Zone string `json:"zone"`
	Key  string `json:"key"`
	Old  string `json:"old,omitempty"`
	New  string `json:"new,omitempty"`
	// Comment says whether the approver set grew or shrank.
	Comment string `json:"comment,omitempty"`
}

// DiffResult holds the comparison of two policies.
type DiffResult struct {
	OldPath     string       `json:"old_path"`
	NewPath     string       `json:"new_path"`
	RuleChanges []RuleChange `json:"rule_changes"`
	HasChanges  bool         `json:"has_changes"`
}

// Diff compares two registries. Entries are compared after normalization,
// so "Category:Foo" and "foo" are the same category key.
func Diff(old, new *policy.Registry) *DiffResult {
	r := &DiffResult{}

	oldAll, newAll := old.AllPages(), new.AllPages()
	if RuleLabel(oldAll) != RuleLabel(newAll) {
		r.RuleChanges = append(r.RuleChanges, RuleChange{
			Type:    "changed",
			Zone:    ZoneAllPages,
			Old:     RuleLabel(oldAll),
			New:     RuleLabel(newAll),
			Comment: approverComment(oldAll, newAll),
		})
	}

	diffZone(r, ZoneNamespaces, namespaceKeys(old), namespaceKeys(new),
		namespaceRule(old), namespaceRule(new))
	diffZone(r, ZoneCategories, old.CategoryNames(), new.CategoryNames(),
		old.CategoryRule, new.CategoryRule)
	diffZone(r, ZonePages, old.PageNames(), new.PageNames(),
		pageRule(old), pageRule(new))

	r.HasChanges = len(r.RuleChanges) > 0
	return r
}

type lookup func(key string) (policy.Rule, bool)

func diffZone(r *DiffResult, zone string, oldKeys, newKeys []string, oldRule, newRule lookup) {
	for _, k := range newKeys {
		nr, _ := newRule(k)
		or, existed := oldRule(k)
		switch {
		case !existed:
			r.RuleChanges = append(r.RuleChanges, RuleChange{
				Type: "added", Zone: zone, Key: k, New: RuleLabel(nr),
			})
		case RuleLabel(or) != RuleLabel(nr):
			r.RuleChanges = append(r.RuleChanges, RuleChange{
				Type: "changed", Zone: zone, Key: k,
				Old: RuleLabel(or), New: RuleLabel(nr),
				Comment: approverComment(or, nr),
			})
		}
	}
	for _, k := range oldKeys {
		if _, ok := newRule(k); ok {
			continue
		}
		or, _ := oldRule(k)
		r.RuleChanges = append(r.RuleChanges, RuleChange{
			Type: "removed", Zone: zone, Key: k, Old: RuleLabel(or),
		})
	}
}

func namespaceKeys(reg *policy.Registry) []string {
	ids := reg.NamespaceIDs()
	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, namespaceLabel(id))
	}
	return keys
}

func namespaceLabel(id model.NamespaceID) string {
	if id == model.NSMain {
		return "Main"
	}
	return id.Name()
}

func namespaceRule(reg *policy.Registry) lookup {
	return func(key string) (policy.Rule, bool) {
		ns := model.NamespaceFromName(key)
		if ns == model.NamespaceNotFound {
			return policy.Rule{}, false
		}
		return reg.NamespaceRule(ns)
	}
}

func pageRule(reg *policy.Registry) lookup {
	return func(key string) (policy.Rule, bool) {
		ns, name := model.SplitTitle(key)
		return reg.PageRule(model.Item{Namespace: ns, Name: name})
	}
}

// RuleLabel renders a rule in one line, e.g. "group=sysop,editors creator".
// A rule naming no approvers renders as "(no approvers)".
func RuleLabel(rule policy.Rule) string {
	var parts []string
	if len(rule.Groups) > 0 {
		parts = append(parts, "group="+strings.Join(sorted(rule.Groups), ","))
	}
	if len(rule.Users) > 0 {
		parts = append(parts, "user="+strings.Join(sorted(rule.Users), ","))
	}
	if len(rule.Properties) > 0 {
		parts = append(parts, "property="+strings.Join(sorted(rule.Properties), ","))
	}
	if rule.CreatorAllowed {
		parts = append(parts, "creator")
	}
	if !rule.Override {
		parts = append(parts, "override=false")
	}
	if len(parts) == 0 {
		return "(no approvers)"
	}
	return strings.Join(parts, " ")
}

func sorted(in []string) []string {
	out := slices.Clone(in)
	slices.Sort(out)
	return out
}

// approverComment compares the approver sets of two rules.
func approverComment(old, new policy.Rule) string {
	o, n := approvers(old), approvers(new)
	added, removed := 0, 0
	for k := range n {
		if !o[k] {
			added++
		}
	}
	for k := range o {
		if !n[k] {
			removed++
		}
	}
	switch {
	case added > 0 && removed == 0:
		return "wider"
	case removed > 0 && added == 0:
		return "narrower"
	case added > 0:
		return "reshuffled"
	default:
		return ""
	}
}

func approvers(rule policy.Rule) map[string]bool {
	set := make(map[string]bool)
	for _, g := range rule.Groups {
		set["group:"+strings.ToLower(g)] = true
	}
	for _, u := range rule.Users {
		set["user:"+strings.ToLower(u)] = true
	}
	for _, p := range rule.Properties {
		set["property:"+p] = true
	}
	if rule.CreatorAllowed {
		set["creator"] = true
	}
	return set
}

// Summary counts the changes per type, e.g. "2 added, 1 removed".
func (r *DiffResult) Summary() string {
	counts := map[string]int{}
	for _, c := range r.RuleChanges {
		counts[c.Type]++
	}
	var parts []string
	for _, t := range []string{"added", "removed", "changed"} {
		if counts[t] > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", counts[t], t))
		}
	}
	if len(parts) == 0 {
		return "no changes"
	}
	return strings.Join(parts, ", ")
}
