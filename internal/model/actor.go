package model

import "strings"

// EveryoneGroup is implicitly held by every actor, including anonymous ones.
const EveryoneGroup = "*"

// Actor is the identity asking to approve.
type Actor struct {
	Name   string   `json:"name"`
	Groups []string `json:"groups"`
}

// Anonymous returns an actor with no name and no explicit groups.
func Anonymous() Actor {
	return Actor{}
}

// IsAnonymous reports whether the actor has no name.
func (a Actor) IsAnonymous() bool {
	return a.Name == ""
}

// InGroup reports whether the actor belongs to group, case-insensitively.
func (a Actor) InGroup(group string) bool {
	group = strings.TrimSpace(group)
	if group == EveryoneGroup {
		return true
	}
	for _, g := range a.Groups {
		if strings.EqualFold(g, group) {
			return true
		}
	}
	return false
}

// Key identifies the actor in request caches.
func (a Actor) Key() string {
	return strings.ToLower(a.Name) + "|" + strings.ToLower(strings.Join(a.Groups, ","))
}
