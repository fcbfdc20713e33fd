package model

import "strings"

// NamespaceID identifies a content namespace.
type NamespaceID int

// Canonical namespace ids.
const (
	NSMain          NamespaceID = 0
	NSTalk          NamespaceID = 1
	NSUser          NamespaceID = 2
	NSUserTalk      NamespaceID = 3
	NSProject       NamespaceID = 4
	NSProjectTalk   NamespaceID = 5
	NSFile          NamespaceID = 6
	NSFileTalk      NamespaceID = 7
	NSMediaWiki     NamespaceID = 8
	NSMediaWikiTalk NamespaceID = 9
	NSTemplate      NamespaceID = 10
	NSTemplateTalk  NamespaceID = 11
	NSHelp          NamespaceID = 12
	NSHelpTalk      NamespaceID = 13
	NSCategory      NamespaceID = 14
	NSCategoryTalk  NamespaceID = 15
)

// NamespaceNotFound is returned for namespace names that do not resolve.
// Zone entries keyed by it never match an item.
const NamespaceNotFound NamespaceID = -1

var canonicalNamespaces = map[NamespaceID]string{
	NSMain:          "",
	NSTalk:          "Talk",
	NSUser:          "User",
	NSUserTalk:      "User talk",
	NSProject:       "Project",
	NSProjectTalk:   "Project talk",
	NSFile:          "File",
	NSFileTalk:      "File talk",
	NSMediaWiki:     "MediaWiki",
	NSMediaWikiTalk: "MediaWiki talk",
	NSTemplate:      "Template",
	NSTemplateTalk:  "Template talk",
	NSHelp:          "Help",
	NSHelpTalk:      "Help talk",
	NSCategory:      "Category",
	NSCategoryTalk:  "Category talk",
}

// bannedNamespaces hold items that only become approvable through explicit
// zone configuration: file description pages, interface messages, categories.
var bannedNamespaces = map[NamespaceID]bool{
	NSFile:      true,
	NSMediaWiki: true,
	NSCategory:  true,
}

// IsBanned reports whether ns is in the banned set.
func (ns NamespaceID) IsBanned() bool {
	return bannedNamespaces[ns]
}

// IsUserSpace reports whether ns is the User or User talk namespace.
func (ns NamespaceID) IsUserSpace() bool {
	return ns == NSUser || ns == NSUserTalk
}

// Name returns the canonical namespace prefix ("" for main).
func (ns NamespaceID) Name() string {
	return canonicalNamespaces[ns]
}

// NamespaceFromName resolves a canonical namespace name to its id.
// "Main" and "" resolve to the main namespace; underscores and case of the
// first letter are normalized. Unknown names yield NamespaceNotFound.
func NamespaceFromName(name string) NamespaceID {
	name = strings.TrimSpace(strings.ReplaceAll(name, "_", " "))
	if name == "" || strings.EqualFold(name, "Main") {
		return NSMain
	}
	for id, canonical := range canonicalNamespaces {
		if canonical != "" && strings.EqualFold(canonical, name) {
			return id
		}
	}
	return NamespaceNotFound
}

// SplitTitle splits "Ns:Name" into namespace and name. Prefixes that are not
// a known namespace stay part of the name in the main namespace.
func SplitTitle(title string) (NamespaceID, string) {
	title = NormalizeTitle(title)
	if i := strings.Index(title, ":"); i > 0 {
		if ns := NamespaceFromName(title[:i]); ns != NamespaceNotFound && ns != NSMain {
			return ns, NormalizeTitle(title[i+1:])
		}
	}
	return NSMain, title
}

// NormalizeTitle converts underscores to spaces, trims, and upper-cases the
// first letter.
func NormalizeTitle(s string) string {
	s = strings.TrimSpace(strings.ReplaceAll(s, "_", " "))
	if s == "" {
		return s
	}
	r := []rune(s)
	r[0] = []rune(strings.ToUpper(string(r[0])))[0]
	return string(r)
}
