package policy

import "testing"

func FuzzParseConfig(f *testing.F) {
	f.Add([]byte(DefaultConfigYAML()))
	f.Add([]byte(`namespace_permissions:
  "0": {}
  "-1": {}
  Nope: {group: x}
`))
	f.Add([]byte(`category_permissions:
  Category:Needs_review: {user: [a, a, ""], creator: yes, override: 1}
`))
	f.Add([]byte(`all_pages: [1, 2]`))
	f.Add([]byte{})

	f.Fuzz(func(t *testing.T, data []byte) {
		cfg, err := ParseConfig(data)
		if err != nil {
			return
		}
		// Whatever parses must normalize without panicking.
		reg := NewRegistry(cfg, hashBytes(data))
		_ = reg.HasPropertyRules()
		for _, ns := range reg.NamespaceIDs() {
			if _, ok := reg.NamespaceRule(ns); !ok {
				t.Fatalf("namespace %d listed but has no rule", ns)
			}
		}
	})
}
