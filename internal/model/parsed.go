package model

// Property is one semantic annotation, e.g. [[Reviewer::User:Alice]].
type Property struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// ParsedPage is the structural output of rendering page text: what the
// indexer stores for links, categories, properties and search.
type ParsedPage struct {
	Links          []string   `json:"links"`
	Categories     []string   `json:"categories"`
	Properties     []Property `json:"properties"`
	ApprovalMarker bool       `json:"approval_marker"`
	SearchText     string     `json:"search_text"`
}
