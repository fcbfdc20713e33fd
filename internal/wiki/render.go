package wiki

import (
	"context"
	"regexp"
	"strings"

	"github.com/ppiankov/approvedrevs/internal/model"
)

// ApprovalMarker is the legacy in-content directive that opts a page into
// the approval workflow.
const ApprovalMarker = "__APPROVEDREVS__"

// MarkerProp is the page property the marker is persisted as.
const MarkerProp = "approvedrevs"

var (
	linkPattern  = regexp.MustCompile(`\[\[([^\[\]|]+)(?:\|([^\[\]]*))?\]\]`)
	spacePattern = regexp.MustCompile(`\s+`)
)

// Renderer extracts structure from wikitext: links, category memberships,
// semantic properties and the approval marker.
type Renderer struct{}

// NewRenderer creates a Renderer.
func NewRenderer() *Renderer { return &Renderer{} }

// Render parses text.
//
//	[[Target]] and [[Target|label]]   link to Target
//	[[Category:X]]                    membership in X
//	[[:Category:X]]                   plain link to the category page
//	[[Property::Value]]               semantic annotation
func (r *Renderer) Render(text string) model.ParsedPage {
	out := model.ParsedPage{
		Links:      []string{},
		Categories: []string{},
		Properties: []model.Property{},
	}
	seenLinks := map[string]bool{}
	seenCats := map[string]bool{}

	if strings.Contains(text, ApprovalMarker) {
		out.ApprovalMarker = true
		text = strings.ReplaceAll(text, ApprovalMarker, "")
	}

	visible := linkPattern.ReplaceAllStringFunc(text, func(m string) string {
		parts := linkPattern.FindStringSubmatch(m)
		target, label := strings.TrimSpace(parts[1]), parts[2]

		if name, value, ok := strings.Cut(target, "::"); ok {
			name, value = model.NormalizeTitle(name), strings.TrimSpace(value)
			if name != "" && value != "" {
				out.Properties = append(out.Properties, model.Property{Name: name, Value: value})
			}
			if label != "" {
				return label
			}
			return value
		}

		forced := strings.HasPrefix(target, ":")
		target = strings.TrimPrefix(target, ":")
		ns, name := model.SplitTitle(target)
		if name == "" {
			return m
		}
		if ns == model.NSCategory && !forced {
			if !seenCats[name] {
				seenCats[name] = true
				out.Categories = append(out.Categories, name)
			}
			return ""
		}

		full := model.Item{Namespace: ns, Name: name}.FullName()
		if !seenLinks[full] {
			seenLinks[full] = true
			out.Links = append(out.Links, full)
		}
		if label != "" {
			return label
		}
		return target
	})

	out.SearchText = strings.TrimSpace(spacePattern.ReplaceAllString(visible, " "))
	return out
}

// Render implements the engine's renderer on top of Renderer.
func (w *Wiki) Render(_ context.Context, _ model.Item, text string) (model.ParsedPage, error) {
	return w.renderer.Render(text), nil
}
