package wiki

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ppiankov/approvedrevs/internal/model"
)

func TestRenderLinksAndCategories(t *testing.T) {
	out := NewRenderer().Render("See [[help:editing_tips|the tips]] and [[Main Page]].\n[[Category:Needs review]] [[category:needs_review]] [[:Category:Drafts]]")

	assert.Equal(t, []string{"Help:Editing tips", "Main Page", "Category:Drafts"}, out.Links)
	assert.Equal(t, []string{"Needs review"}, out.Categories)
	assert.Equal(t, "See the tips and Main Page. Category:Drafts", out.SearchText)
	assert.False(t, out.ApprovalMarker)
}

func TestRenderProperties(t *testing.T) {
	out := NewRenderer().Render("Owned by [[reviewer::User:Alice]] and [[Reviewer::User:Bob|Bob]].")

	assert.Equal(t, []model.Property{
		{Name: "Reviewer", Value: "User:Alice"},
		{Name: "Reviewer", Value: "User:Bob"},
	}, out.Properties)
	assert.Equal(t, "Owned by User:Alice and Bob.", out.SearchText)
	assert.Empty(t, out.Links)
}

func TestRenderMarker(t *testing.T) {
	out := NewRenderer().Render("__APPROVEDREVS__ Body text")
	assert.True(t, out.ApprovalMarker)
	assert.Equal(t, "Body text", out.SearchText)
}

func TestRenderBlank(t *testing.T) {
	out := NewRenderer().Render("")
	assert.Empty(t, out.Links)
	assert.Empty(t, out.Categories)
	assert.Empty(t, out.Properties)
	assert.Equal(t, "", out.SearchText)
}
