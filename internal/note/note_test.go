package note

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHash_StableAndDistinct(t *testing.T) {
	// Given: two different contents
	h1 := Hash("# Meeting notes\n\nagenda")
	h2 := Hash("# Meeting notes\n\nagenda!")

	// Then: equal content hashes equal, different content differs
	assert.Equal(t, h1, Hash("# Meeting notes\n\nagenda"))
	assert.NotEqual(t, h1, h2)
	assert.Len(t, h1, 64, "sha256 hex digest")
}

func TestNewRecord_HashInvariantHolds(t *testing.T) {
	rec := NewRecord("/vault/n1.md", "n1", "hello")

	require.NotEmpty(t, rec.ID)
	assert.Equal(t, Hash("hello"), rec.ContentHash)
	assert.Equal(t, rec.CreatedAt, rec.UpdatedAt)
}

func TestSetContent_RehashesAndBumpsUpdatedAt(t *testing.T) {
	rec := NewRecord("/vault/n1.md", "n1", "v1")
	before := rec.UpdatedAt

	rec.SetContent("v2")

	assert.Equal(t, "v2", rec.Content)
	assert.Equal(t, Hash("v2"), rec.ContentHash)
	assert.False(t, rec.UpdatedAt.Before(before))
}

func TestClone_IsIndependent(t *testing.T) {
	rec := NewRecord("/vault/n1.md", "n1", "v1")

	clone := rec.Clone()
	clone.SetContent("mutated")

	assert.Equal(t, "v1", rec.Content, "original untouched by clone mutation")
}

func TestParseDocument_FrontMatterAndBody(t *testing.T) {
	raw := []byte("---\ntitle: Groceries\ntags: [home]\n---\n- milk\n- eggs\n")

	doc, err := ParseDocument(raw)

	require.NoError(t, err)
	assert.Equal(t, "Groceries", doc.Meta["title"])
	assert.Equal(t, "- milk\n- eggs\n", doc.Body)
}

func TestParseDocument_NoFrontMatter(t *testing.T) {
	doc, err := ParseDocument([]byte("just text"))

	require.NoError(t, err)
	assert.Empty(t, doc.Meta)
	assert.Equal(t, "just text", doc.Body)
}

func TestParseDocument_UnclosedFenceTreatedAsBody(t *testing.T) {
	raw := "---\ntitle: broken\nno closing fence"

	doc, err := ParseDocument([]byte(raw))

	require.NoError(t, err)
	assert.Equal(t, raw, doc.Body)
}

func TestEncode_RoundTripsFrontMatter(t *testing.T) {
	doc := &Document{
		Meta: Metadata{"title": "Groceries"},
		Body: "- milk\n",
	}

	out, err := doc.Encode()
	require.NoError(t, err)

	parsed, err := ParseDocument(out)
	require.NoError(t, err)
	assert.Equal(t, "Groceries", parsed.Meta["title"])
	assert.Equal(t, "- milk\n", parsed.Body)
}

func TestTitleFromContent_Precedence(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"front matter wins", "---\ntitle: From Meta\n---\n# From Heading\n", "From Meta"},
		{"heading next", "# From Heading\n\nbody", "From Heading"},
		{"filename fallback", "plain body", "n1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, TitleFromContent("/vault/n1.md", tt.content))
		})
	}
}
