package writer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIntentRegistry_BeginEndLifecycle(t *testing.T) {
	r := NewIntentRegistry()

	// Given: no intent
	assert.False(t, r.Active("/vault/n1.md"))

	// When: a write begins
	r.Begin("/vault/n1.md")

	// Then: the path classifies as internal for the write's duration
	assert.True(t, r.Active("/vault/n1.md"))
	_, ok := r.IssuedAt("/vault/n1.md")
	assert.True(t, ok)

	// When: the write ends
	r.End("/vault/n1.md")

	// Then: a new modification to the path is external again
	assert.False(t, r.Active("/vault/n1.md"))
}

func TestIntentRegistry_PathsAreIndependent(t *testing.T) {
	r := NewIntentRegistry()

	r.Begin("/vault/a.md")
	r.Begin("/vault/b.md")
	r.End("/vault/a.md")

	assert.False(t, r.Active("/vault/a.md"))
	assert.True(t, r.Active("/vault/b.md"))
	assert.Equal(t, 1, r.Count())
}

func TestIntentRegistry_EndWithoutBeginIsHarmless(t *testing.T) {
	r := NewIntentRegistry()

	r.End("/vault/never-started.md")

	assert.Zero(t, r.Count())
}
