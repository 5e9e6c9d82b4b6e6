package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// fakeSession is a minimal Session for registry tests.
type fakeSession struct {
	id    string
	dirty bool
}

func (f *fakeSession) SessionID() string               { return f.id }
func (f *fakeSession) HasUnsavedChanges() bool         { return f.dirty }
func (f *fakeSession) ApplyExternalContent(string)     {}
func (f *fakeSession) NotifyAgentUpdate(string)        {}

func TestRegistry_AttachDetach(t *testing.T) {
	r := NewRegistry()

	r.Attach("n1", &fakeSession{id: "s1"})
	r.Attach("n1", &fakeSession{id: "s2"})

	assert.Equal(t, 2, r.Count("n1"))
	assert.Len(t, r.ForNote("n1"), 2)

	r.Detach("n1", "s1")
	assert.Equal(t, 1, r.Count("n1"))

	r.Detach("n1", "s2")
	assert.Zero(t, r.Count("n1"))
}

func TestRegistry_AttachSameIDReplaces(t *testing.T) {
	r := NewRegistry()

	first := &fakeSession{id: "s1"}
	second := &fakeSession{id: "s1", dirty: true}
	r.Attach("n1", first)
	r.Attach("n1", second)

	assert.Equal(t, 1, r.Count("n1"))
	assert.True(t, r.AnyDirty("n1"))
}

func TestRegistry_AnyDirty(t *testing.T) {
	r := NewRegistry()

	r.Attach("n1", &fakeSession{id: "s1"})
	assert.False(t, r.AnyDirty("n1"))

	r.Attach("n1", &fakeSession{id: "s2", dirty: true})
	assert.True(t, r.AnyDirty("n1"))

	assert.False(t, r.AnyDirty("unknown-note"))
}

func TestRegistry_DetachUnknownIsHarmless(t *testing.T) {
	r := NewRegistry()

	r.Detach("n1", "never-attached")

	assert.Zero(t, r.Count("n1"))
}
