package index

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestIndex(t *testing.T) *Bleve {
	t.Helper()
	idx, err := Open("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func TestReindexAndSearch(t *testing.T) {
	idx := newTestIndex(t)

	require.NoError(t, idx.Reindex("n1", "# Groceries\n\nmilk and eggs"))
	require.NoError(t, idx.Reindex("n2", "# Standup\n\nsprint planning notes"))

	ids, err := idx.Search("milk", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"n1"}, ids)
}

func TestReindex_ReplacesDocument(t *testing.T) {
	idx := newTestIndex(t)

	require.NoError(t, idx.Reindex("n1", "original topic: gardening"))
	require.NoError(t, idx.Reindex("n1", "new topic: astronomy"))

	ids, err := idx.Search("gardening", 10)
	require.NoError(t, err)
	assert.Empty(t, ids, "stale content no longer matches")

	ids, err = idx.Search("astronomy", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"n1"}, ids)
}

func TestRemove_DropsNote(t *testing.T) {
	idx := newTestIndex(t)

	require.NoError(t, idx.Reindex("n1", "ephemeral note"))
	require.NoError(t, idx.Remove("n1"))

	ids, err := idx.Search("ephemeral", 10)
	require.NoError(t, err)
	assert.Empty(t, ids)

	count, err := idx.DocCount()
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestSearch_LimitApplies(t *testing.T) {
	idx := newTestIndex(t)

	require.NoError(t, idx.Reindex("n1", "shared keyword apple"))
	require.NoError(t, idx.Reindex("n2", "shared keyword apple"))
	require.NoError(t, idx.Reindex("n3", "shared keyword apple"))

	ids, err := idx.Search("apple", 2)
	require.NoError(t, err)
	assert.Len(t, ids, 2)
}
