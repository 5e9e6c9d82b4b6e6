// Package index provides the full-text search collaborator consumed by the
// sync engine. The engine only reindexes and removes; query internals stay
// behind this package boundary.
package index

import (
	"fmt"
	"os"

	"github.com/blevesearch/bleve/v2"

	"github.com/flint-notes/flint/internal/errors"
	"github.com/flint-notes/flint/internal/note"
)

// Index is the contract the engine depends on. Reindex is called after
// every database write and every external reconciliation.
type Index interface {
	Reindex(noteID, content string) error
	Remove(noteID string) error
	Close() error
}

// Disabled is a no-op Index used when search is turned off in config.
type Disabled struct{}

var _ Index = Disabled{}

func (Disabled) Reindex(string, string) error { return nil }
func (Disabled) Remove(string) error          { return nil }
func (Disabled) Close() error                 { return nil }

// noteDoc is the shape indexed per note.
type noteDoc struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// Bleve is a bleve-backed Index.
type Bleve struct {
	idx bleve.Index
}

var _ Index = (*Bleve)(nil)

// Open opens (or creates) a bleve index at the given path.
// An empty path creates an in-memory index for testing.
func Open(path string) (*Bleve, error) {
	mapping := bleve.NewIndexMapping()

	if path == "" {
		idx, err := bleve.NewMemOnly(mapping)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeIndexFailed, err)
		}
		return &Bleve{idx: idx}, nil
	}

	idx, err := bleve.Open(path)
	if err == bleve.ErrorIndexPathDoesNotExist {
		idx, err = bleve.New(path, mapping)
	}
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeIndexFailed, err)
	}
	return &Bleve{idx: idx}, nil
}

// Reindex replaces the indexed document for a note.
func (b *Bleve) Reindex(noteID, content string) error {
	doc := noteDoc{
		Title:   note.TitleFromContent("", content),
		Content: content,
	}
	if err := b.idx.Index(noteID, doc); err != nil {
		return errors.Wrap(errors.ErrCodeIndexFailed, err)
	}
	return nil
}

// Remove drops a note from the index.
func (b *Bleve) Remove(noteID string) error {
	if err := b.idx.Delete(noteID); err != nil {
		return errors.Wrap(errors.ErrCodeIndexFailed, err)
	}
	return nil
}

// Search runs a match query over note content and returns matching note ids
// ranked by score. Used by the CLI, not the engine.
func (b *Bleve) Search(query string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 10
	}

	req := bleve.NewSearchRequest(bleve.NewMatchQuery(query))
	req.Size = limit

	res, err := b.idx.Search(req)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeIndexFailed, err)
	}

	ids := make([]string, 0, len(res.Hits))
	for _, hit := range res.Hits {
		ids = append(ids, hit.ID)
	}
	return ids, nil
}

// DocCount returns the number of indexed notes.
func (b *Bleve) DocCount() (uint64, error) {
	return b.idx.DocCount()
}

// Close closes the index.
func (b *Bleve) Close() error {
	return b.idx.Close()
}

// Destroy removes an on-disk index directory entirely.
func Destroy(path string) error {
	if path == "" {
		return nil
	}
	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("remove index: %w", err)
	}
	return nil
}
