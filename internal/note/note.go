// Package note defines the note record model shared by the store, the
// write queue, and the reconciliation engine.
package note

import (
	"time"

	"github.com/google/uuid"
)

// Record is the single source of truth for a note's content.
// It is owned by the store; every read is served from it, never from disk.
// Invariant: ContentHash == Hash(Content) after every accepted mutation.
type Record struct {
	// ID is the stable note identifier (UUID).
	ID string

	// Path is the canonical absolute path of the note's markdown file.
	Path string

	// Title is the display title, derived from front matter or filename.
	Title string

	// Content is the full markdown source including front matter.
	Content string

	// ContentHash is the digest of Content used for optimistic concurrency.
	ContentHash string

	// CreatedAt is when the record was first created.
	CreatedAt time.Time

	// UpdatedAt is when the content was last mutated.
	UpdatedAt time.Time
}

// NewRecord creates a record for a note at the given canonical path.
func NewRecord(path, title, content string) *Record {
	now := time.Now().UTC()
	return &Record{
		ID:          uuid.NewString(),
		Path:        path,
		Title:       title,
		Content:     content,
		ContentHash: Hash(content),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// SetContent replaces the content, rehashes, and bumps UpdatedAt.
func (r *Record) SetContent(content string) {
	r.Content = content
	r.ContentHash = Hash(content)
	r.UpdatedAt = time.Now().UTC()
}

// Clone returns a copy of the record. The store hands out clones so cached
// records cannot be mutated behind its back.
func (r *Record) Clone() *Record {
	c := *r
	return &c
}
