// Package session defines the editor session contract the engine talks to
// and a registry of open sessions per note.
//
// Sessions are external collaborators (open editor views); the engine only
// queries whether they hold unsaved edits and pushes refreshed content.
package session

import (
	"sync"
)

// Session is an open editor view of a note. It may hold unsaved edits; the
// engine must ask before silently overwriting it.
type Session interface {
	// SessionID identifies the view, so a session can recognize and skip
	// events it originated itself.
	SessionID() string

	// HasUnsavedChanges reports whether the view holds edits not yet
	// written through the engine.
	HasUnsavedChanges() bool

	// ApplyExternalContent silently refreshes the view with content that
	// changed outside it (external edit or another session's write).
	ApplyExternalContent(content string)

	// NotifyAgentUpdate refreshes the view with agent-authored content.
	// Agent updates are authoritative; the user expects to see them.
	NotifyAgentUpdate(content string)
}

// Registry tracks which sessions have which notes open.
type Registry struct {
	mu sync.RWMutex
	// byNote maps note id to session id to session.
	byNote map[string]map[string]Session
}

// NewRegistry creates an empty session registry.
func NewRegistry() *Registry {
	return &Registry{byNote: make(map[string]map[string]Session)}
}

// Attach registers a session as viewing a note.
func (r *Registry) Attach(noteID string, s Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sessions, ok := r.byNote[noteID]
	if !ok {
		sessions = make(map[string]Session)
		r.byNote[noteID] = sessions
	}
	sessions[s.SessionID()] = s
}

// Detach removes a session from a note.
func (r *Registry) Detach(noteID, sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sessions, ok := r.byNote[noteID]
	if !ok {
		return
	}
	delete(sessions, sessionID)
	if len(sessions) == 0 {
		delete(r.byNote, noteID)
	}
}

// ForNote returns the sessions currently viewing a note.
func (r *Registry) ForNote(noteID string) []Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sessions := r.byNote[noteID]
	out := make([]Session, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, s)
	}
	return out
}

// AnyDirty reports whether any session viewing the note has unsaved edits.
func (r *Registry) AnyDirty(noteID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, s := range r.byNote[noteID] {
		if s.HasUnsavedChanges() {
			return true
		}
	}
	return false
}

// Count returns the number of sessions attached to a note.
func (r *Registry) Count(noteID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byNote[noteID])
}
