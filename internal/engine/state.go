package engine

import (
	"sync"
)

// SyncState is the per-note synchronization state between the record store
// and the note's file on disk.
type SyncState int

const (
	// StateClean means record and file agree.
	StateClean SyncState = iota
	// StateWritePending means the record moved ahead and a debounced
	// file write is queued.
	StateWritePending
	// StateWriteFailed means the disk write exhausted its retries; the
	// record still holds the accepted content.
	StateWriteFailed
	// StateConflict means a reload-worthy change met unsaved edits and
	// is waiting on user resolution.
	StateConflict
)

// String returns a human-readable representation of the state.
func (s SyncState) String() string {
	switch s {
	case StateClean:
		return "clean"
	case StateWritePending:
		return "write-pending"
	case StateWriteFailed:
		return "write-failed"
	case StateConflict:
		return "conflict"
	default:
		return "unknown"
	}
}

// stateTracker holds per-note sync states. Notes without an entry are clean.
type stateTracker struct {
	mu     sync.RWMutex
	states map[string]SyncState
}

func newStateTracker() *stateTracker {
	return &stateTracker{states: make(map[string]SyncState)}
}

func (t *stateTracker) get(noteID string) SyncState {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.states[noteID]
}

func (t *stateTracker) set(noteID string, s SyncState) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if s == StateClean {
		delete(t.states, noteID)
		return
	}
	t.states[noteID] = s
}

// setIfNot transitions unless the note sits in the given state.
// A conflict is terminal until the user resolves it, so flush completions
// must not silently clear it.
func (t *stateTracker) setIfNot(noteID string, s, unless SyncState) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.states[noteID] == unless {
		return
	}
	if s == StateClean {
		delete(t.states, noteID)
		return
	}
	t.states[noteID] = s
}
