// Package watcher observes a vault directory for note file changes and
// classifies every OS notification as self-caused or genuinely external.
//
// Classification happens at event arrival, before debouncing: a write
// intent for the path means the notification was caused by the engine's own
// disk write and is dropped. Only external events reach subscribers.
package watcher

import (
	"context"
	"time"
)

// Operation represents a file system operation type.
type Operation int

const (
	// OpCreate indicates a new note file was created.
	OpCreate Operation = iota
	// OpModify indicates an existing note file was modified.
	OpModify
	// OpDelete indicates a note file was deleted.
	OpDelete
	// OpRename indicates a note file was renamed.
	OpRename
)

// String returns a human-readable representation of the operation.
func (op Operation) String() string {
	switch op {
	case OpCreate:
		return "CREATE"
	case OpModify:
		return "MODIFY"
	case OpDelete:
		return "DELETE"
	case OpRename:
		return "RENAME"
	default:
		return "UNKNOWN"
	}
}

// Event is an external file change. Path is canonical: absolute and
// symlink-resolved, safe to use as a map key against record paths.
type Event struct {
	// Path is the canonical path of the changed note file.
	Path string

	// Operation is the type of file system operation.
	Operation Operation

	// Timestamp is when the event was detected.
	Timestamp time.Time
}

// IntentChecker reports whether a self-issued disk write is currently in
// flight for a canonical path. Implemented by the write queue's intent
// registry; the watcher only reads, never mutates.
type IntentChecker interface {
	Active(path string) bool
}

// Watcher is the contract for vault watching.
type Watcher interface {
	// Start begins watching the vault root recursively. It blocks until
	// Stop is called or the context is cancelled.
	Start(ctx context.Context, root string) error

	// Stop stops the watcher and releases resources. Safe to call twice.
	Stop() error

	// Events returns batched external change events.
	Events() <-chan []Event

	// Errors returns non-fatal watcher errors; the watcher keeps running.
	Errors() <-chan error
}

// Options configures the watcher behavior.
type Options struct {
	// DebounceWindow is the stability threshold before coalesced events
	// are emitted. Default: 200ms.
	DebounceWindow time.Duration

	// PollInterval is the scan interval for degraded (polling) mode.
	// Default: 5s.
	PollInterval time.Duration

	// EventBufferSize is the size of the event channel buffer.
	// Default: 256.
	EventBufferSize int
}

// DefaultOptions returns the default watcher options.
func DefaultOptions() Options {
	return Options{
		DebounceWindow:  200 * time.Millisecond,
		PollInterval:    5 * time.Second,
		EventBufferSize: 256,
	}
}

// WithDefaults returns options with defaults applied for zero values.
func (o Options) WithDefaults() Options {
	defaults := DefaultOptions()
	if o.DebounceWindow == 0 {
		o.DebounceWindow = defaults.DebounceWindow
	}
	if o.PollInterval == 0 {
		o.PollInterval = defaults.PollInterval
	}
	if o.EventBufferSize == 0 {
		o.EventBufferSize = defaults.EventBufferSize
	}
	return o
}
