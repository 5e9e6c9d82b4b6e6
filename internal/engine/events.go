package engine

import (
	"time"
)

// Source tags every change event with who caused the update.
type Source int

const (
	// SourceUser is an edit made through an editor session.
	SourceUser Source = iota
	// SourceAgent is an edit made by the AI agent's tool calls.
	SourceAgent
	// SourceExternal is an edit observed on disk from outside the app.
	SourceExternal
	// SourceSystem is an engine-originated update (migration, resolution).
	SourceSystem
)

// String returns a human-readable representation of the source.
func (s Source) String() string {
	switch s {
	case SourceUser:
		return "user"
	case SourceAgent:
		return "agent"
	case SourceExternal:
		return "external"
	case SourceSystem:
		return "system"
	default:
		return "unknown"
	}
}

// ChangeEvent is the ephemeral signal delivered to subscribed listeners
// (open editor views) after a note's authoritative content changed.
type ChangeEvent struct {
	// NoteID references the record; the event does not own it.
	NoteID string

	// Path is the note's canonical file path.
	Path string

	// Source is who caused the update.
	Source Source

	// Conflict is set when a reload-worthy change met unsaved edits.
	// The listener must prompt instead of silently refreshing.
	Conflict bool

	// SessionID is the originating session for user edits, so a view can
	// ignore events it caused itself.
	SessionID string

	// Timestamp is when the engine routed the event.
	Timestamp time.Time
}

// Listener receives change events. Listeners must not block.
type Listener func(ChangeEvent)

// Origin describes who is performing a write.
type Origin struct {
	Source    Source
	SessionID string
}

// UserOrigin tags a write as coming from an editor session.
func UserOrigin(sessionID string) Origin {
	return Origin{Source: SourceUser, SessionID: sessionID}
}

// AgentOrigin tags a write as coming from the AI agent.
func AgentOrigin() Origin {
	return Origin{Source: SourceAgent}
}
