package writer

import (
	"sync"
	"time"
)

// IntentRegistry tracks self-issued disk writes per path.
//
// An intent is set strictly before the write syscall and cleared strictly
// after it completes, success or failure. Any filesystem notification for a
// path observed while its intent is set is therefore provably self-caused;
// no content-hash matching window is needed. The registry is owned by the
// write queue; the watcher only reads intent presence.
type IntentRegistry struct {
	mu      sync.RWMutex
	intents map[string]time.Time
}

// NewIntentRegistry creates an empty registry.
func NewIntentRegistry() *IntentRegistry {
	return &IntentRegistry{intents: make(map[string]time.Time)}
}

// Begin marks a write intent for the given canonical path.
func (r *IntentRegistry) Begin(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.intents[path] = time.Now()
}

// End clears the write intent for the given canonical path.
func (r *IntentRegistry) End(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.intents, path)
}

// Active reports whether a write intent currently exists for the path.
func (r *IntentRegistry) Active(path string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.intents[path]
	return ok
}

// IssuedAt returns when the intent for a path was set, if one is active.
func (r *IntentRegistry) IssuedAt(path string) (time.Time, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.intents[path]
	return t, ok
}

// Count returns the number of active intents.
func (r *IntentRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.intents)
}
