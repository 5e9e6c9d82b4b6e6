package watcher

import (
	"context"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// PollingWatcher detects note changes by periodically scanning the vault.
// Used as a degraded-mode fallback when fsnotify is unavailable; external
// edits are detected with up to one poll interval of latency.
type PollingWatcher struct {
	interval  time.Duration
	fileState map[string]fileSnapshot
	events    chan pollEvent
	errors    chan error
	stopCh    chan struct{}
	mu        sync.Mutex
	stopped   bool
	root      string
}

// pollEvent is a raw change observation; classification and normalization
// happen in the VaultWatcher.
type pollEvent struct {
	Path      string
	Operation Operation
}

type fileSnapshot struct {
	modTime time.Time
	size    int64
}

// NewPollingWatcher creates a polling watcher with the given interval.
func NewPollingWatcher(interval time.Duration) *PollingWatcher {
	return &PollingWatcher{
		interval:  interval,
		fileState: make(map[string]fileSnapshot),
		events:    make(chan pollEvent, 100),
		errors:    make(chan error, 10),
		stopCh:    make(chan struct{}),
	}
}

// Start begins polling the vault root. Blocks until Stop or ctx cancel.
func (p *PollingWatcher) Start(ctx context.Context, root string) error {
	p.root = root

	// Baseline scan: existing files produce no events.
	p.mu.Lock()
	p.fileState = p.snapshot()
	p.mu.Unlock()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = p.Stop()
			return ctx.Err()
		case <-p.stopCh:
			return nil
		case <-ticker.C:
			p.detectChanges()
		}
	}
}

// Stop stops the polling watcher. Safe to call multiple times.
func (p *PollingWatcher) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped {
		return nil
	}
	p.stopped = true
	close(p.stopCh)
	close(p.events)
	close(p.errors)
	return nil
}

// Events returns the channel of raw change observations.
func (p *PollingWatcher) Events() <-chan pollEvent {
	return p.events
}

// Errors returns the channel of scan errors.
func (p *PollingWatcher) Errors() <-chan error {
	return p.errors
}

// snapshot walks the vault and records markdown file state.
func (p *PollingWatcher) snapshot() map[string]fileSnapshot {
	state := make(map[string]fileSnapshot)

	_ = filepath.WalkDir(p.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // Skip entries we can't access
		}
		if d.IsDir() {
			if path != p.root && strings.HasPrefix(filepath.Base(path), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !IsMarkdown(path) || strings.HasPrefix(filepath.Base(path), ".") {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}
		state[path] = fileSnapshot{modTime: info.ModTime(), size: info.Size()}
		return nil
	})

	return state
}

// detectChanges diffs the current scan against the previous one.
func (p *PollingWatcher) detectChanges() {
	current := p.snapshot()

	p.mu.Lock()
	defer p.mu.Unlock()

	for path, snap := range current {
		prev, exists := p.fileState[path]
		switch {
		case !exists:
			p.emit(pollEvent{Path: path, Operation: OpCreate})
		case prev.modTime != snap.modTime || prev.size != snap.size:
			p.emit(pollEvent{Path: path, Operation: OpModify})
		}
	}

	for path := range p.fileState {
		if _, exists := current[path]; !exists {
			p.emit(pollEvent{Path: path, Operation: OpDelete})
		}
	}

	p.fileState = current
}

// emit sends an event without blocking. Caller holds p.mu.
func (p *PollingWatcher) emit(event pollEvent) {
	if p.stopped {
		return
	}

	select {
	case p.events <- event:
	default:
		slog.Warn("polling watcher buffer full, dropping event",
			slog.String("path", event.Path),
			slog.String("op", event.Operation.String()),
		)
	}
}
