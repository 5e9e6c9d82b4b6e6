package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/flint-notes/flint/internal/errors"
)

// VaultWatcher implements Watcher using fsnotify as the primary mechanism
// with polling as a degraded-mode fallback. Every inbound notification is
// normalized and checked against the write-intent registry before anything
// else; self-caused events never reach the debouncer.
type VaultWatcher struct {
	fsWatcher     *fsnotify.Watcher
	pollWatcher   *PollingWatcher
	useFsnotify   bool
	intents       IntentChecker
	debouncer     *Debouncer
	events        chan []Event
	errors        chan error
	stopCh        chan struct{}
	root          string
	opts          Options
	mu            sync.RWMutex
	stopped       bool
	droppedEvents atomic.Uint64
}

var _ Watcher = (*VaultWatcher)(nil)

// NewVaultWatcher creates a watcher classifying against the given intent
// checker. If fsnotify cannot be initialized the watcher starts in degraded
// polling mode and reports a WatchDegraded error once Start runs; reads and
// writes continue either way.
func NewVaultWatcher(intents IntentChecker, opts Options) (*VaultWatcher, error) {
	opts = opts.WithDefaults()

	w := &VaultWatcher{
		intents:   intents,
		debouncer: NewDebouncer(opts.DebounceWindow),
		events:    make(chan []Event, opts.EventBufferSize),
		errors:    make(chan error, 10),
		stopCh:    make(chan struct{}),
		opts:      opts,
	}

	fsw, err := fsnotify.NewWatcher()
	if err == nil {
		w.fsWatcher = fsw
		w.useFsnotify = true
	} else {
		w.useFsnotify = false
		w.pollWatcher = NewPollingWatcher(opts.PollInterval)
		w.emitError(errors.WatchDegraded(err))
	}

	return w, nil
}

// IsInternalChange reports whether a change notification for the given path
// is self-caused: true iff a write intent currently exists for it.
func (w *VaultWatcher) IsInternalChange(path string) bool {
	canonical, err := Normalize(path)
	if err != nil {
		return false
	}
	return w.intents.Active(canonical)
}

// Degraded reports whether the watcher is running in polling fallback mode.
func (w *VaultWatcher) Degraded() bool {
	return !w.useFsnotify
}

// WatcherType returns "fsnotify" or "polling".
func (w *VaultWatcher) WatcherType() string {
	if w.useFsnotify {
		return "fsnotify"
	}
	return "polling"
}

// Start begins watching the vault root. Blocks until Stop or ctx cancel.
func (w *VaultWatcher) Start(ctx context.Context, root string) error {
	canonical, err := Normalize(root)
	if err != nil {
		return err
	}
	w.root = canonical

	go w.forwardDebouncedEvents(ctx)

	if w.useFsnotify {
		return w.startFsnotify(ctx)
	}
	return w.startPolling(ctx)
}

// startFsnotify runs the fsnotify event loop.
func (w *VaultWatcher) startFsnotify(ctx context.Context) error {
	if err := w.addRecursive(w.root); err != nil {
		return fmt.Errorf("add directories to watcher: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			_ = w.Stop()
			return ctx.Err()
		case <-w.stopCh:
			return nil
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return nil
			}
			w.handleFsnotifyEvent(event)
		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return nil
			}
			w.emitError(err)
		}
	}
}

// startPolling runs the fallback polling loop, forwarding through the same
// classification and debouncing as the fsnotify path.
func (w *VaultWatcher) startPolling(ctx context.Context) error {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-w.stopCh:
				return
			case event, ok := <-w.pollWatcher.Events():
				if !ok {
					return
				}
				w.classify(event.Path, event.Operation)
			case err, ok := <-w.pollWatcher.Errors():
				if !ok {
					return
				}
				w.emitError(err)
			}
		}
	}()

	return w.pollWatcher.Start(ctx, w.root)
}

// handleFsnotifyEvent converts, filters, and classifies an fsnotify event.
func (w *VaultWatcher) handleFsnotifyEvent(event fsnotify.Event) {
	isDir := false
	if info, err := os.Stat(event.Name); err == nil {
		isDir = info.IsDir()
	}

	if isDir {
		// New directories get added to the watch; nothing else to do.
		if event.Op&fsnotify.Create != 0 && !w.shouldIgnoreDir(event.Name) {
			_ = w.fsWatcher.Add(event.Name)
		}
		return
	}

	if w.shouldIgnore(event.Name) {
		return
	}

	var op Operation
	switch {
	case event.Op&fsnotify.Create != 0:
		op = OpCreate
	case event.Op&fsnotify.Write != 0:
		op = OpModify
	case event.Op&fsnotify.Remove != 0:
		op = OpDelete
	case event.Op&fsnotify.Rename != 0:
		op = OpRename
	default:
		// Chmod and unknown ops carry no content change.
		return
	}

	w.classify(event.Name, op)
}

// classify normalizes a path and decides self-caused vs external.
// Classification must happen at arrival time: the intent is only guaranteed
// to be set while the physical write is in flight, so deferring the check
// past the debounce window would misread self-writes as external.
func (w *VaultWatcher) classify(path string, op Operation) {
	canonical, err := Normalize(path)
	if err != nil {
		slog.Warn("dropping unresolvable change event",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return
	}

	if w.intents.Active(canonical) {
		slog.Debug("self-caused change, staying silent",
			slog.String("path", canonical),
			slog.String("op", op.String()),
		)
		return
	}

	w.debouncer.Add(Event{
		Path:      canonical,
		Operation: op,
		Timestamp: time.Now(),
	})
}

// forwardDebouncedEvents forwards debounced batches to the output channel.
func (w *VaultWatcher) forwardDebouncedEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case events, ok := <-w.debouncer.Output():
			if !ok {
				return
			}
			if len(events) == 0 {
				continue
			}
			w.emitEvents(events)
		}
	}
}

// addRecursive adds all non-hidden directories under root to the watch.
func (w *VaultWatcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // Skip directories we can't access
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && w.shouldIgnoreDir(path) {
			return filepath.SkipDir
		}
		return w.fsWatcher.Add(path)
	})
}

// shouldIgnoreDir skips hidden directories, including the engine's own
// .flint state directory.
func (w *VaultWatcher) shouldIgnoreDir(path string) bool {
	base := filepath.Base(path)
	return strings.HasPrefix(base, ".")
}

// shouldIgnore filters out non-markdown files and anything hidden.
func (w *VaultWatcher) shouldIgnore(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") {
		return true
	}
	if rel, err := filepath.Rel(w.root, path); err == nil {
		for _, part := range strings.Split(filepath.ToSlash(rel), "/") {
			if strings.HasPrefix(part, ".") {
				return true
			}
		}
	}
	return !IsMarkdown(path)
}

// emitEvents sends a batch to the output channel without blocking.
// The send stays under the lock Stop takes to close the channel, so a
// batch arriving during shutdown is dropped instead of hitting a closed
// channel.
func (w *VaultWatcher) emitEvents(events []Event) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.stopped {
		return
	}

	select {
	case w.events <- events:
	default:
		count := w.droppedEvents.Add(uint64(len(events)))
		slog.Warn("event buffer full, dropping batch",
			slog.Int("batch_size", len(events)),
			slog.Uint64("total_dropped", count),
		)
	}
}

// emitError sends an error without blocking. Same shutdown guard as
// emitEvents.
func (w *VaultWatcher) emitError(err error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.stopped {
		return
	}

	select {
	case w.errors <- err:
	default:
	}
}

// DroppedEvents returns how many events were dropped due to buffer overflow.
func (w *VaultWatcher) DroppedEvents() uint64 {
	return w.droppedEvents.Load()
}

// Stop stops the watcher and releases resources.
func (w *VaultWatcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return nil
	}
	w.stopped = true
	close(w.stopCh)

	w.debouncer.Stop()

	if w.useFsnotify && w.fsWatcher != nil {
		_ = w.fsWatcher.Close()
	}
	if w.pollWatcher != nil {
		_ = w.pollWatcher.Stop()
	}

	close(w.events)
	close(w.errors)
	return nil
}

// Events returns the channel of batched external change events.
func (w *VaultWatcher) Events() <-chan []Event {
	return w.events
}

// Errors returns the channel of non-fatal errors.
func (w *VaultWatcher) Errors() <-chan error {
	return w.errors
}
