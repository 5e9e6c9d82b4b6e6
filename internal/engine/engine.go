// Package engine wires the record store, write queue, change watcher, search
// index, and editor sessions into one synchronization core.
//
// Every edit updates the record store first; the file write is queued and
// debounced behind it. The watcher classifies resulting OS notifications as
// self-caused via the write-intent registry; genuinely external changes are
// reconciled here, with the file winning unless an open session holds
// unsaved edits, in which case a conflict is surfaced instead.
package engine

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/flint-notes/flint/internal/errors"
	"github.com/flint-notes/flint/internal/index"
	"github.com/flint-notes/flint/internal/note"
	"github.com/flint-notes/flint/internal/session"
	"github.com/flint-notes/flint/internal/store"
	"github.com/flint-notes/flint/internal/watcher"
	"github.com/flint-notes/flint/internal/writer"
)

// scanConcurrency bounds parallel file reads during the vault scan.
const scanConcurrency = 4

// Options configures the engine.
type Options struct {
	// VaultRoot is the directory of markdown notes to manage.
	VaultRoot string

	// Queue configures the file write queue.
	Queue writer.Options

	// Watch configures the change watcher.
	Watch watcher.Options
}

// Status is a snapshot of engine health for CLI/status indicators.
type Status struct {
	Notes         int
	PendingWrites int
	ActiveIntents int
	WatchMode     string
	Degraded      bool
	DroppedEvents uint64
}

// Engine is the synchronization core.
type Engine struct {
	root     string
	store    *store.Store
	index    index.Index
	queue    *writer.Queue
	watch    *watcher.VaultWatcher
	sessions *session.Registry
	states   *stateTracker

	mu        sync.Mutex
	listeners map[int]Listener
	nextID    int
	degraded  bool

	stopOnce sync.Once
	cancel   context.CancelFunc
	done     chan struct{}
}

// New creates an engine over the given collaborators. The vault root is
// normalized once so record paths, intent keys, and watcher events share
// one canonical form.
func New(st *store.Store, idx index.Index, sessions *session.Registry, opts Options) (*Engine, error) {
	root, err := watcher.Normalize(opts.VaultRoot)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		root:      root,
		store:     st,
		index:     idx,
		sessions:  sessions,
		states:    newStateTracker(),
		listeners: make(map[int]Listener),
		done:      make(chan struct{}),
	}

	intents := writer.NewIntentRegistry()
	e.queue = writer.New(intents, opts.Queue, e.onFlushResult)

	w, err := watcher.NewVaultWatcher(intents, opts.Watch)
	if err != nil {
		return nil, err
	}
	e.watch = w

	return e, nil
}

// Start launches the watcher and the reconciliation loop. Non-blocking.
func (e *Engine) Start(ctx context.Context) {
	ctx, e.cancel = context.WithCancel(ctx)

	go func() {
		if err := e.watch.Start(ctx, e.root); err != nil && ctx.Err() == nil {
			e.setDegraded()
			slog.Warn("watcher stopped, external edits undetected",
				slog.String("error", err.Error()),
			)
		}
	}()

	go e.consumeEvents(ctx)
}

// Close flushes pending writes and stops the watcher.
func (e *Engine) Close(ctx context.Context) error {
	var err error
	e.stopOnce.Do(func() {
		if e.cancel != nil {
			e.cancel()
		}
		_ = e.watch.Stop()
		err = e.queue.Close(ctx)
		close(e.done)
	})
	return err
}

// Subscribe registers a change listener and returns an unsubscribe func.
func (e *Engine) Subscribe(l Listener) func() {
	e.mu.Lock()
	defer e.mu.Unlock()

	id := e.nextID
	e.nextID++
	e.listeners[id] = l

	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		delete(e.listeners, id)
	}
}

// Sessions exposes the registry so views can attach and detach.
func (e *Engine) Sessions() *session.Registry {
	return e.sessions
}

// Read returns the authoritative record for a note. Always served from the
// store, never from disk.
func (e *Engine) Read(ctx context.Context, noteID string) (*note.Record, error) {
	return e.store.Get(ctx, noteID)
}

// Write commits new content for a note, validating expectedHash against the
// current record (optimistic concurrency). On success the record is updated
// synchronously, the file write is queued, and a tagged event is routed;
// the call returns before the file write completes.
func (e *Engine) Write(ctx context.Context, noteID, content, expectedHash string, origin Origin) (*note.Record, error) {
	rec, err := e.store.UpdateContent(ctx, noteID, content, expectedHash)
	if err != nil {
		return nil, err
	}

	e.states.set(noteID, StateWritePending)
	e.queue.QueueWrite(rec.Path, []byte(content))

	if err := e.index.Reindex(noteID, content); err != nil {
		slog.Warn("reindex failed", slog.String("note_id", noteID), slog.String("error", err.Error()))
	}

	e.routeInternal(rec, content, origin)
	return rec, nil
}

// CreateNote creates a record for a new note under the vault root and
// queues its first file write. relPath is relative to the vault.
func (e *Engine) CreateNote(ctx context.Context, relPath, content string, origin Origin) (*note.Record, error) {
	canonical, err := watcher.Normalize(filepath.Join(e.root, relPath))
	if err != nil {
		return nil, err
	}

	rec := note.NewRecord(canonical, note.TitleFromContent(canonical, content), content)
	if err := e.store.Create(ctx, rec); err != nil {
		return nil, err
	}

	e.states.set(rec.ID, StateWritePending)
	e.queue.QueueWrite(rec.Path, []byte(content))

	if err := e.index.Reindex(rec.ID, content); err != nil {
		slog.Warn("reindex failed", slog.String("note_id", rec.ID), slog.String("error", err.Error()))
	}

	e.routeInternal(rec, content, origin)
	return rec, nil
}

// DeleteNote tombstones a record and removes its file. The removal runs
// under a write intent so the watcher stays silent about it.
func (e *Engine) DeleteNote(ctx context.Context, noteID string, origin Origin) error {
	rec, err := e.store.Get(ctx, noteID)
	if err != nil {
		return err
	}

	if err := e.store.Delete(ctx, noteID); err != nil {
		return err
	}
	if err := e.index.Remove(noteID); err != nil {
		slog.Warn("index remove failed", slog.String("note_id", noteID), slog.String("error", err.Error()))
	}

	intents := e.queue.Intents()
	intents.Begin(rec.Path)
	rmErr := os.Remove(rec.Path)
	intents.End(rec.Path)
	if rmErr != nil && !os.IsNotExist(rmErr) {
		return errors.WriteFailure(rec.Path, rmErr)
	}

	e.states.set(noteID, StateClean)
	e.emit(ChangeEvent{
		NoteID:    noteID,
		Path:      rec.Path,
		Source:    origin.Source,
		SessionID: origin.SessionID,
		Timestamp: time.Now(),
	})
	return nil
}

// ResolveConflict ends a conflict for a note. With keepMine, mine becomes
// the authoritative content and is written out; with keepTheirs (keepMine
// false), the disk content is applied to the record and pushed into every
// session, including dirty ones, since the user chose to discard.
func (e *Engine) ResolveConflict(ctx context.Context, noteID string, keepMine bool, mine string) (*note.Record, error) {
	rec, err := e.store.Get(ctx, noteID)
	if err != nil {
		return nil, err
	}

	if keepMine {
		updated, err := e.store.UpdateContent(ctx, noteID, mine, rec.ContentHash)
		if err != nil {
			return nil, err
		}
		e.states.set(noteID, StateWritePending)
		e.queue.QueueWrite(updated.Path, []byte(mine))
		if err := e.index.Reindex(noteID, mine); err != nil {
			slog.Warn("reindex failed", slog.String("note_id", noteID), slog.String("error", err.Error()))
		}
		e.emit(ChangeEvent{
			NoteID:    noteID,
			Path:      updated.Path,
			Source:    SourceSystem,
			Timestamp: time.Now(),
		})
		return updated, nil
	}

	data, err := os.ReadFile(rec.Path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeFileNotFound, err)
	}

	updated, _, err := e.store.ApplyExternal(ctx, rec.Path, string(data))
	if err != nil {
		return nil, err
	}
	if err := e.index.Reindex(noteID, updated.Content); err != nil {
		slog.Warn("reindex failed", slog.String("note_id", noteID), slog.String("error", err.Error()))
	}

	for _, s := range e.sessions.ForNote(noteID) {
		s.ApplyExternalContent(updated.Content)
	}

	e.states.set(noteID, StateClean)
	e.emit(ChangeEvent{
		NoteID:    noteID,
		Path:      updated.Path,
		Source:    SourceSystem,
		Timestamp: time.Now(),
	})
	return updated, nil
}

// FlushWrite forces the pending write for a note to disk immediately.
func (e *Engine) FlushWrite(ctx context.Context, noteID string) error {
	rec, err := e.store.Get(ctx, noteID)
	if err != nil {
		return err
	}
	return e.queue.FlushWrite(ctx, rec.Path)
}

// FlushAll flushes every pending write. Shutdown hook.
func (e *Engine) FlushAll(ctx context.Context) error {
	return e.queue.FlushAll(ctx)
}

// State returns the sync state for a note.
func (e *Engine) State(noteID string) SyncState {
	return e.states.get(noteID)
}

// Status returns a snapshot of engine health.
func (e *Engine) Status(ctx context.Context) Status {
	count, err := e.store.Count(ctx)
	if err != nil {
		slog.Warn("status count failed", slog.String("error", err.Error()))
	}

	e.mu.Lock()
	degraded := e.degraded || e.watch.Degraded()
	e.mu.Unlock()

	return Status{
		Notes:         count,
		PendingWrites: e.queue.PendingCount(),
		ActiveIntents: e.queue.Intents().Count(),
		WatchMode:     e.watch.WatcherType(),
		Degraded:      degraded,
		DroppedEvents: e.watch.DroppedEvents(),
	}
}

// ScanVault walks the vault and creates records for markdown files that
// have none yet (one-time migration fallback for notes discovered on disk).
func (e *Engine) ScanVault(ctx context.Context) (int, error) {
	var paths []string
	err := filepath.WalkDir(e.root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		base := filepath.Base(path)
		if d.IsDir() {
			if path != e.root && base[0] == '.' {
				return filepath.SkipDir
			}
			return nil
		}
		if watcher.IsMarkdown(path) && base[0] != '.' {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	var mu sync.Mutex
	imported := 0

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(scanConcurrency)
	for _, path := range paths {
		g.Go(func() error {
			canonical, err := watcher.Normalize(path)
			if err != nil {
				slog.Warn("skipping unresolvable note", slog.String("path", path))
				return nil
			}

			if _, err := e.store.GetByPath(gctx, canonical); err == nil {
				return nil
			} else if !errors.IsNotFound(err) {
				return err
			}

			data, err := os.ReadFile(canonical)
			if err != nil {
				slog.Warn("skipping unreadable note", slog.String("path", canonical))
				return nil
			}

			rec, _, err := e.store.ApplyExternal(gctx, canonical, string(data))
			if err != nil {
				return err
			}
			if err := e.index.Reindex(rec.ID, rec.Content); err != nil {
				slog.Warn("reindex failed", slog.String("note_id", rec.ID), slog.String("error", err.Error()))
			}

			mu.Lock()
			imported++
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return imported, err
	}
	return imported, nil
}

// routeInternal routes an internally-sourced update (user or agent) to
// listeners and open sessions.
//
// Listener policy: a session ignores user events it originated; agent
// updates are pushed unconditionally to clean sessions; any reload-worthy
// event arriving at a dirty session defers to the conflict path.
func (e *Engine) routeInternal(rec *note.Record, content string, origin Origin) {
	conflict := false

	for _, s := range e.sessions.ForNote(rec.ID) {
		if origin.Source == SourceUser && s.SessionID() == origin.SessionID {
			// The originating view is already current; refreshing it
			// would disturb the cursor.
			continue
		}

		if s.HasUnsavedChanges() {
			conflict = true
			continue
		}

		switch origin.Source {
		case SourceAgent:
			s.NotifyAgentUpdate(content)
		default:
			s.ApplyExternalContent(content)
		}
	}

	if conflict {
		e.states.set(rec.ID, StateConflict)
	}

	e.emit(ChangeEvent{
		NoteID:    rec.ID,
		Path:      rec.Path,
		Source:    origin.Source,
		Conflict:  conflict,
		SessionID: origin.SessionID,
		Timestamp: time.Now(),
	})
}

// consumeEvents drains watcher channels until the context ends.
func (e *Engine) consumeEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case events, ok := <-e.watch.Events():
			if !ok {
				return
			}
			for _, ev := range events {
				e.reconcile(ctx, ev)
			}
		case err, ok := <-e.watch.Errors():
			if !ok {
				return
			}
			if errors.GetCode(err) == errors.ErrCodeWatchDegraded {
				e.setDegraded()
			}
			slog.Warn("watcher error", slog.String("error", err.Error()))
		}
	}
}

// reconcile handles one genuinely external change event.
func (e *Engine) reconcile(ctx context.Context, ev watcher.Event) {
	switch ev.Operation {
	case watcher.OpDelete, watcher.OpRename:
		e.reconcileRemoval(ctx, ev)
	default:
		e.reconcileContent(ctx, ev)
	}
}

// reconcileContent re-reads a changed file and updates the record from it:
// the file wins for genuine external edits. If a session for the note holds
// unsaved edits, a conflict is emitted instead and nothing is overwritten.
func (e *Engine) reconcileContent(ctx context.Context, ev watcher.Event) {
	data, err := os.ReadFile(ev.Path)
	if err != nil {
		// The file vanished between event and read; the delete event
		// behind it will handle the removal.
		slog.Debug("external change unreadable", slog.String("path", ev.Path))
		return
	}
	content := string(data)

	existing, err := e.store.GetByPath(ctx, ev.Path)
	if err != nil && !errors.IsNotFound(err) {
		slog.Warn("reconcile lookup failed", slog.String("path", ev.Path), slog.String("error", err.Error()))
		return
	}

	if existing != nil {
		if existing.ContentHash == note.Hash(content) {
			// Disk caught up with the record; nothing to route.
			e.states.setIfNot(existing.ID, StateClean, StateConflict)
			return
		}

		if e.sessions.AnyDirty(existing.ID) {
			e.states.set(existing.ID, StateConflict)
			e.emit(ChangeEvent{
				NoteID:    existing.ID,
				Path:      ev.Path,
				Source:    SourceExternal,
				Conflict:  true,
				Timestamp: time.Now(),
			})
			return
		}
	}

	rec, created, err := e.store.ApplyExternal(ctx, ev.Path, content)
	if err != nil {
		slog.Warn("reconcile failed", slog.String("path", ev.Path), slog.String("error", err.Error()))
		return
	}

	if err := e.index.Reindex(rec.ID, content); err != nil {
		slog.Warn("reindex failed", slog.String("note_id", rec.ID), slog.String("error", err.Error()))
	}

	for _, s := range e.sessions.ForNote(rec.ID) {
		s.ApplyExternalContent(content)
	}

	e.states.set(rec.ID, StateClean)
	e.emit(ChangeEvent{
		NoteID:    rec.ID,
		Path:      ev.Path,
		Source:    SourceExternal,
		Timestamp: time.Now(),
	})

	if created {
		slog.Info("note discovered on disk", slog.String("path", ev.Path), slog.String("note_id", rec.ID))
	}
}

// reconcileRemoval handles an external delete or rename-away.
func (e *Engine) reconcileRemoval(ctx context.Context, ev watcher.Event) {
	rec, err := e.store.GetByPath(ctx, ev.Path)
	if err != nil {
		// Never tracked; nothing to reconcile.
		return
	}

	if e.sessions.AnyDirty(rec.ID) {
		// The file is gone but an open view still holds edits; keep the
		// record and let the user decide.
		e.states.set(rec.ID, StateConflict)
		e.emit(ChangeEvent{
			NoteID:    rec.ID,
			Path:      ev.Path,
			Source:    SourceExternal,
			Conflict:  true,
			Timestamp: time.Now(),
		})
		return
	}

	if err := e.store.Delete(ctx, rec.ID); err != nil {
		slog.Warn("delete reconcile failed", slog.String("note_id", rec.ID), slog.String("error", err.Error()))
		return
	}
	if err := e.index.Remove(rec.ID); err != nil {
		slog.Warn("index remove failed", slog.String("note_id", rec.ID), slog.String("error", err.Error()))
	}

	e.states.set(rec.ID, StateClean)
	e.emit(ChangeEvent{
		NoteID:    rec.ID,
		Path:      ev.Path,
		Source:    SourceExternal,
		Timestamp: time.Now(),
	})
}

// onFlushResult advances the state machine when a queued write completes.
func (e *Engine) onFlushResult(path string, err error) {
	rec, lookupErr := e.store.GetByPath(context.Background(), path)
	if lookupErr != nil {
		return
	}

	if err != nil {
		e.states.setIfNot(rec.ID, StateWriteFailed, StateConflict)
		e.emit(ChangeEvent{
			NoteID:    rec.ID,
			Path:      path,
			Source:    SourceSystem,
			Timestamp: time.Now(),
		})
		return
	}
	e.states.setIfNot(rec.ID, StateClean, StateConflict)
}

// setDegraded records that external edits may go undetected.
func (e *Engine) setDegraded() {
	e.mu.Lock()
	e.degraded = true
	e.mu.Unlock()
}

// emit fans an event out to all listeners.
func (e *Engine) emit(ev ChangeEvent) {
	e.mu.Lock()
	listeners := make([]Listener, 0, len(e.listeners))
	for _, l := range e.listeners {
		listeners = append(listeners, l)
	}
	e.mu.Unlock()

	for _, l := range listeners {
		l(ev)
	}
}
