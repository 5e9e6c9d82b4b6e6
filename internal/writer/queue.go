// Package writer implements the debounced file write queue and the
// write-intent registry that together keep self-issued disk writes
// distinguishable from external ones.
package writer

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/renameio"
	"golang.org/x/sync/errgroup"

	"github.com/flint-notes/flint/internal/errors"
)

// Options configures the write queue.
type Options struct {
	// Debounce is how long a path must stay quiet before its pending
	// write executes. Default: 1s.
	Debounce time.Duration

	// Retry configures the backoff ladder for failed disk writes.
	Retry errors.RetryConfig

	// FileMode is the permission for written note files. Default: 0644.
	FileMode os.FileMode
}

// DefaultOptions returns the default queue options.
func DefaultOptions() Options {
	return Options{
		Debounce: 1 * time.Second,
		Retry:    errors.DefaultRetryConfig(),
		FileMode: 0o644,
	}
}

// WithDefaults returns options with defaults applied for zero values.
func (o Options) WithDefaults() Options {
	defaults := DefaultOptions()
	if o.Debounce == 0 {
		o.Debounce = defaults.Debounce
	}
	if o.Retry.MaxRetries == 0 && o.Retry.InitialDelay == 0 {
		o.Retry = defaults.Retry
	}
	if o.FileMode == 0 {
		o.FileMode = defaults.FileMode
	}
	return o
}

// pendingWrite is the single queued write for a path. A new write for the
// same path replaces the payload (coalescing); two entries never coexist.
type pendingWrite struct {
	content     []byte
	scheduledAt time.Time
	attempts    int
	seq         uint64
	timer       *time.Timer
	writing     bool
}

// ResultFunc receives the outcome of every completed flush: err is nil on
// success and a WriteFailure after retry exhaustion. Failures are non-fatal;
// the record store stays authoritative either way.
type ResultFunc func(path string, err error)

// Queue debounces, coalesces, and retries disk writes. It owns the pending
// map and the intent registry; paths must already be canonical.
type Queue struct {
	mu       sync.Mutex
	pending  map[string]*pendingWrite
	intents  *IntentRegistry
	opts     Options
	onResult ResultFunc
	closed   bool

	// writeFile performs the physical write. Injectable for tests.
	writeFile func(path string, data []byte, perm os.FileMode) error
}

// New creates a write queue around the given intent registry.
// onResult may be nil; failures are then only logged.
func New(intents *IntentRegistry, opts Options, onResult ResultFunc) *Queue {
	return &Queue{
		pending:   make(map[string]*pendingWrite),
		intents:   intents,
		opts:      opts.WithDefaults(),
		onResult:  onResult,
		writeFile: atomicWriteFile,
	}
}

// Intents exposes the registry for the watcher's internal-change check.
func (q *Queue) Intents() *IntentRegistry {
	return q.intents
}

// QueueWrite schedules a write of content to path after the debounce delay.
// A pending write for the same path has its payload replaced and its timer
// reset, so an edit burst produces exactly one physical write. Never blocks.
func (q *Queue) QueueWrite(path string, content []byte) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}

	if pw, ok := q.pending[path]; ok {
		pw.content = content
		pw.seq++
		pw.scheduledAt = time.Now()
		if !pw.writing {
			pw.timer.Stop()
			pw.timer = q.scheduleFlush(path)
		}
		return
	}

	q.pending[path] = &pendingWrite{
		content:     content,
		scheduledAt: time.Now(),
		timer:       q.scheduleFlush(path),
	}
}

// scheduleFlush arms the debounce timer for a path. Caller holds q.mu.
// Flush outcomes are delivered through the result callback.
func (q *Queue) scheduleFlush(path string) *time.Timer {
	return time.AfterFunc(q.opts.Debounce, func() {
		_ = q.flush(context.Background(), path)
	})
}

// FlushWrite executes a pending write for path immediately, bypassing the
// debounce timer. No-op if nothing is pending.
func (q *Queue) FlushWrite(ctx context.Context, path string) error {
	return q.flush(ctx, path)
}

// FlushAll flushes every pending write concurrently and collects errors.
// Called on shutdown and vault switch so the data-loss window is bounded by
// in-memory state, not the debounce delay.
func (q *Queue) FlushAll(ctx context.Context) error {
	q.mu.Lock()
	paths := make([]string, 0, len(q.pending))
	for path := range q.pending {
		paths = append(paths, path)
	}
	q.mu.Unlock()

	var g errgroup.Group
	for _, path := range paths {
		g.Go(func() error {
			return q.flush(ctx, path)
		})
	}
	return g.Wait()
}

// HasPendingWrite reports whether a write is queued for path.
func (q *Queue) HasPendingWrite(path string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.pending[path]
	return ok
}

// PendingCount returns the number of queued writes.
func (q *Queue) PendingCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Close flushes all pending writes and stops accepting new ones.
func (q *Queue) Close(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	q.mu.Unlock()

	return q.FlushAll(ctx)
}

// flush performs the pending write for a path: set intent, write, retry on
// failure, always clear intent. If the payload was replaced while the write
// was in flight, the newer payload is written before returning. The pending
// entry is destroyed on success or on retry exhaustion.
func (q *Queue) flush(ctx context.Context, path string) error {
	q.mu.Lock()
	pw, ok := q.pending[path]
	if !ok || pw.writing {
		// Nothing pending, or an in-flight flush will pick up the
		// coalesced payload itself.
		q.mu.Unlock()
		return nil
	}
	pw.writing = true
	pw.timer.Stop()

	for {
		content := pw.content
		seq := pw.seq
		q.mu.Unlock()

		q.intents.Begin(path)
		err := errors.Retry(ctx, q.opts.Retry, func() error {
			q.mu.Lock()
			pw.attempts++
			q.mu.Unlock()
			return q.writeFile(path, content, q.opts.FileMode)
		})
		q.intents.End(path)

		q.mu.Lock()
		if pw.seq != seq {
			// Replaced mid-write: go around with the fresh payload.
			// Each pass through Retry gives it a full backoff budget,
			// so a superseded payload's failures are not inherited.
			continue
		}

		delete(q.pending, path)
		q.mu.Unlock()

		if err != nil {
			failure := errors.WriteFailure(path, err)
			q.notify(path, failure)
			return failure
		}
		q.notify(path, nil)
		return nil
	}
}

// notify reports a flush outcome without blocking further edits.
func (q *Queue) notify(path string, err error) {
	if err != nil {
		slog.Warn("note write failed",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
	}
	if q.onResult != nil {
		q.onResult(path, err)
	}
}

// atomicWriteFile writes content via a temp file and rename so watchers and
// external readers never observe a half-written note.
func atomicWriteFile(path string, data []byte, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return renameio.WriteFile(path, data, perm)
}
