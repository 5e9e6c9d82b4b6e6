package writer

import (
	"context"
	stderrors "errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flint-notes/flint/internal/errors"
)

// fastOptions keeps debounce and backoff short for tests.
func fastOptions(debounce time.Duration) Options {
	return Options{
		Debounce: debounce,
		Retry: errors.RetryConfig{
			MaxRetries:   3,
			InitialDelay: 1 * time.Millisecond,
			MaxDelay:     5 * time.Millisecond,
			Multiplier:   5.0,
		},
		FileMode: 0o644,
	}
}

// countingWriter records every physical write.
type countingWriter struct {
	mu     sync.Mutex
	writes []string
	fail   int // fail this many writes before succeeding
}

func (c *countingWriter) write(path string, data []byte, _ os.FileMode) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail > 0 {
		c.fail--
		return stderrors.New("simulated disk error")
	}
	c.writes = append(c.writes, string(data))
	return nil
}

func (c *countingWriter) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.writes)
}

func (c *countingWriter) last() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.writes) == 0 {
		return ""
	}
	return c.writes[len(c.writes)-1]
}

func TestQueueWrite_CoalescesBurstIntoOneWrite(t *testing.T) {
	// Given: a queue and a burst of edits to one path
	cw := &countingWriter{}
	q := New(NewIntentRegistry(), fastOptions(30*time.Millisecond), nil)
	q.writeFile = cw.write

	q.QueueWrite("/vault/n1.md", []byte("c1"))
	q.QueueWrite("/vault/n1.md", []byte("c2"))

	// Then: exactly one physical write occurs, with the last payload
	assert.Eventually(t, func() bool { return cw.count() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "c2", cw.last())
	assert.False(t, q.HasPendingWrite("/vault/n1.md"))
}

func TestQueueWrite_DebounceResetsOnNewEdit(t *testing.T) {
	cw := &countingWriter{}
	q := New(NewIntentRegistry(), fastOptions(50*time.Millisecond), nil)
	q.writeFile = cw.write

	q.QueueWrite("/vault/n1.md", []byte("c1"))
	time.Sleep(25 * time.Millisecond)
	q.QueueWrite("/vault/n1.md", []byte("c2"))
	time.Sleep(35 * time.Millisecond)

	// The second edit reset the timer, so nothing has been written yet.
	assert.Zero(t, cw.count())
	assert.True(t, q.HasPendingWrite("/vault/n1.md"))

	assert.Eventually(t, func() bool { return cw.count() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "c2", cw.last())
}

func TestFlushWrite_BypassesTimer(t *testing.T) {
	cw := &countingWriter{}
	q := New(NewIntentRegistry(), fastOptions(10*time.Second), nil)
	q.writeFile = cw.write

	q.QueueWrite("/vault/n1.md", []byte("now"))
	require.NoError(t, q.FlushWrite(context.Background(), "/vault/n1.md"))

	assert.Equal(t, 1, cw.count())
	assert.Equal(t, "now", cw.last())
	assert.False(t, q.HasPendingWrite("/vault/n1.md"))
}

func TestFlushWrite_NothingPendingIsNoOp(t *testing.T) {
	q := New(NewIntentRegistry(), fastOptions(time.Second), nil)

	assert.NoError(t, q.FlushWrite(context.Background(), "/vault/none.md"))
}

func TestFlushAll_WritesEveryPendingPath(t *testing.T) {
	// Scenario: shutdown with pending writes to two notes
	cw := &countingWriter{}
	q := New(NewIntentRegistry(), fastOptions(10*time.Second), nil)
	q.writeFile = cw.write

	q.QueueWrite("/vault/n1.md", []byte("n1 latest"))
	q.QueueWrite("/vault/n2.md", []byte("n2 latest"))

	require.NoError(t, q.FlushAll(context.Background()))

	assert.Equal(t, 2, cw.count())
	assert.Zero(t, q.PendingCount())
}

func TestFlush_RetriesTransientFailures(t *testing.T) {
	cw := &countingWriter{fail: 2}
	q := New(NewIntentRegistry(), fastOptions(10*time.Second), nil)
	q.writeFile = cw.write

	q.QueueWrite("/vault/n1.md", []byte("v"))
	require.NoError(t, q.FlushWrite(context.Background(), "/vault/n1.md"))

	assert.Equal(t, 1, cw.count())
}

func TestFlush_ExhaustedRetriesDropPendingAndReport(t *testing.T) {
	// Given: a disk that always fails
	cw := &countingWriter{fail: 100}
	var reported error
	var reportedPath string
	var mu sync.Mutex
	onError := func(path string, err error) {
		mu.Lock()
		defer mu.Unlock()
		reportedPath = path
		reported = err
	}

	q := New(NewIntentRegistry(), fastOptions(5*time.Millisecond), onError)
	q.writeFile = cw.write

	q.QueueWrite("/vault/n1.md", []byte("doomed"))

	// Then: the failure is reported upward and the pending write dropped
	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return reported != nil
	}, 2*time.Second, 5*time.Millisecond)

	mu.Lock()
	assert.Equal(t, "/vault/n1.md", reportedPath)
	assert.Equal(t, errors.ErrCodeWriteFailed, errors.GetCode(reported))
	mu.Unlock()

	assert.False(t, q.HasPendingWrite("/vault/n1.md"))
	assert.False(t, q.Intents().Active("/vault/n1.md"), "intent cleared even on failure")
}

func TestFlush_IntentCoversWriteDuration(t *testing.T) {
	// Given: a slow write so the intent window is observable
	q := New(NewIntentRegistry(), fastOptions(10*time.Second), nil)
	activeDuringWrite := make(chan bool, 1)
	q.writeFile = func(path string, _ []byte, _ os.FileMode) error {
		activeDuringWrite <- q.Intents().Active(path)
		return nil
	}

	q.QueueWrite("/vault/n1.md", []byte("v"))
	require.NoError(t, q.FlushWrite(context.Background(), "/vault/n1.md"))

	assert.True(t, <-activeDuringWrite, "intent set for the physical duration of the write")
	assert.False(t, q.Intents().Active("/vault/n1.md"), "intent cleared after completion")
}

func TestQueueWrite_ReplacementDuringInFlightWriteLands(t *testing.T) {
	// Given: a write that blocks long enough for a replacement to arrive
	cw := &countingWriter{}
	release := make(chan struct{})
	started := make(chan struct{})
	var once sync.Once

	q := New(NewIntentRegistry(), fastOptions(10*time.Second), nil)
	q.writeFile = func(path string, data []byte, perm os.FileMode) error {
		once.Do(func() {
			close(started)
			<-release
		})
		return cw.write(path, data, perm)
	}

	q.QueueWrite("/vault/n1.md", []byte("old"))
	done := make(chan error, 1)
	go func() { done <- q.FlushWrite(context.Background(), "/vault/n1.md") }()

	<-started
	q.QueueWrite("/vault/n1.md", []byte("new"))
	close(release)

	require.NoError(t, <-done)
	assert.Equal(t, "new", cw.last(), "payload replaced mid-write still reaches disk")
	assert.False(t, q.HasPendingWrite("/vault/n1.md"))
}

func TestQueueWrite_ReplacementSurvivesPredecessorExhaustion(t *testing.T) {
	// Given: a first payload that always fails and a replacement queued
	// while its retries are still burning down
	cw := &countingWriter{}
	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once

	q := New(NewIntentRegistry(), fastOptions(10*time.Second), nil)
	q.writeFile = func(path string, data []byte, perm os.FileMode) error {
		once.Do(func() {
			close(started)
			<-release
		})
		if string(data) == "doomed" {
			return stderrors.New("simulated disk error")
		}
		return cw.write(path, data, perm)
	}

	q.QueueWrite("/vault/n1.md", []byte("doomed"))
	done := make(chan error, 1)
	go func() { done <- q.FlushWrite(context.Background(), "/vault/n1.md") }()

	// Queue the replacement while the first attempt is in flight, so the
	// predecessor exhausts its retries with the replacement already pending.
	<-started
	q.QueueWrite("/vault/n1.md", []byte("replacement"))
	close(release)

	// Then: the replacement gets its own retry cycle and reaches disk
	require.NoError(t, <-done)
	assert.Equal(t, "replacement", cw.last())
	assert.False(t, q.HasPendingWrite("/vault/n1.md"))
}

func TestClose_FlushesAndRejectsNewWrites(t *testing.T) {
	cw := &countingWriter{}
	q := New(NewIntentRegistry(), fastOptions(10*time.Second), nil)
	q.writeFile = cw.write

	q.QueueWrite("/vault/n1.md", []byte("final"))
	require.NoError(t, q.Close(context.Background()))

	assert.Equal(t, 1, cw.count())

	q.QueueWrite("/vault/n2.md", []byte("too late"))
	assert.Zero(t, q.PendingCount())
}

func TestAtomicWriteFile_WritesRealFiles(t *testing.T) {
	// Scenario: flushAll during shutdown leaves both files on disk
	dir := t.TempDir()
	q := New(NewIntentRegistry(), fastOptions(10*time.Second), nil)

	n1 := filepath.Join(dir, "n1.md")
	n2 := filepath.Join(dir, "nested", "n2.md")
	q.QueueWrite(n1, []byte("n1 latest"))
	q.QueueWrite(n2, []byte("n2 latest"))

	require.NoError(t, q.FlushAll(context.Background()))

	got1, err := os.ReadFile(n1)
	require.NoError(t, err)
	assert.Equal(t, "n1 latest", string(got1))

	got2, err := os.ReadFile(n2)
	require.NoError(t, err)
	assert.Equal(t, "n2 latest", string(got2))
}
