package watcher

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDebouncer_SingleEvent_PassesThrough(t *testing.T) {
	// Given: a debouncer with short window
	d := NewDebouncer(50 * time.Millisecond)
	defer d.Stop()

	// When: a single event is added
	d.Add(Event{Path: "/vault/n1.md", Operation: OpCreate, Timestamp: time.Now()})

	// Then: the event passes through after the debounce window
	select {
	case events := <-d.Output():
		require.Len(t, events, 1)
		assert.Equal(t, "/vault/n1.md", events[0].Path)
		assert.Equal(t, OpCreate, events[0].Operation)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for debounced event")
	}
}

func TestDebouncer_BurstForSamePath_Coalesces(t *testing.T) {
	// Given: a debouncer with short window
	d := NewDebouncer(100 * time.Millisecond)
	defer d.Stop()

	// When: an external editor saves the same note repeatedly
	for i := 0; i < 5; i++ {
		d.Add(Event{Path: "/vault/n1.md", Operation: OpModify, Timestamp: time.Now()})
		time.Sleep(10 * time.Millisecond)
	}

	// Then: only one event comes out
	select {
	case events := <-d.Output():
		require.Len(t, events, 1)
		assert.Equal(t, OpModify, events[0].Operation)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for debounced events")
	}
}

func TestDebouncer_CreateThenDelete_NoEvent(t *testing.T) {
	d := NewDebouncer(50 * time.Millisecond)
	defer d.Stop()

	// When: CREATE followed by DELETE for same path
	d.Add(Event{Path: "/vault/temp.md", Operation: OpCreate, Timestamp: time.Now()})
	d.Add(Event{Path: "/vault/temp.md", Operation: OpDelete, Timestamp: time.Now()})

	// Then: no event is emitted (file never really existed)
	select {
	case events := <-d.Output():
		assert.Empty(t, events)
	case <-time.After(200 * time.Millisecond):
		// No event is also acceptable
	}
}

func TestDebouncer_ModifyThenDelete_DeleteOnly(t *testing.T) {
	d := NewDebouncer(50 * time.Millisecond)
	defer d.Stop()

	d.Add(Event{Path: "/vault/n1.md", Operation: OpModify, Timestamp: time.Now()})
	d.Add(Event{Path: "/vault/n1.md", Operation: OpDelete, Timestamp: time.Now()})

	select {
	case events := <-d.Output():
		require.Len(t, events, 1)
		assert.Equal(t, OpDelete, events[0].Operation)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for debounced event")
	}
}

func TestDebouncer_DeleteThenCreate_ModifyEvent(t *testing.T) {
	d := NewDebouncer(50 * time.Millisecond)
	defer d.Stop()

	// When: DELETE followed by CREATE (external tool replaced the file)
	d.Add(Event{Path: "/vault/n1.md", Operation: OpDelete, Timestamp: time.Now()})
	d.Add(Event{Path: "/vault/n1.md", Operation: OpCreate, Timestamp: time.Now()})

	select {
	case events := <-d.Output():
		require.Len(t, events, 1)
		assert.Equal(t, OpModify, events[0].Operation)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for debounced event")
	}
}

func TestDebouncer_DifferentPaths_IndependentEvents(t *testing.T) {
	d := NewDebouncer(50 * time.Millisecond)
	defer d.Stop()

	d.Add(Event{Path: "/vault/a.md", Operation: OpCreate, Timestamp: time.Now()})
	d.Add(Event{Path: "/vault/b.md", Operation: OpModify, Timestamp: time.Now()})
	d.Add(Event{Path: "/vault/c.md", Operation: OpDelete, Timestamp: time.Now()})

	select {
	case events := <-d.Output():
		require.Len(t, events, 3)
		ops := make(map[string]Operation)
		for _, e := range events {
			ops[e.Path] = e.Operation
		}
		assert.Equal(t, OpCreate, ops["/vault/a.md"])
		assert.Equal(t, OpModify, ops["/vault/b.md"])
		assert.Equal(t, OpDelete, ops["/vault/c.md"])
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for debounced events")
	}
}

func TestDebouncer_Stop_ClosesOutput(t *testing.T) {
	d := NewDebouncer(50 * time.Millisecond)

	d.Stop()

	select {
	case _, ok := <-d.Output():
		assert.False(t, ok, "channel should be closed")
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for channel close")
	}
}
