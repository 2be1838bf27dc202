package bus

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalPublishSubscribe(t *testing.T) {
	b := New()
	defer b.Close()

	var got []Event
	unsubscribe := b.Subscribe(TopicEntityMutated, func(ev Event) {
		got = append(got, ev)
	})

	b.Publish(TopicEntityMutated, Event{Reason: "rename", EntryID: "e1"})
	require.Len(t, got, 1)
	assert.Equal(t, "rename", got[0].Reason)

	unsubscribe()
	b.Publish(TopicEntityMutated, Event{Reason: "trash", EntryID: "e1"})
	assert.Len(t, got, 1, "no delivery after unsubscribe")

	// Unsubscribing twice is a no-op.
	unsubscribe()
}

func TestTopicsAreIsolated(t *testing.T) {
	b := New()
	defer b.Close()

	called := false
	b.Subscribe("other-topic", func(Event) { called = true })
	b.Publish(TopicEntityMutated, Event{Reason: "rename"})
	assert.False(t, called)
}

func TestPublishAfterCloseIsSilent(t *testing.T) {
	b := New()
	called := false
	b.Subscribe(TopicEntityMutated, func(Event) { called = true })
	b.Close()
	b.Publish(TopicEntityMutated, Event{Reason: "rename"})
	assert.False(t, called)
}

func TestHandlerMayUnsubscribeItself(t *testing.T) {
	b := New()
	defer b.Close()

	count := 0
	var unsubscribe func()
	unsubscribe = b.Subscribe(TopicEntityMutated, func(Event) {
		count++
		unsubscribe()
	})

	b.Publish(TopicEntityMutated, Event{Reason: "rename"})
	b.Publish(TopicEntityMutated, Event{Reason: "rename"})
	assert.Equal(t, 1, count)
}

// collect subscribes on b and returns a function that waits for n events.
func collect(t *testing.T, b *Bus) (waitFor func(n int) []Event) {
	t.Helper()
	var mu sync.Mutex
	var got []Event
	b.Subscribe(TopicEntityMutated, func(ev Event) {
		mu.Lock()
		got = append(got, ev)
		mu.Unlock()
	})
	return func(n int) []Event {
		deadline := time.Now().Add(2 * time.Second)
		for time.Now().Before(deadline) {
			mu.Lock()
			if len(got) >= n {
				out := append([]Event(nil), got...)
				mu.Unlock()
				return out
			}
			mu.Unlock()
			time.Sleep(10 * time.Millisecond)
		}
		mu.Lock()
		defer mu.Unlock()
		t.Fatalf("timed out waiting for %d events, have %d", n, len(got))
		return nil
	}
}

func TestRelayBetweenProcessesOnOneSocket(t *testing.T) {
	socket := filepath.Join(t.TempDir(), "events.sock")

	hub := New(WithRelay(socket))
	defer hub.Close()
	require.True(t, hub.Relayed(), "first bus binds the socket")

	clientA := New(WithRelay(socket))
	defer clientA.Close()
	clientB := New(WithRelay(socket))
	defer clientB.Close()
	require.True(t, clientA.Relayed())
	require.True(t, clientB.Relayed())

	waitHub := collect(t, hub)
	waitB := collect(t, clientB)

	// Give the hub a moment to accept both connections.
	time.Sleep(50 * time.Millisecond)

	clientA.Publish(TopicEntityMutated, Event{Reason: "trash", EntryID: "e1"})

	assert.Equal(t, "trash", waitHub(1)[0].Reason)
	assert.Equal(t, "trash", waitB(1)[0].Reason, "hub rebroadcasts to other clients")
}

func TestSenderNeverReceivesItsOwnEcho(t *testing.T) {
	socket := filepath.Join(t.TempDir(), "events.sock")

	hub := New(WithRelay(socket))
	defer hub.Close()
	client := New(WithRelay(socket))
	defer client.Close()

	var mu sync.Mutex
	count := 0
	client.Subscribe(TopicEntityMutated, func(Event) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	time.Sleep(50 * time.Millisecond)
	client.Publish(TopicEntityMutated, Event{Reason: "rename"})

	// Local delivery happens exactly once; the relayed echo is dropped.
	time.Sleep(200 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, count)
}

func TestDegradesToLocalOnlyWhenRelayImpossible(t *testing.T) {
	// A directory path can be neither bound, dialed, nor removed.
	b := New(WithRelay(t.TempDir()))
	defer b.Close()

	assert.False(t, b.Relayed())

	got := 0
	b.Subscribe(TopicEntityMutated, func(Event) { got++ })
	b.Publish(TopicEntityMutated, Event{Reason: "rename"})
	assert.Equal(t, 1, got, "local delivery survives relay failure")
}

func TestStaleSocketIsReclaimed(t *testing.T) {
	socket := filepath.Join(t.TempDir(), "events.sock")

	// Crash simulation: a hub binds and exits without cleanup.
	old := New(WithRelay(socket))
	require.True(t, old.Relayed())
	old.Close()

	replacement := New(WithRelay(socket))
	defer replacement.Close()
	assert.True(t, replacement.Relayed(), "new hub takes over the socket path")
}
