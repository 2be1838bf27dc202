// Package bus implements the CloudBox event bus: in-process
// publish/subscribe plus a best-effort relay to sibling processes on the
// same machine.
//
// The bus is the propagation half of the consistency story. Delivery is
// at-most-once with no ordering guarantee across processes, and a process
// that is not running at publish time never sees the event; there is no
// replay log. Consumers therefore treat every event as a hint to
// re-validate against the service, never as a source of truth. The
// correctness backstop is the list stores' polling fallback, which bounds
// staleness even when the relay is unavailable.
//
// A bus is an explicitly constructed, injectable value with process-wide
// lifetime. Tests build a fresh bus per case; nothing in this package is
// a global.
package bus

import (
	"sync"
)

// TopicEntityMutated is the single topic the client core uses: some
// entity changed, re-validate anything that might show it.
const TopicEntityMutated = "entity-mutated"

// Event describes a state-affecting action. It intentionally carries no
// authoritative state, only enough identity for subscribers to decide
// whether their scope is affected.
type Event struct {
	// Reason is the action name that triggered the event (trash, rename,
	// share, version-upload, ...).
	Reason string `json:"reason"`

	// EntryID identifies the mutated entry, when known.
	EntryID string `json:"entryId,omitempty"`

	// ParentID identifies the folder whose listing the mutation affects.
	ParentID *string `json:"parentId,omitempty"`
}

// Handler receives events for one subscription. Handlers run synchronously
// on the publishing goroutine for local events and on the relay goroutine
// for remote ones; they must not block for long.
type Handler func(Event)

// Bus is an in-process topic bus with an optional cross-process relay.
//
// Publish delivers synchronously to local subscribers, then hands the
// event to the relay (if one is attached) for asynchronous best-effort
// delivery to sibling processes. Relay failures are silent: the bus
// degrades to local-only delivery, exactly like a browser profile without
// a broadcast channel.
type Bus struct {
	mu     sync.RWMutex
	subs   map[string]map[uint64]Handler
	nextID uint64
	closed bool

	relay *relay
}

// Option configures a Bus.
type Option func(*options)

type options struct {
	socketPath string
}

// WithRelay attaches a cross-process relay on the given unix socket path.
// All buses sharing the path (across processes of the same user) see each
// other's events. If the socket can neither be bound nor dialed, the bus
// silently stays local-only.
func WithRelay(socketPath string) Option {
	return func(o *options) { o.socketPath = socketPath }
}

// New constructs a bus. Without options the bus is local-only.
func New(opts ...Option) *Bus {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	b := &Bus{subs: make(map[string]map[uint64]Handler)}
	if o.socketPath != "" {
		// A nil relay means the environment doesn't support it; the bus
		// keeps working locally and the polling fallback covers the rest.
		b.relay = newRelay(o.socketPath, b.dispatch)
	}
	return b
}

// Publish delivers event to all local subscribers of topic, then relays
// it to sibling processes. Safe for concurrent use.
func (b *Bus) Publish(topic string, event Event) {
	b.dispatch(topic, event)

	b.mu.RLock()
	r := b.relay
	closed := b.closed
	b.mu.RUnlock()

	if r != nil && !closed {
		r.send(topic, event)
	}
}

// Subscribe registers a handler for topic and returns its unsubscribe
// function. Unsubscribing twice is a no-op.
func (b *Bus) Subscribe(topic string, fn Handler) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed || fn == nil {
		return func() {}
	}

	b.nextID++
	id := b.nextID
	if b.subs[topic] == nil {
		b.subs[topic] = make(map[uint64]Handler)
	}
	b.subs[topic][id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if handlers, ok := b.subs[topic]; ok {
				delete(handlers, id)
			}
		})
	}
}

// Relayed reports whether the cross-process relay is currently attached
// and healthy. Diagnostic only; consumers must not change behavior based
// on it beyond logging.
func (b *Bus) Relayed() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.relay != nil && b.relay.healthy()
}

// Close detaches the relay and drops all subscriptions. Publishing on a
// closed bus is a silent no-op.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	r := b.relay
	b.relay = nil
	b.subs = make(map[string]map[uint64]Handler)
	b.mu.Unlock()

	if r != nil {
		r.close()
	}
}

// dispatch delivers to local subscribers only. Handlers are snapshotted
// under the read lock and invoked outside it, so a handler may subscribe
// or unsubscribe without deadlocking.
func (b *Bus) dispatch(topic string, event Event) {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return
	}
	handlers := make([]Handler, 0, len(b.subs[topic]))
	for _, fn := range b.subs[topic] {
		handlers = append(handlers, fn)
	}
	b.mu.RUnlock()

	for _, fn := range handlers {
		fn(event)
	}
}
