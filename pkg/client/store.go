package client

import (
	"context"
	"sync"
	"time"

	"github.com/cloudbox/cloudbox/pkg/bus"
	"github.com/cloudbox/cloudbox/pkg/drive"
)

// ListStore caches the listing for one scope on behalf of one view.
//
// Consistency model:
//   - Load replaces the whole cache from the service, the only strongly
//     consistent read.
//   - Optimistic patches (ApplyCreated/ApplyUpdated/ApplyRemoved) mutate
//     the cache immediately after a mutation the service has already
//     confirmed, so the initiating view never waits on its own bus event.
//   - Bus events trigger a re-load only when they plausibly affect this
//     scope; everything else is ignored to bound re-fetch cost.
//   - A polling ticker bounds staleness for scopes whose mutations never
//     reach the local bus (shared-with-me, or any scope when the relay
//     is degraded).
//
// Staleness guard: every scope change bumps a generation counter, and a
// load only commits its result if the generation it started under is
// still current. A slow response for a folder the user already left can
// therefore never clobber the newer view: scope identity, not a boolean
// flag, decides.
//
// The cache is owned exclusively by its view. A failed load keeps the
// previous items and records a transient error message for display.
type ListStore struct {
	svc     drive.Service
	session *Session

	mu         sync.Mutex
	scope      Scope
	generation uint64
	items      []drive.Entry
	events     []drive.HistoryEvent // ScopeHistory only
	loading    bool
	lastErr    string

	unsubscribe func()
	stopPoll    chan struct{}
}

// Snapshot is what a ListStore exposes to the presentation layer.
type Snapshot struct {
	Scope   Scope
	Items   []drive.Entry
	Events  []drive.HistoryEvent
	Loading bool
	Err     string
}

// NewListStore creates a store for the given scope, subscribed to the
// bus. Pass a nil bus for standalone use (search snapshots, tests).
// The session may be nil; when set, unauthorized loads invalidate it and
// invalidation resets the cache.
func NewListStore(svc drive.Service, b *bus.Bus, session *Session, scope Scope) *ListStore {
	s := &ListStore{svc: svc, session: session, scope: scope}
	if b != nil {
		s.unsubscribe = b.Subscribe(bus.TopicEntityMutated, s.onBusEvent)
	}
	if session != nil {
		session.OnInvalidated(s.Reset)
	}
	return s
}

// Scope returns the store's current scope.
func (s *ListStore) Scope() Scope {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scope
}

// SetScope repoints the store at a new scope. The previous items remain
// visible until the next Load commits, but any load still in flight for
// the old scope is disarmed immediately.
func (s *ListStore) SetScope(scope Scope) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generation++
	s.scope = scope
	s.loading = false
	s.lastErr = ""
}

// Load fetches the scope's full listing and replaces the cache.
//
// On failure the previous cache is kept, the error message is recorded
// for display, and the error is returned for the caller's policy
// (transport errors are only ever retried by explicit user action).
func (s *ListStore) Load(ctx context.Context) error {
	s.mu.Lock()
	gen := s.generation
	scope := s.scope
	s.loading = true
	s.mu.Unlock()

	items, events, err := s.fetch(ctx, scope)

	// Observe before taking the lock: invalidation listeners call Reset,
	// which needs the mutex.
	if err != nil && s.session != nil {
		s.session.Observe(err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.generation != gen {
		// The scope moved on while this load was in flight; drop the
		// stale result on the floor. The error still propagates so the
		// caller can report the failure it just experienced.
		return err
	}
	s.loading = false

	if err != nil {
		s.lastErr = drive.MessageOf(err, "Failed to load.")
		return err
	}

	s.items = items
	s.events = events
	s.lastErr = ""
	return nil
}

// fetch performs the scope-appropriate service read.
func (s *ListStore) fetch(ctx context.Context, scope Scope) ([]drive.Entry, []drive.HistoryEvent, error) {
	switch scope.Kind {
	case ScopeSharedWithMe:
		items, err := s.svc.ListSharedWithMe(ctx)
		return items, nil, err
	case ScopeTrash:
		items, err := s.svc.ListTrash(ctx)
		return items, nil, err
	case ScopeHistory:
		events, err := s.svc.History(ctx)
		return nil, events, err
	case ScopeSearch:
		items, err := s.svc.Search(ctx, scope.Query)
		return items, nil, err
	default:
		items, err := s.svc.List(ctx, scope.FolderID)
		return items, nil, err
	}
}

// Snapshot returns a copy of the current state for rendering.
func (s *ListStore) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{Scope: s.scope, Loading: s.loading, Err: s.lastErr}
	snap.Items = append(snap.Items, s.items...)
	snap.Events = append(snap.Events, s.events...)
	return snap
}

// Contains reports whether the cache currently holds the given entry.
func (s *ListStore) Contains(entryID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.indexOf(entryID) >= 0
}

// ApplyCreated optimistically appends a confirmed new entry when it
// belongs to this folder scope.
func (s *ListStore) ApplyCreated(entry drive.Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.scope.Kind != ScopeFolder || !samePointerTarget(entry.ParentID, s.scope.FolderID) {
		return
	}
	s.items = append(s.items, entry)
}

// ApplyUpdated optimistically replaces a cached entry in place after a
// confirmed field update (rename, new version).
func (s *ListStore) ApplyUpdated(entry drive.Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.scope.Kind == ScopeSearch {
		return
	}
	if i := s.indexOf(entry.ID); i >= 0 {
		s.items[i] = entry
	}
}

// ApplyRemoved optimistically filters out an entry after a confirmed
// trash, restore-elsewhere, or permanent delete.
func (s *ListStore) ApplyRemoved(entryID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.scope.Kind == ScopeSearch {
		return
	}
	if i := s.indexOf(entryID); i >= 0 {
		s.items = append(s.items[:i], s.items[i+1:]...)
	}
}

// Reset drops all cached state, e.g. on credential invalidation.
func (s *ListStore) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generation++
	s.items = nil
	s.events = nil
	s.loading = false
	s.lastErr = ""
}

// StartPolling re-loads the scope on a fixed interval until StopPolling
// or Close. The ticker is the correctness backstop: it bounds staleness
// even when the bus is degraded or the mutating account lives in a
// different browser profile entirely.
func (s *ListStore) StartPolling(interval time.Duration) {
	if interval <= 0 {
		return
	}
	s.mu.Lock()
	if s.stopPoll != nil {
		s.mu.Unlock()
		return
	}
	stop := make(chan struct{})
	s.stopPoll = stop
	s.mu.Unlock()

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				// Search is a one-shot snapshot and must never mutate
				// under the user; the ticker idles while one is shown
				// and resumes when the scope moves on.
				if s.Scope().Kind == ScopeSearch {
					continue
				}
				s.Load(context.Background())
			case <-stop:
				return
			}
		}
	}()
}

// StopPolling halts the polling ticker, if running.
func (s *ListStore) StopPolling() {
	s.mu.Lock()
	stop := s.stopPoll
	s.stopPoll = nil
	s.mu.Unlock()
	if stop != nil {
		close(stop)
	}
}

// Close unsubscribes from the bus and stops polling. The cached items
// stay readable; the store just goes inert.
func (s *ListStore) Close() {
	s.StopPolling()
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
}

// onBusEvent re-loads the scope when the event could plausibly affect
// it. Events are hints, never state: the re-load is what restores truth.
func (s *ListStore) onBusEvent(event bus.Event) {
	if !s.relevant(event) {
		return
	}
	// Handlers run on the publisher's (or the relay's) goroutine and
	// must not block on network I/O.
	go s.Load(context.Background())
}

// relevant applies the scope's invalidation filter.
func (s *ListStore) relevant(event bus.Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.scope.Kind {
	case ScopeSearch:
		// Snapshot view; never invalidated.
		return false
	case ScopeHistory:
		// Every recorded action appends history.
		return true
	case ScopeSharedWithMe:
		return true
	case ScopeTrash:
		switch event.Reason {
		case drive.ActionTrash, drive.ActionRestore, ReasonPermanentDelete:
			return true
		}
		return false
	default: // ScopeFolder
		if event.EntryID != "" {
			if s.scope.FolderID != nil && event.EntryID == *s.scope.FolderID {
				return true
			}
			if s.indexOf(event.EntryID) >= 0 {
				return true
			}
		}
		return samePointerTarget(event.ParentID, s.scope.FolderID)
	}
}

// indexOf returns the cache position of an entry, or -1. Caller holds mu.
func (s *ListStore) indexOf(entryID string) int {
	for i := range s.items {
		if s.items[i].ID == entryID {
			return i
		}
	}
	return -1
}
