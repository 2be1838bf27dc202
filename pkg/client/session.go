// Package client implements the CloudBox client core: the
// state-synchronization layer that keeps any number of concurrently open
// views of one account consistent.
//
// The moving parts, wired together by the embedding application:
//
//   - Session: the credential and identity handed over by the auth
//     collaborator, plus the hard-reset hook fired when the credential
//     is invalidated.
//   - ListStore: one per open view; caches a single scope's listing,
//     patches it optimistically after confirmed mutations, re-loads on
//     bus hints and on a polling ticker.
//   - Navigator: current folder identity and its breadcrumb chain.
//   - Actions: the mutation coordinator; gates double submission with
//     per-entry in-flight tokens and publishes a bus event after every
//     confirmed mutation.
//
// Each view owns its caches exclusively. Views never mutate each other's
// state directly; cross-view consistency travels only through the bus
// and through re-fetching from the service.
package client

import (
	"sync"

	"github.com/cloudbox/cloudbox/pkg/drive"
)

// Session holds the opaque credential token and the authenticated user
// for the lifetime of one application run.
//
// The token is supplied by the auth collaborator and is opaque here;
// the session never parses it. When any service call fails with the
// unauthorized code, the session invalidates exactly once and notifies
// every registered listener; listeners hard-reset their caches, since
// everything fetched under the dead credential is now untrusted.
type Session struct {
	mu          sync.Mutex
	token       string
	user        *drive.User
	invalidated bool
	listeners   []func()
}

// NewSession creates a session around an already-issued credential.
func NewSession(token string) *Session {
	return &Session{token: token}
}

// Token returns the current credential token, or "" after invalidation.
func (s *Session) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.invalidated {
		return ""
	}
	return s.token
}

// SetUser records the authenticated user's profile.
func (s *Session) SetUser(user *drive.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user = user
}

// User returns the authenticated user, or nil if not yet resolved.
func (s *Session) User() *drive.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user
}

// UserID returns the authenticated user's ID, or "".
func (s *Session) UserID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.user == nil {
		return ""
	}
	return s.user.ID
}

// Valid reports whether the credential is still usable.
func (s *Session) Valid() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.invalidated && s.token != ""
}

// OnInvalidated registers a listener fired once when the credential dies.
// Registration after invalidation fires the listener immediately.
func (s *Session) OnInvalidated(fn func()) {
	s.mu.Lock()
	if s.invalidated {
		s.mu.Unlock()
		fn()
		return
	}
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

// Invalidate marks the credential dead and notifies listeners. Safe to
// call repeatedly; only the first call notifies.
func (s *Session) Invalidate() {
	s.mu.Lock()
	if s.invalidated {
		s.mu.Unlock()
		return
	}
	s.invalidated = true
	listeners := s.listeners
	s.listeners = nil
	s.mu.Unlock()

	for _, fn := range listeners {
		fn()
	}
}

// Observe inspects a service error and invalidates the session when the
// error signals a dead credential. Returns err unchanged for chaining.
func (s *Session) Observe(err error) error {
	if err != nil && drive.IsUnauthorized(err) {
		s.Invalidate()
	}
	return err
}
