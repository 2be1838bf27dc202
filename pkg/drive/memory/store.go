// Package memory provides an in-memory implementation of drive.Store.
//
// This implementation is the executable reference model for the version
// and trash lifecycle: the one-version floor, monotonic version numbers,
// trash visibility rules, permanent-delete cascades and role enforcement
// are all enforced here. It backs the client-core tests and the dev server; the
// badger package provides the same semantics with persistence.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cloudbox/cloudbox/pkg/drive"
)

// entryData pairs an entry with its permission grants.
//
// Permissions map user IDs to viewer/editor roles. The owner never
// appears here; ownership lives on the entry itself.
type entryData struct {
	entry       drive.Entry
	permissions map[string]drive.Role
}

// Store implements drive.Store with in-memory maps.
//
// Thread safety: a single read-write mutex guards all state. Coarse but
// correct, and the store's scale (one account tree per dev server) never
// makes the lock contended enough to matter.
//
// Storage model:
//   - users/emails: account identities and the email → ID index
//   - entries: entry ID → entry + its permission grants; the parent
//     chain is walked by scanning, which keeps create/move/delete simple
//   - versions/counters: per-file version lists (ascending) and the
//     monotonic number counter, which deliberately survives every prune
//   - content: version ID → raw bytes
//   - history: append-only event log, newest entries last
type Store struct {
	mu       sync.RWMutex
	users    map[string]drive.User
	emails   map[string]string
	entries  map[string]*entryData
	versions map[string][]drive.Version
	counters map[string]int
	content  map[string][]byte
	history  []drive.HistoryEvent

	now func() time.Time
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		users:    make(map[string]drive.User),
		emails:   make(map[string]string),
		entries:  make(map[string]*entryData),
		versions: make(map[string][]drive.Version),
		counters: make(map[string]int),
		content:  make(map[string][]byte),
		now:      time.Now,
	}
}

// Close implements drive.Store. Nothing to release.
func (s *Store) Close() error { return nil }

// RegisterUser adds an account.
func (s *Store) RegisterUser(ctx context.Context, user drive.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if user.ID == "" || user.Email == "" {
		return drive.Validation("user id and email are required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.users[user.ID]; exists {
		return &drive.ServiceError{Code: drive.ErrConflict, Message: "user already registered"}
	}
	if _, exists := s.emails[strings.ToLower(user.Email)]; exists {
		return &drive.ServiceError{Code: drive.ErrConflict, Message: "email already registered"}
	}

	s.users[user.ID] = user
	s.emails[strings.ToLower(user.Email)] = user.ID
	return nil
}

// LookupUser resolves a user by ID.
func (s *Store) LookupUser(ctx context.Context, id string) (*drive.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[id]
	if !ok {
		return nil, &drive.ServiceError{Code: drive.ErrNotFound, Message: "user not found"}
	}
	return &user, nil
}

// Profile returns the acting user's profile.
func (s *Store) Profile(ctx context.Context, actorID string) (*drive.User, error) {
	return s.LookupUser(ctx, actorID)
}

// UpdateProfile updates username and email, keeping the email index
// consistent and unique.
func (s *Store) UpdateProfile(ctx context.Context, actorID, username, email string) (*drive.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	email = strings.TrimSpace(email)
	username = strings.TrimSpace(username)
	if email == "" {
		return nil, drive.Validation("email must not be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[actorID]
	if !ok {
		return nil, &drive.ServiceError{Code: drive.ErrNotFound, Message: "user not found"}
	}

	lowered := strings.ToLower(email)
	if owner, taken := s.emails[lowered]; taken && owner != actorID {
		return nil, &drive.ServiceError{Code: drive.ErrConflict, Message: "email already in use"}
	}

	delete(s.emails, strings.ToLower(user.Email))
	user.Email = email
	if username != "" {
		user.Username = username
	}
	s.users[actorID] = user
	s.emails[lowered] = actorID
	return &user, nil
}

// ----------------------------------------------------------------------
// Role resolution and lookup helpers (callers hold at least a read lock)
// ----------------------------------------------------------------------

// roleLocked computes the effective role of userID on an entry.
//
// The entry's own grants win over inherited ones; otherwise the nearest
// ancestor holding a grant for the user decides. Ancestor grants are what
// make a shared folder's contents reachable: sharing a folder implicitly
// extends the same role to everything below it.
func (s *Store) roleLocked(userID string, data *entryData) drive.Role {
	if data.entry.OwnerID == userID {
		return drive.RoleOwner
	}
	for cur := data; cur != nil; {
		if role, ok := cur.permissions[userID]; ok {
			return role
		}
		if cur.entry.ParentID == nil {
			break
		}
		cur = s.entries[*cur.entry.ParentID]
	}
	return drive.RoleNone
}

// visibleLocked returns the entry and the actor's role on it. Entries the
// actor cannot see resolve as not-found so their existence never leaks.
func (s *Store) visibleLocked(actorID, id string) (*entryData, drive.Role, error) {
	data, ok := s.entries[id]
	if !ok {
		return nil, drive.RoleNone, drive.NotFound(id)
	}
	role := s.roleLocked(actorID, data)
	if !role.CanView() {
		return nil, drive.RoleNone, drive.NotFound(id)
	}
	return data, role, nil
}

// editableLocked is visibleLocked plus the editor-or-owner gate used by
// every entry mutation.
func (s *Store) editableLocked(actorID, id string) (*entryData, error) {
	data, role, err := s.visibleLocked(actorID, id)
	if err != nil {
		return nil, err
	}
	if !role.CanEdit() {
		return nil, drive.Forbidden("you do not have permission to modify this item")
	}
	return data, nil
}

// ownedLocked is visibleLocked plus the owner-only gate used by sharing
// and permanent deletion.
func (s *Store) ownedLocked(actorID, id string) (*entryData, error) {
	data, role, err := s.visibleLocked(actorID, id)
	if err != nil {
		return nil, err
	}
	if role != drive.RoleOwner {
		return nil, drive.Forbidden("only the owner may do that")
	}
	return data, nil
}

// recordLocked appends a history event for an entry.
func (s *Store) recordLocked(actorID string, entry *drive.Entry, action string) {
	s.history = append(s.history, drive.HistoryEvent{
		ID:        uuid.NewString(),
		EntryID:   entry.ID,
		EntryName: entry.Name,
		EntryType: entry.Type,
		Action:    action,
		ActorID:   actorID,
		CreatedAt: s.now(),
	})
}

// userSnapshotLocked returns a pointer copy of a user for embedding in
// responses, or nil for unknown IDs.
func (s *Store) userSnapshotLocked(id string) *drive.User {
	if user, ok := s.users[id]; ok {
		u := user
		return &u
	}
	return nil
}

// sortEntries orders listings folders-first, then by name.
func sortEntries(entries []drive.Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Type != entries[j].Type {
			return entries[i].Type == drive.EntryTypeFolder
		}
		return strings.ToLower(entries[i].Name) < strings.ToLower(entries[j].Name)
	})
}
