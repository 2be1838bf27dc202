// Package badger implements drive.Store on BadgerDB.
//
// Semantics match the memory package exactly; this implementation adds
// persistence across restarts. Values are JSON-encoded under namespaced
// key prefixes (see keys.go), and every operation runs inside a single
// Badger transaction so cascading mutations commit atomically.
//
// Thread safety: Badger transactions already isolate readers, but
// read-modify-write sequences (version counters, permission maps) need
// external serialization, so a store-wide RWMutex guards all operations.
package badger

import (
	"context"
	"encoding/binary"
	"errors"
	"strings"
	"sync"
	"time"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/cloudbox/cloudbox/internal/logger"
	"github.com/cloudbox/cloudbox/pkg/blob"
	"github.com/cloudbox/cloudbox/pkg/drive"
)

// entryRecord is the stored form of an entry: the entry itself plus its
// permission grants (user ID to role). The owner never appears in the
// grants map.
type entryRecord struct {
	Entry       drive.Entry           `json:"entry"`
	Permissions map[string]drive.Role `json:"permissions"`
}

// Store implements drive.Store with BadgerDB persistence.
type Store struct {
	mu    sync.RWMutex
	db    *badger.DB
	blobs blob.Store
	log   *logger.Scoped

	now func() time.Time
}

// Config describes how to open the database.
type Config struct {
	// DBPath is the directory Badger stores its files in. Ignored when
	// InMemory is set.
	DBPath string

	// InMemory keeps everything in RAM. Useful for tests that want the
	// badger code paths without touching disk.
	InMemory bool

	// SyncWrites makes every commit fsync. Slower, survives power loss.
	SyncWrites bool

	// Blobs, when set, holds version payloads outside the database so
	// large files do not bloat it. Nil keeps payloads inline under the
	// content key prefix.
	Blobs blob.Store
}

// NewStore opens (or creates) the database at the configured path.
func NewStore(cfg Config) (*Store, error) {
	opts := badger.DefaultOptions(cfg.DBPath).
		WithInMemory(cfg.InMemory).
		WithSyncWrites(cfg.SyncWrites).
		WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, &drive.ServiceError{Code: drive.ErrInternal, Message: "could not open database: " + err.Error()}
	}
	s := &Store{
		db:    db,
		blobs: cfg.Blobs,
		log:   logger.Component("badger"),
		now:   time.Now,
	}
	if cfg.InMemory {
		s.log.Info("opened in-memory database")
	} else {
		s.log.Info("opened database at %s", cfg.DBPath)
	}
	return s, nil
}

// Close flushes and closes the database and the blob store, if any.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.blobs != nil {
		if err := s.blobs.Close(); err != nil {
			return err
		}
	}
	if err := s.db.Close(); err != nil {
		return err
	}
	s.log.Debug("database closed")
	return nil
}

// ----------------------------------------------------------------------
// Transaction helpers
// ----------------------------------------------------------------------

// getJSON loads and decodes one key. Missing keys return badger.ErrKeyNotFound.
func getJSON(txn *badger.Txn, key []byte, dst interface{}) error {
	item, err := txn.Get(key)
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		return unmarshal(val, dst)
	})
}

// setJSON encodes and stores one key.
func setJSON(txn *badger.Txn, key []byte, v interface{}) error {
	raw, err := marshal(v)
	if err != nil {
		return err
	}
	return txn.Set(key, raw)
}

func getEntry(txn *badger.Txn, id string) (*entryRecord, error) {
	var rec entryRecord
	if err := getJSON(txn, entryKey(id), &rec); err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, drive.NotFound(id)
		}
		return nil, internalErr(err)
	}
	if rec.Permissions == nil {
		rec.Permissions = make(map[string]drive.Role)
	}
	return &rec, nil
}

func putEntry(txn *badger.Txn, rec *entryRecord) error {
	return setJSON(txn, entryKey(rec.Entry.ID), rec)
}

func internalErr(err error) error {
	return &drive.ServiceError{Code: drive.ErrInternal, Message: err.Error()}
}

// putContent stores one version's payload. With an external blob store
// the bytes live outside the transaction; an aborted commit can then
// leave an orphaned blob, which is harmless because version IDs are
// never reused.
func (s *Store) putContent(ctx context.Context, txn *badger.Txn, versionID string, content []byte) error {
	if s.blobs != nil {
		if err := s.blobs.Put(ctx, versionID, content); err != nil {
			return internalErr(err)
		}
		return nil
	}
	if err := txn.Set(contentKey(versionID), content); err != nil {
		return internalErr(err)
	}
	return nil
}

// dropContent removes one version's payload from wherever it lives.
func (s *Store) dropContent(ctx context.Context, txn *badger.Txn, versionID string) error {
	if s.blobs != nil {
		if err := s.blobs.Delete(ctx, versionID); err != nil {
			return internalErr(err)
		}
		return nil
	}
	if err := txn.Delete(contentKey(versionID)); err != nil {
		return internalErr(err)
	}
	return nil
}

// roleInTxn computes the effective role of userID on an entry, walking
// ancestor grants the same way the memory store does.
func roleInTxn(txn *badger.Txn, userID string, rec *entryRecord) drive.Role {
	if rec.Entry.OwnerID == userID {
		return drive.RoleOwner
	}
	cur := rec
	for {
		if role, ok := cur.Permissions[userID]; ok {
			return role
		}
		if cur.Entry.ParentID == nil {
			return drive.RoleNone
		}
		parent, err := getEntry(txn, *cur.Entry.ParentID)
		if err != nil {
			return drive.RoleNone
		}
		cur = parent
	}
}

// visibleInTxn loads an entry the actor can see; invisible entries
// resolve as not-found.
func visibleInTxn(txn *badger.Txn, actorID, id string) (*entryRecord, drive.Role, error) {
	rec, err := getEntry(txn, id)
	if err != nil {
		return nil, drive.RoleNone, err
	}
	role := roleInTxn(txn, actorID, rec)
	if !role.CanView() {
		return nil, drive.RoleNone, drive.NotFound(id)
	}
	return rec, role, nil
}

func editableInTxn(txn *badger.Txn, actorID, id string) (*entryRecord, error) {
	rec, role, err := visibleInTxn(txn, actorID, id)
	if err != nil {
		return nil, err
	}
	if !role.CanEdit() {
		return nil, drive.Forbidden("you do not have permission to modify this item")
	}
	return rec, nil
}

func ownedInTxn(txn *badger.Txn, actorID, id string) (*entryRecord, error) {
	rec, role, err := visibleInTxn(txn, actorID, id)
	if err != nil {
		return nil, err
	}
	if role != drive.RoleOwner {
		return nil, drive.Forbidden("only the owner may do that")
	}
	return rec, nil
}

// userInTxn returns a user snapshot pointer, or nil when unknown.
func userInTxn(txn *badger.Txn, id string) *drive.User {
	var user drive.User
	if err := getJSON(txn, userKey(id), &user); err != nil {
		return nil
	}
	return &user
}

// recordInTxn appends a history event under the next sequence number.
func (s *Store) recordInTxn(txn *badger.Txn, actorID string, entry *drive.Entry, action string) error {
	seq := uint64(0)
	item, err := txn.Get([]byte(keyHistorySeq))
	if err == nil {
		item.Value(func(val []byte) error {
			if len(val) == 8 {
				seq = binary.BigEndian.Uint64(val)
			}
			return nil
		})
	} else if !errors.Is(err, badger.ErrKeyNotFound) {
		return internalErr(err)
	}

	event := drive.HistoryEvent{
		ID:        newID(),
		EntryID:   entry.ID,
		EntryName: entry.Name,
		EntryType: entry.Type,
		Action:    action,
		ActorID:   actorID,
		CreatedAt: s.now(),
	}
	if err := setJSON(txn, historyKey(seq), event); err != nil {
		return err
	}
	next := make([]byte, 8)
	binary.BigEndian.PutUint64(next, seq+1)
	if err := txn.Set([]byte(keyHistorySeq), next); err != nil {
		return internalErr(err)
	}
	return nil
}

// forEachEntry scans every entry record.
func forEachEntry(txn *badger.Txn, fn func(*entryRecord) error) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = []byte(prefixEntry)
	it := txn.NewIterator(opts)
	defer it.Close()

	for it.Rewind(); it.Valid(); it.Next() {
		var rec entryRecord
		err := it.Item().Value(func(val []byte) error {
			return unmarshal(val, &rec)
		})
		if err != nil {
			return internalErr(err)
		}
		if rec.Permissions == nil {
			rec.Permissions = make(map[string]drive.Role)
		}
		if err := fn(&rec); err != nil {
			return err
		}
	}
	return nil
}

// ----------------------------------------------------------------------
// Users
// ----------------------------------------------------------------------

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

	return s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(userKey(user.ID)); err == nil {
			return &drive.ServiceError{Code: drive.ErrConflict, Message: "user already registered"}
		}
		lowered := strings.ToLower(user.Email)
		if _, err := txn.Get(emailKey(lowered)); err == nil {
			return &drive.ServiceError{Code: drive.ErrConflict, Message: "email already registered"}
		}
		if err := setJSON(txn, userKey(user.ID), user); err != nil {
			return err
		}
		if err := txn.Set(emailKey(lowered), []byte(user.ID)); err != nil {
			return internalErr(err)
		}
		return nil
	})
}

// LookupUser resolves a user by ID.
func (s *Store) LookupUser(ctx context.Context, id string) (*drive.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var user drive.User
	err := s.db.View(func(txn *badger.Txn) error {
		if err := getJSON(txn, userKey(id), &user); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return &drive.ServiceError{Code: drive.ErrNotFound, Message: "user not found"}
			}
			return internalErr(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// Profile returns the acting user's profile.
func (s *Store) Profile(ctx context.Context, actorID string) (*drive.User, error) {
	return s.LookupUser(ctx, actorID)
}

// UpdateProfile updates username and email, keeping the email index
// unique and consistent.
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

	var updated drive.User
	err := s.db.Update(func(txn *badger.Txn) error {
		var user drive.User
		if err := getJSON(txn, userKey(actorID), &user); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return &drive.ServiceError{Code: drive.ErrNotFound, Message: "user not found"}
			}
			return internalErr(err)
		}

		lowered := strings.ToLower(email)
		if item, err := txn.Get(emailKey(lowered)); err == nil {
			var owner string
			item.Value(func(val []byte) error {
				owner = string(val)
				return nil
			})
			if owner != actorID {
				return &drive.ServiceError{Code: drive.ErrConflict, Message: "email already in use"}
			}
		}

		if err := txn.Delete(emailKey(strings.ToLower(user.Email))); err != nil {
			return internalErr(err)
		}
		user.Email = email
		if username != "" {
			user.Username = username
		}
		if err := setJSON(txn, userKey(actorID), user); err != nil {
			return err
		}
		if err := txn.Set(emailKey(lowered), []byte(actorID)); err != nil {
			return internalErr(err)
		}
		updated = user
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}
