package badger

import (
	"context"
	"errors"
	"sort"
	"strings"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/cloudbox/cloudbox/pkg/drive"
)

// ListSharedWithMe returns entries carrying a direct grant for the
// actor, owner snapshot populated, most recently updated first.
func (s *Store) ListSharedWithMe(ctx context.Context, actorID string) ([]drive.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []drive.Entry
	err := s.db.View(func(txn *badger.Txn) error {
		return forEachEntry(txn, func(rec *entryRecord) error {
			if rec.Entry.IsTrashed() {
				return nil
			}
			if _, ok := rec.Permissions[actorID]; !ok {
				return nil
			}
			entry := rec.Entry
			entry.Owner = userInTxn(txn, entry.OwnerID)
			out = append(out, entry)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}

// Permissions returns the owner and the grant list for an entry.
func (s *Store) Permissions(ctx context.Context, actorID, id string) (*drive.AccessList, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var access drive.AccessList
	err := s.db.View(func(txn *badger.Txn) error {
		rec, _, err := visibleInTxn(txn, actorID, id)
		if err != nil {
			return err
		}
		access.Owner = userInTxn(txn, rec.Entry.OwnerID)
		access.Permissions = permissionList(txn, rec)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &access, nil
}

// Share grants email's account the given role on the entry, or updates
// the existing grant. Owner only.
func (s *Store) Share(ctx context.Context, actorID, id, email string, role drive.Role) (*drive.ShareResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if role != drive.RoleViewer && role != drive.RoleEditor {
		return nil, drive.Validation("role must be viewer or editor")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var result drive.ShareResult
	err := s.db.Update(func(txn *badger.Txn) error {
		rec, err := ownedInTxn(txn, actorID, id)
		if err != nil {
			return err
		}

		lowered := strings.ToLower(strings.TrimSpace(email))
		item, err := txn.Get(emailKey(lowered))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return drive.Validation("no account found for that email")
			}
			return internalErr(err)
		}
		var targetID string
		item.Value(func(val []byte) error {
			targetID = string(val)
			return nil
		})
		if targetID == rec.Entry.OwnerID {
			return drive.Validation("the owner already has full access")
		}

		mode := drive.ShareModeShared
		if _, exists := rec.Permissions[targetID]; exists {
			mode = drive.ShareModeUpdated
		}
		rec.Permissions[targetID] = role
		if err := putEntry(txn, rec); err != nil {
			return err
		}
		if err := s.recordInTxn(txn, actorID, &rec.Entry, drive.ActionShare); err != nil {
			return err
		}
		result = drive.ShareResult{Mode: mode, Permissions: permissionList(txn, rec)}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// UpdatePermission changes an existing grant's role. Owner only.
func (s *Store) UpdatePermission(ctx context.Context, actorID, id, userID string, role drive.Role) ([]drive.Permission, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if role != drive.RoleViewer && role != drive.RoleEditor {
		return nil, drive.Validation("role must be viewer or editor")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var out []drive.Permission
	err := s.db.Update(func(txn *badger.Txn) error {
		rec, err := ownedInTxn(txn, actorID, id)
		if err != nil {
			return err
		}
		if _, exists := rec.Permissions[userID]; !exists {
			return &drive.ServiceError{Code: drive.ErrNotFound, Message: "no permission for that user", EntryID: id}
		}
		rec.Permissions[userID] = role
		if err := putEntry(txn, rec); err != nil {
			return err
		}
		if err := s.recordInTxn(txn, actorID, &rec.Entry, drive.ActionShare); err != nil {
			return err
		}
		out = permissionList(txn, rec)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// RemovePermission revokes a grant. Owner only.
func (s *Store) RemovePermission(ctx context.Context, actorID, id, userID string) ([]drive.Permission, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var out []drive.Permission
	err := s.db.Update(func(txn *badger.Txn) error {
		rec, err := ownedInTxn(txn, actorID, id)
		if err != nil {
			return err
		}
		if _, exists := rec.Permissions[userID]; !exists {
			return &drive.ServiceError{Code: drive.ErrNotFound, Message: "no permission for that user", EntryID: id}
		}
		delete(rec.Permissions, userID)
		if err := putEntry(txn, rec); err != nil {
			return err
		}
		if err := s.recordInTxn(txn, actorID, &rec.Entry, drive.ActionUnshare); err != nil {
			return err
		}
		out = permissionList(txn, rec)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// History returns events the actor produced plus events on entries the
// actor currently owns, newest first, capped at 100.
func (s *Store) History(ctx context.Context, actorID string) ([]drive.HistoryEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []drive.HistoryEvent
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefixHistory)
		opts.Reverse = true
		it := txn.NewIterator(opts)
		defer it.Close()

		// Reverse iteration needs a seek past the last history key.
		seek := append([]byte(prefixHistory), 0xff)
		for it.Seek(seek); it.Valid() && len(out) < 100; it.Next() {
			var event drive.HistoryEvent
			err := it.Item().Value(func(val []byte) error {
				return unmarshal(val, &event)
			})
			if err != nil {
				return internalErr(err)
			}
			if event.ActorID == actorID {
				out = append(out, event)
				continue
			}
			if rec, err := getEntry(txn, event.EntryID); err == nil && rec.Entry.OwnerID == actorID {
				out = append(out, event)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// permissionList materializes an entry's grants with user snapshots,
// ordered by email for stable output.
func permissionList(txn *badger.Txn, rec *entryRecord) []drive.Permission {
	out := make([]drive.Permission, 0, len(rec.Permissions))
	for userID, role := range rec.Permissions {
		out = append(out, drive.Permission{
			EntryID: rec.Entry.ID,
			UserID:  userID,
			User:    userInTxn(txn, userID),
			Role:    role,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		var a, b string
		if out[i].User != nil {
			a = out[i].User.Email
		}
		if out[j].User != nil {
			b = out[j].User.Email
		}
		return a < b
	})
	return out
}
