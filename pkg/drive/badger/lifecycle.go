package badger

import (
	"context"
	"sort"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/cloudbox/cloudbox/pkg/drive"
)

// Trash soft-deletes an entry. Children of a trashed folder keep their
// own state; they become unreachable through listings until the folder
// is restored.
func (s *Store) Trash(ctx context.Context, actorID, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.db.Update(func(txn *badger.Txn) error {
		rec, err := editableInTxn(txn, actorID, id)
		if err != nil {
			return err
		}
		if rec.Entry.IsTrashed() {
			return drive.Validation("item is already in the trash")
		}

		now := s.now()
		rec.Entry.TrashedAt = &now
		rec.Entry.UpdatedAt = now
		if err := putEntry(txn, rec); err != nil {
			return err
		}
		return s.recordInTxn(txn, actorID, &rec.Entry, drive.ActionTrash)
	})
}

// Restore returns a trashed entry to the active state, falling back to
// the root when the original parent is gone or itself trashed.
func (s *Store) Restore(ctx context.Context, actorID, id string) (*drive.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var restored drive.Entry
	err := s.db.Update(func(txn *badger.Txn) error {
		rec, err := editableInTxn(txn, actorID, id)
		if err != nil {
			return err
		}
		if !rec.Entry.IsTrashed() {
			return drive.Validation("item is not in the trash")
		}

		if rec.Entry.ParentID != nil {
			parent, err := getEntry(txn, *rec.Entry.ParentID)
			if err != nil || parent.Entry.IsTrashed() {
				rec.Entry.ParentID = nil
			}
		}

		rec.Entry.TrashedAt = nil
		rec.Entry.UpdatedAt = s.now()
		if err := putEntry(txn, rec); err != nil {
			return err
		}
		if err := s.recordInTxn(txn, actorID, &rec.Entry, drive.ActionRestore); err != nil {
			return err
		}
		restored = rec.Entry
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &restored, nil
}

// DeletePermanently destroys a trashed entry and its whole subtree:
// versions, content, counters and permission grants included.
func (s *Store) DeletePermanently(ctx context.Context, actorID, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.db.Update(func(txn *badger.Txn) error {
		rec, err := ownedInTxn(txn, actorID, id)
		if err != nil {
			return err
		}
		if !rec.Entry.IsTrashed() {
			return drive.Validation("only items in the trash can be permanently deleted")
		}

		victims, err := subtreeInTxn(txn, id)
		if err != nil {
			return err
		}
		for _, victim := range victims {
			versions, err := getVersions(txn, victim)
			if err != nil {
				return err
			}
			for _, version := range versions {
				if err := s.dropContent(ctx, txn, version.ID); err != nil {
					return err
				}
			}
			if err := txn.Delete(versionsKey(victim)); err != nil {
				return internalErr(err)
			}
			if err := txn.Delete(counterKey(victim)); err != nil {
				return internalErr(err)
			}
			if err := txn.Delete(entryKey(victim)); err != nil {
				return internalErr(err)
			}
		}
		return nil
	})
}

// subtreeInTxn collects id and all its descendants, trashed or not.
func subtreeInTxn(txn *badger.Txn, id string) ([]string, error) {
	victims := []string{id}
	children := make(map[string][]string)
	err := forEachEntry(txn, func(rec *entryRecord) error {
		if rec.Entry.ParentID != nil {
			children[*rec.Entry.ParentID] = append(children[*rec.Entry.ParentID], rec.Entry.ID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	for i := 0; i < len(victims); i++ {
		victims = append(victims, children[victims[i]]...)
	}
	return victims, nil
}

// ListTrash returns the actor's trashed entries, most recently trashed
// first.
func (s *Store) ListTrash(ctx context.Context, actorID string) ([]drive.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []drive.Entry
	err := s.db.View(func(txn *badger.Txn) error {
		return forEachEntry(txn, func(rec *entryRecord) error {
			if rec.Entry.IsTrashed() && rec.Entry.OwnerID == actorID {
				out = append(out, rec.Entry)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].TrashedAt.After(*out[j].TrashedAt)
	})
	return out, nil
}

// Versions lists a file's versions, newest first.
func (s *Store) Versions(ctx context.Context, actorID, fileID string) ([]drive.Version, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []drive.Version
	err := s.db.View(func(txn *badger.Txn) error {
		rec, _, err := visibleInTxn(txn, actorID, fileID)
		if err != nil {
			return err
		}
		if rec.Entry.IsFolder() {
			return drive.Validation("folders do not have versions")
		}
		versions, err := getVersions(txn, fileID)
		if err != nil {
			return err
		}
		out = newestFirst(versions)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteVersion removes one version of a file. Deleting the sole
// remaining version fails and changes nothing.
func (s *Store) DeleteVersion(ctx context.Context, actorID, fileID, versionID string) ([]drive.Version, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var out []drive.Version
	err := s.db.Update(func(txn *badger.Txn) error {
		rec, err := editableInTxn(txn, actorID, fileID)
		if err != nil {
			return err
		}
		if rec.Entry.IsFolder() {
			return drive.Validation("folders do not have versions")
		}

		versions, err := getVersions(txn, fileID)
		if err != nil {
			return err
		}
		if len(versions) <= 1 {
			return drive.Validation("cannot delete the only remaining version")
		}

		idx := -1
		for i, v := range versions {
			if v.ID == versionID {
				idx = i
				break
			}
		}
		if idx < 0 {
			return &drive.ServiceError{Code: drive.ErrNotFound, Message: "version not found", EntryID: fileID}
		}

		if err := s.dropContent(ctx, txn, versions[idx].ID); err != nil {
			return err
		}
		versions = append(versions[:idx], versions[idx+1:]...)
		if err := setJSON(txn, versionsKey(fileID), versions); err != nil {
			return err
		}
		if err := s.syncCurrentVersionInTxn(txn, rec, versions); err != nil {
			return err
		}
		if err := s.recordInTxn(txn, actorID, &rec.Entry, drive.ActionVersionDelete); err != nil {
			return err
		}
		out = newestFirst(versions)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ClearVersions prunes all versions except the highest-numbered one.
// Clearing a single-version file is an idempotent no-op.
func (s *Store) ClearVersions(ctx context.Context, actorID, fileID string) ([]drive.Version, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var out []drive.Version
	err := s.db.Update(func(txn *badger.Txn) error {
		rec, err := editableInTxn(txn, actorID, fileID)
		if err != nil {
			return err
		}
		if rec.Entry.IsFolder() {
			return drive.Validation("folders do not have versions")
		}

		versions, err := getVersions(txn, fileID)
		if err != nil {
			return err
		}
		if len(versions) > 1 {
			current := versions[0]
			for _, v := range versions[1:] {
				if v.VersionNumber > current.VersionNumber {
					current = v
				}
			}
			for _, v := range versions {
				if v.ID != current.ID {
					if err := s.dropContent(ctx, txn, v.ID); err != nil {
						return err
					}
				}
			}
			versions = []drive.Version{current}
			if err := setJSON(txn, versionsKey(fileID), versions); err != nil {
				return err
			}
			if err := s.syncCurrentVersionInTxn(txn, rec, versions); err != nil {
				return err
			}
			if err := s.recordInTxn(txn, actorID, &rec.Entry, drive.ActionVersionClear); err != nil {
				return err
			}
		}
		out = newestFirst(versions)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// syncCurrentVersionInTxn refreshes the entry's size and UpdatedAt from
// the highest-numbered surviving version.
func (s *Store) syncCurrentVersionInTxn(txn *badger.Txn, rec *entryRecord, versions []drive.Version) error {
	if len(versions) == 0 {
		return nil
	}
	current := versions[0]
	for _, v := range versions[1:] {
		if v.VersionNumber > current.VersionNumber {
			current = v
		}
	}
	rec.Entry.Size = current.Size
	rec.Entry.UpdatedAt = s.now()
	return putEntry(txn, rec)
}

// newestFirst returns a copy sorted by descending version number.
func newestFirst(versions []drive.Version) []drive.Version {
	out := make([]drive.Version, len(versions))
	copy(out, versions)
	sort.Slice(out, func(i, j int) bool {
		return out[i].VersionNumber > out[j].VersionNumber
	})
	return out
}
