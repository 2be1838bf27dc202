package badger

import (
	"context"
	"sort"
	"strings"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/cloudbox/cloudbox/pkg/drive"
)

// List returns the non-trashed children of parentID, or the actor's own
// root entries when parentID is nil. Visibility inside a visible folder
// is inherited from the folder.
func (s *Store) List(ctx context.Context, actorID string, parentID *string) ([]drive.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []drive.Entry
	err := s.db.View(func(txn *badger.Txn) error {
		if parentID != nil {
			parent, _, err := visibleInTxn(txn, actorID, *parentID)
			if err != nil {
				return err
			}
			if !parent.Entry.IsFolder() {
				return drive.Validation("not a folder")
			}
			if parent.Entry.IsTrashed() {
				return drive.NotFound(*parentID)
			}
		}

		return forEachEntry(txn, func(rec *entryRecord) error {
			if rec.Entry.IsTrashed() {
				return nil
			}
			if parentID == nil {
				if rec.Entry.ParentID != nil || rec.Entry.OwnerID != actorID {
					return nil
				}
			} else if rec.Entry.ParentID == nil || *rec.Entry.ParentID != *parentID {
				return nil
			}
			out = append(out, rec.Entry)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sortEntries(out)
	return out, nil
}

// FolderPath returns the root-first breadcrumb chain for a folder: its
// ancestors followed by the folder itself. Trashed ancestors terminate
// the chain.
func (s *Store) FolderPath(ctx context.Context, actorID, folderID string) ([]drive.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var chain []drive.Entry
	err := s.db.View(func(txn *badger.Txn) error {
		rec, _, err := visibleInTxn(txn, actorID, folderID)
		if err != nil {
			return err
		}
		if !rec.Entry.IsFolder() {
			return drive.Validation("not a folder")
		}
		if rec.Entry.IsTrashed() {
			return drive.NotFound(folderID)
		}

		for cur := rec; cur.Entry.ParentID != nil; {
			parent, err := getEntry(txn, *cur.Entry.ParentID)
			if err != nil || parent.Entry.IsTrashed() {
				break
			}
			chain = append([]drive.Entry{parent.Entry}, chain...)
			cur = parent
		}
		chain = append(chain, rec.Entry)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return chain, nil
}

// checkParentInTxn validates the destination folder for a create.
func checkParentInTxn(txn *badger.Txn, actorID string, parentID *string) error {
	if parentID == nil {
		return nil
	}
	parent, role, err := visibleInTxn(txn, actorID, *parentID)
	if err != nil {
		return err
	}
	if !parent.Entry.IsFolder() {
		return drive.Validation("parent is not a folder")
	}
	if parent.Entry.IsTrashed() {
		return drive.NotFound(*parentID)
	}
	if !role.CanEdit() {
		return drive.Forbidden("you do not have permission to add items here")
	}
	return nil
}

// CreateFolder creates a folder under parentID (root when nil).
func (s *Store) CreateFolder(ctx context.Context, actorID, name string, parentID *string) (*drive.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, drive.Validation("folder name must not be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	entry := drive.Entry{
		ID:        newID(),
		Type:      drive.EntryTypeFolder,
		Name:      name,
		ParentID:  parentID,
		OwnerID:   actorID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		if err := checkParentInTxn(txn, actorID, parentID); err != nil {
			return err
		}
		return putEntry(txn, &entryRecord{Entry: entry, Permissions: map[string]drive.Role{}})
	})
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// UploadFile creates a file entry with its first version.
func (s *Store) UploadFile(ctx context.Context, actorID string, upload drive.Upload) (*drive.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(upload.Name)
	if name == "" {
		return nil, drive.Validation("file name must not be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	entry := drive.Entry{
		ID:        newID(),
		Type:      drive.EntryTypeFile,
		Name:      name,
		ParentID:  upload.ParentID,
		OwnerID:   actorID,
		Size:      int64(len(upload.Content)),
		CreatedAt: now,
		UpdatedAt: now,
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		if err := checkParentInTxn(txn, actorID, upload.ParentID); err != nil {
			return err
		}
		if err := putEntry(txn, &entryRecord{Entry: entry, Permissions: map[string]drive.Role{}}); err != nil {
			return err
		}
		return s.appendVersionInTxn(ctx, txn, actorID, entry.ID, upload.Content)
	})
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// UploadVersion appends a new version to an existing file.
func (s *Store) UploadVersion(ctx context.Context, actorID, fileID string, content []byte) (*drive.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var updated drive.Entry
	err := s.db.Update(func(txn *badger.Txn) error {
		rec, err := editableInTxn(txn, actorID, fileID)
		if err != nil {
			return err
		}
		if rec.Entry.IsFolder() {
			return drive.Validation("folders do not have versions")
		}
		if rec.Entry.IsTrashed() {
			return drive.Validation("cannot modify an item in the trash")
		}

		if err := s.appendVersionInTxn(ctx, txn, actorID, fileID, content); err != nil {
			return err
		}
		rec.Entry.Size = int64(len(content))
		rec.Entry.UpdatedAt = s.now()
		if err := putEntry(txn, rec); err != nil {
			return err
		}
		if err := s.recordInTxn(txn, actorID, &rec.Entry, drive.ActionVersionUpload); err != nil {
			return err
		}
		updated = rec.Entry
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// appendVersionInTxn issues the next version number and stores content.
// The counter only moves forward, so numbers are never reused no matter
// how many versions are pruned later.
func (s *Store) appendVersionInTxn(ctx context.Context, txn *badger.Txn, actorID, fileID string, content []byte) error {
	number, err := nextVersionNumber(txn, fileID)
	if err != nil {
		return err
	}
	version := drive.Version{
		ID:            newID(),
		FileID:        fileID,
		VersionNumber: number,
		UploadedBy:    userInTxn(txn, actorID),
		Size:          int64(len(content)),
		CreatedAt:     s.now(),
	}
	versions, err := getVersions(txn, fileID)
	if err != nil {
		return err
	}
	versions = append(versions, version)
	if err := setJSON(txn, versionsKey(fileID), versions); err != nil {
		return err
	}
	return s.putContent(ctx, txn, version.ID, content)
}

// Rename changes an entry's name.
func (s *Store) Rename(ctx context.Context, actorID, id, name string) (*drive.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, drive.Validation("name must not be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var updated drive.Entry
	err := s.db.Update(func(txn *badger.Txn) error {
		rec, err := editableInTxn(txn, actorID, id)
		if err != nil {
			return err
		}
		if rec.Entry.IsTrashed() {
			return drive.Validation("cannot rename an item in the trash")
		}

		rec.Entry.Name = name
		rec.Entry.UpdatedAt = s.now()
		if err := putEntry(txn, rec); err != nil {
			return err
		}
		if err := s.recordInTxn(txn, actorID, &rec.Entry, drive.ActionRename); err != nil {
			return err
		}
		updated = rec.Entry
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// Search returns non-trashed entries visible to the actor whose name
// matches the query, best matches first: exact, then prefix, then
// substring, ties broken by name.
func (s *Store) Search(ctx context.Context, actorID, query string) ([]drive.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return nil, drive.Validation("search query must not be empty")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	type ranked struct {
		entry drive.Entry
		rank  int
	}
	var matches []ranked
	err := s.db.View(func(txn *badger.Txn) error {
		return forEachEntry(txn, func(rec *entryRecord) error {
			if rec.Entry.IsTrashed() {
				return nil
			}
			if !roleInTxn(txn, actorID, rec).CanView() {
				return nil
			}
			name := strings.ToLower(rec.Entry.Name)
			var rank int
			switch {
			case name == query:
				rank = 0
			case strings.HasPrefix(name, query):
				rank = 1
			case strings.Contains(name, query):
				rank = 2
			default:
				return nil
			}
			matches = append(matches, ranked{entry: rec.Entry, rank: rank})
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].rank != matches[j].rank {
			return matches[i].rank < matches[j].rank
		}
		return strings.ToLower(matches[i].entry.Name) < strings.ToLower(matches[j].entry.Name)
	})

	out := make([]drive.Entry, len(matches))
	for i, m := range matches {
		out[i] = m.entry
	}
	return out, nil
}

// RecordOpen appends an "open" history event for a visible entry.
func (s *Store) RecordOpen(ctx context.Context, actorID, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.db.Update(func(txn *badger.Txn) error {
		rec, _, err := visibleInTxn(txn, actorID, id)
		if err != nil {
			return err
		}
		return s.recordInTxn(txn, actorID, &rec.Entry, drive.ActionOpen)
	})
}
