package memory

import (
	"context"
	"sort"

	"github.com/cloudbox/cloudbox/pkg/drive"
)

// Trash soft-deletes an entry: TrashedAt is set and the entry disappears
// from normal listings and path resolution while remaining addressable by
// ID. Children of a trashed folder keep their own state untouched; they
// become unreachable through listings until the folder is restored.
func (s *Store) Trash(ctx context.Context, actorID, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.editableLocked(actorID, id)
	if err != nil {
		return err
	}
	if data.entry.IsTrashed() {
		return drive.Validation("item is already in the trash")
	}

	now := s.now()
	data.entry.TrashedAt = &now
	data.entry.UpdatedAt = now
	s.recordLocked(actorID, &data.entry, drive.ActionTrash)
	return nil
}

// Restore returns a trashed entry to the active state. If the original
// parent folder is gone or itself trashed, the entry restores to the
// root so it is never revived into an unreachable position.
func (s *Store) Restore(ctx context.Context, actorID, id string) (*drive.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.editableLocked(actorID, id)
	if err != nil {
		return nil, err
	}
	if !data.entry.IsTrashed() {
		return nil, drive.Validation("item is not in the trash")
	}

	if data.entry.ParentID != nil {
		parent, ok := s.entries[*data.entry.ParentID]
		if !ok || parent.entry.IsTrashed() {
			data.entry.ParentID = nil
		}
	}

	data.entry.TrashedAt = nil
	data.entry.UpdatedAt = s.now()
	s.recordLocked(actorID, &data.entry, drive.ActionRestore)
	entry := data.entry
	return &entry, nil
}

// DeletePermanently destroys a trashed entry and everything hanging off
// it: the folder subtree, all versions and their content, and all
// permission grants. Terminal: a subsequent lookup reports not-found.
func (s *Store) DeletePermanently(ctx context.Context, actorID, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.ownedLocked(actorID, id)
	if err != nil {
		return err
	}
	if !data.entry.IsTrashed() {
		return drive.Validation("only items in the trash can be permanently deleted")
	}

	for _, victim := range s.subtreeLocked(id) {
		for _, version := range s.versions[victim] {
			delete(s.content, version.ID)
		}
		delete(s.versions, victim)
		delete(s.counters, victim)
		delete(s.entries, victim)
	}
	return nil
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
	for _, data := range s.entries {
		if data.entry.IsTrashed() && data.entry.OwnerID == actorID {
			out = append(out, data.entry)
		}
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

	data, _, err := s.visibleLocked(actorID, fileID)
	if err != nil {
		return nil, err
	}
	if data.entry.IsFolder() {
		return nil, drive.Validation("folders do not have versions")
	}
	return s.versionsNewestFirstLocked(fileID), nil
}

// DeleteVersion removes one version of a file.
//
// The one-version floor is enforced here no matter what the client
// rendered: deleting the sole remaining version fails with a validation
// error and the list is unchanged.
func (s *Store) DeleteVersion(ctx context.Context, actorID, fileID, versionID string) ([]drive.Version, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.editableLocked(actorID, fileID)
	if err != nil {
		return nil, err
	}
	if data.entry.IsFolder() {
		return nil, drive.Validation("folders do not have versions")
	}

	versions := s.versions[fileID]
	if len(versions) <= 1 {
		return nil, drive.Validation("cannot delete the only remaining version")
	}

	idx := -1
	for i, v := range versions {
		if v.ID == versionID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, &drive.ServiceError{Code: drive.ErrNotFound, Message: "version not found", EntryID: fileID}
	}

	delete(s.content, versions[idx].ID)
	s.versions[fileID] = append(versions[:idx], versions[idx+1:]...)
	s.syncCurrentVersionLocked(data)
	s.recordLocked(actorID, &data.entry, drive.ActionVersionDelete)
	return s.versionsNewestFirstLocked(fileID), nil
}

// ClearVersions prunes all versions except the current one; the version
// with the highest number, which is always retained. Clearing a file
// that already has a single version is an idempotent no-op.
func (s *Store) ClearVersions(ctx context.Context, actorID, fileID string) ([]drive.Version, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.editableLocked(actorID, fileID)
	if err != nil {
		return nil, err
	}
	if data.entry.IsFolder() {
		return nil, drive.Validation("folders do not have versions")
	}

	versions := s.versions[fileID]
	if len(versions) > 1 {
		current := versions[0]
		for _, v := range versions[1:] {
			if v.VersionNumber > current.VersionNumber {
				current = v
			}
		}
		for _, v := range versions {
			if v.ID != current.ID {
				delete(s.content, v.ID)
			}
		}
		s.versions[fileID] = []drive.Version{current}
		s.syncCurrentVersionLocked(data)
		s.recordLocked(actorID, &data.entry, drive.ActionVersionClear)
	}
	return s.versionsNewestFirstLocked(fileID), nil
}

// subtreeLocked collects id and all its descendants, trashed or not.
func (s *Store) subtreeLocked(id string) []string {
	victims := []string{id}
	for i := 0; i < len(victims); i++ {
		for childID, child := range s.entries {
			if child.entry.ParentID != nil && *child.entry.ParentID == victims[i] {
				victims = append(victims, childID)
			}
		}
	}
	return victims
}

// syncCurrentVersionLocked refreshes the entry's size and UpdatedAt from
// the highest-numbered surviving version.
func (s *Store) syncCurrentVersionLocked(data *entryData) {
	versions := s.versions[data.entry.ID]
	if len(versions) == 0 {
		return
	}
	current := versions[0]
	for _, v := range versions[1:] {
		if v.VersionNumber > current.VersionNumber {
			current = v
		}
	}
	data.entry.Size = current.Size
	data.entry.UpdatedAt = s.now()
}

// versionsNewestFirstLocked returns a sorted copy of a file's versions.
func (s *Store) versionsNewestFirstLocked(fileID string) []drive.Version {
	versions := s.versions[fileID]
	out := make([]drive.Version, len(versions))
	copy(out, versions)
	sort.Slice(out, func(i, j int) bool {
		return out[i].VersionNumber > out[j].VersionNumber
	})
	return out
}
