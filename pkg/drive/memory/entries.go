package memory

import (
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/cloudbox/cloudbox/pkg/drive"
)

// List returns the non-trashed children of parentID, or the actor's own
// root entries when parentID is nil.
//
// Root is personal: shared items surface through ListSharedWithMe, never
// mixed into the actor's root listing. Inside a folder the actor can see,
// visibility is inherited from the folder, so children are listed without
// a second per-child role check.
func (s *Store) List(ctx context.Context, actorID string, parentID *string) ([]drive.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if parentID != nil {
		parent, _, err := s.visibleLocked(actorID, *parentID)
		if err != nil {
			return nil, err
		}
		if !parent.entry.IsFolder() {
			return nil, drive.Validation("not a folder")
		}
		if parent.entry.IsTrashed() {
			return nil, drive.NotFound(*parentID)
		}
	}

	var out []drive.Entry
	for _, data := range s.entries {
		if data.entry.IsTrashed() {
			continue
		}
		if parentID == nil {
			if data.entry.ParentID != nil || data.entry.OwnerID != actorID {
				continue
			}
		} else if data.entry.ParentID == nil || *data.entry.ParentID != *parentID {
			continue
		}
		out = append(out, data.entry)
	}
	sortEntries(out)
	return out, nil
}

// FolderPath returns the root-first breadcrumb chain for a folder: its
// ancestors followed by the folder itself. Trashed ancestors terminate
// the chain; path resolution never reaches through the trash.
func (s *Store) FolderPath(ctx context.Context, actorID, folderID string) ([]drive.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	data, _, err := s.visibleLocked(actorID, folderID)
	if err != nil {
		return nil, err
	}
	if !data.entry.IsFolder() {
		return nil, drive.Validation("not a folder")
	}
	if data.entry.IsTrashed() {
		return nil, drive.NotFound(folderID)
	}

	var chain []drive.Entry
	for cur := data; cur.entry.ParentID != nil; {
		parent, ok := s.entries[*cur.entry.ParentID]
		if !ok || parent.entry.IsTrashed() {
			break
		}
		chain = append([]drive.Entry{parent.entry}, chain...)
		cur = parent
	}

	// Include the folder itself as the last breadcrumb segment.
	chain = append(chain, data.entry)
	return chain, nil
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

	if err := s.checkParentLocked(actorID, parentID); err != nil {
		return nil, err
	}

	now := s.now()
	entry := drive.Entry{
		ID:        uuid.NewString(),
		Type:      drive.EntryTypeFolder,
		Name:      name,
		ParentID:  parentID,
		OwnerID:   actorID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.entries[entry.ID] = &entryData{entry: entry, permissions: make(map[string]drive.Role)}
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

	if err := s.checkParentLocked(actorID, upload.ParentID); err != nil {
		return nil, err
	}

	now := s.now()
	entry := drive.Entry{
		ID:        uuid.NewString(),
		Type:      drive.EntryTypeFile,
		Name:      name,
		ParentID:  upload.ParentID,
		OwnerID:   actorID,
		Size:      int64(len(upload.Content)),
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.entries[entry.ID] = &entryData{entry: entry, permissions: make(map[string]drive.Role)}
	s.appendVersionLocked(actorID, entry.ID, upload.Content)
	return &entry, nil
}

// UploadVersion appends a new version to an existing file.
func (s *Store) UploadVersion(ctx context.Context, actorID, fileID string, content []byte) (*drive.Entry, error) {
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
	if data.entry.IsTrashed() {
		return nil, drive.Validation("cannot modify an item in the trash")
	}

	s.appendVersionLocked(actorID, fileID, content)
	data.entry.Size = int64(len(content))
	data.entry.UpdatedAt = s.now()
	s.recordLocked(actorID, &data.entry, drive.ActionVersionUpload)
	entry := data.entry
	return &entry, nil
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

	data, err := s.editableLocked(actorID, id)
	if err != nil {
		return nil, err
	}
	if data.entry.IsTrashed() {
		return nil, drive.Validation("cannot rename an item in the trash")
	}

	data.entry.Name = name
	data.entry.UpdatedAt = s.now()
	s.recordLocked(actorID, &data.entry, drive.ActionRename)
	entry := data.entry
	return &entry, nil
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
	for _, data := range s.entries {
		if data.entry.IsTrashed() {
			continue
		}
		if !s.roleLocked(actorID, data).CanView() {
			continue
		}
		name := strings.ToLower(data.entry.Name)
		var rank int
		switch {
		case name == query:
			rank = 0
		case strings.HasPrefix(name, query):
			rank = 1
		case strings.Contains(name, query):
			rank = 2
		default:
			continue
		}
		matches = append(matches, ranked{entry: data.entry, rank: rank})
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

	data, _, err := s.visibleLocked(actorID, id)
	if err != nil {
		return err
	}
	s.recordLocked(actorID, &data.entry, drive.ActionOpen)
	return nil
}

// checkParentLocked validates the destination folder for a create.
func (s *Store) checkParentLocked(actorID string, parentID *string) error {
	if parentID == nil {
		return nil
	}
	parent, role, err := s.visibleLocked(actorID, *parentID)
	if err != nil {
		return err
	}
	if !parent.entry.IsFolder() {
		return drive.Validation("parent is not a folder")
	}
	if parent.entry.IsTrashed() {
		return drive.NotFound(*parentID)
	}
	if !role.CanEdit() {
		return drive.Forbidden("you do not have permission to add items here")
	}
	return nil
}

// appendVersionLocked issues the next version number for a file and
// stores the content. The counter only ever moves forward, so numbers
// are never reused no matter how many versions are pruned later.
func (s *Store) appendVersionLocked(actorID, fileID string, content []byte) {
	s.counters[fileID]++
	version := drive.Version{
		ID:            uuid.NewString(),
		FileID:        fileID,
		VersionNumber: s.counters[fileID],
		UploadedBy:    s.userSnapshotLocked(actorID),
		Size:          int64(len(content)),
		CreatedAt:     s.now(),
	}
	s.versions[fileID] = append(s.versions[fileID], version)
	s.content[version.ID] = content
}
