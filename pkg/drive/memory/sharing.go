package memory

import (
	"context"
	"sort"
	"strings"

	"github.com/cloudbox/cloudbox/pkg/drive"
)

// ListSharedWithMe returns entries carrying a direct grant for the actor,
// owner snapshot populated, most recently updated first. Items reachable
// only through a shared ancestor are not repeated here; the shared folder
// itself is the entry point.
func (s *Store) ListSharedWithMe(ctx context.Context, actorID string) ([]drive.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []drive.Entry
	for _, data := range s.entries {
		if data.entry.IsTrashed() {
			continue
		}
		if _, ok := data.permissions[actorID]; !ok {
			continue
		}
		entry := data.entry
		entry.Owner = s.userSnapshotLocked(entry.OwnerID)
		out = append(out, entry)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}

// Permissions returns the owner and the grant list for an entry. Any
// role that can see the entry may read its access list; only the owner
// may change it.
func (s *Store) Permissions(ctx context.Context, actorID, id string) (*drive.AccessList, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	data, _, err := s.visibleLocked(actorID, id)
	if err != nil {
		return nil, err
	}
	return &drive.AccessList{
		Owner:       s.userSnapshotLocked(data.entry.OwnerID),
		Permissions: s.permissionListLocked(data),
	}, nil
}

// Share grants email's account the given role on the entry, or updates
// the existing grant. Owner only. The owner can never be a grant target.
func (s *Store) Share(ctx context.Context, actorID, id, email string, role drive.Role) (*drive.ShareResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if role != drive.RoleViewer && role != drive.RoleEditor {
		return nil, drive.Validation("role must be viewer or editor")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.ownedLocked(actorID, id)
	if err != nil {
		return nil, err
	}

	targetID, ok := s.emails[strings.ToLower(strings.TrimSpace(email))]
	if !ok {
		return nil, drive.Validation("no account found for that email")
	}
	if targetID == data.entry.OwnerID {
		return nil, drive.Validation("the owner already has full access")
	}

	mode := drive.ShareModeShared
	if _, exists := data.permissions[targetID]; exists {
		mode = drive.ShareModeUpdated
	}
	data.permissions[targetID] = role
	s.recordLocked(actorID, &data.entry, drive.ActionShare)

	return &drive.ShareResult{
		Mode:        mode,
		Permissions: s.permissionListLocked(data),
	}, nil
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

	data, err := s.ownedLocked(actorID, id)
	if err != nil {
		return nil, err
	}
	if _, exists := data.permissions[userID]; !exists {
		return nil, &drive.ServiceError{Code: drive.ErrNotFound, Message: "no permission for that user", EntryID: id}
	}

	data.permissions[userID] = role
	s.recordLocked(actorID, &data.entry, drive.ActionShare)
	return s.permissionListLocked(data), nil
}

// RemovePermission revokes a grant. Owner only.
func (s *Store) RemovePermission(ctx context.Context, actorID, id, userID string) ([]drive.Permission, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.ownedLocked(actorID, id)
	if err != nil {
		return nil, err
	}
	if _, exists := data.permissions[userID]; !exists {
		return nil, &drive.ServiceError{Code: drive.ErrNotFound, Message: "no permission for that user", EntryID: id}
	}

	delete(data.permissions, userID)
	s.recordLocked(actorID, &data.entry, drive.ActionUnshare)
	return s.permissionListLocked(data), nil
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
	for i := len(s.history) - 1; i >= 0 && len(out) < 100; i-- {
		event := s.history[i]
		if event.ActorID == actorID {
			out = append(out, event)
			continue
		}
		if data, ok := s.entries[event.EntryID]; ok && data.entry.OwnerID == actorID {
			out = append(out, event)
		}
	}
	return out, nil
}

// permissionListLocked materializes an entry's grants with user
// snapshots, ordered by email for stable output.
func (s *Store) permissionListLocked(data *entryData) []drive.Permission {
	out := make([]drive.Permission, 0, len(data.permissions))
	for userID, role := range data.permissions {
		out = append(out, drive.Permission{
			EntryID: data.entry.ID,
			UserID:  userID,
			User:    s.userSnapshotLocked(userID),
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
