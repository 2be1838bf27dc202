package client

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/cloudbox/cloudbox/pkg/bus"
	"github.com/cloudbox/cloudbox/pkg/drive"
)

// Mutation reasons published on the bus that have no matching history
// action constant.
const (
	ReasonCreateFolder    = "create-folder"
	ReasonUploadFile      = "upload"
	ReasonPermanentDelete = "permanent-delete"
	ReasonUpdateShare     = "share-update"
)

// Actions coordinates mutations for one view.
//
// Every confirmed mutation publishes exactly one bus event so sibling
// views revalidate; the initiating view is expected to patch its own
// ListStore optimistically from the returned entry instead of waiting
// for its own event to come back around.
//
// Double-submission guard: while a mutation for an entry is in flight,
// a second mutation targeting the same entry is rejected with a
// validation error before any service call is made. The guard is keyed
// by entry ID and held by a random token, so only the action that
// acquired it can release it.
type Actions struct {
	svc     drive.Service
	bus     *bus.Bus
	session *Session

	mu       sync.Mutex
	inFlight map[string]string // entry ID -> holder token
}

// NewActions wires an action coordinator. The bus may be nil, in which
// case mutations still work but publish nothing.
func NewActions(svc drive.Service, b *bus.Bus, session *Session) *Actions {
	return &Actions{svc: svc, bus: b, session: session, inFlight: make(map[string]string)}
}

// begin claims the in-flight slot for an entry. The returned token must
// be passed to finish.
func (a *Actions) begin(entryID string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, busy := a.inFlight[entryID]; busy {
		return "", drive.Validation("another operation on this item is still in progress")
	}
	token := uuid.NewString()
	a.inFlight[entryID] = token
	return token, nil
}

// finish releases the in-flight slot if we still hold it.
func (a *Actions) finish(entryID, token string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.inFlight[entryID] == token {
		delete(a.inFlight, entryID)
	}
}

// publish emits a mutation hint for sibling views.
func (a *Actions) publish(reason, entryID string, parentID *string) {
	if a.bus == nil {
		return
	}
	a.bus.Publish(bus.TopicEntityMutated, bus.Event{
		Reason:   reason,
		EntryID:  entryID,
		ParentID: parentID,
	})
}

// observe funnels every service error through the session.
func (a *Actions) observe(err error) error {
	if a.session != nil {
		return a.session.Observe(err)
	}
	return err
}

// CreateFolder creates a folder under parentID (root when nil). Names
// are rejected client-side when blank so the obvious mistake never
// costs a round trip; the service revalidates regardless.
func (a *Actions) CreateFolder(ctx context.Context, name string, parentID *string) (*drive.Entry, error) {
	if strings.TrimSpace(name) == "" {
		return nil, drive.Validation("name cannot be empty")
	}
	entry, err := a.svc.CreateFolder(ctx, name, parentID)
	if err != nil {
		return nil, a.observe(err)
	}
	a.publish(ReasonCreateFolder, entry.ID, entry.ParentID)
	return entry, nil
}

// UploadFile creates a new file with its first version.
func (a *Actions) UploadFile(ctx context.Context, upload drive.Upload) (*drive.Entry, error) {
	if strings.TrimSpace(upload.Name) == "" {
		return nil, drive.Validation("name cannot be empty")
	}
	entry, err := a.svc.UploadFile(ctx, upload)
	if err != nil {
		return nil, a.observe(err)
	}
	a.publish(ReasonUploadFile, entry.ID, entry.ParentID)
	return entry, nil
}

// UploadVersion adds a new content version to an existing file.
func (a *Actions) UploadVersion(ctx context.Context, fileID string, content []byte) (*drive.Entry, error) {
	token, err := a.begin(fileID)
	if err != nil {
		return nil, err
	}
	defer a.finish(fileID, token)

	entry, err := a.svc.UploadVersion(ctx, fileID, content)
	if err != nil {
		return nil, a.observe(err)
	}
	a.publish(drive.ActionVersionUpload, entry.ID, entry.ParentID)
	return entry, nil
}

// Rename changes an entry's name.
func (a *Actions) Rename(ctx context.Context, entry drive.Entry, name string) (*drive.Entry, error) {
	if strings.TrimSpace(name) == "" {
		return nil, drive.Validation("name cannot be empty")
	}
	token, err := a.begin(entry.ID)
	if err != nil {
		return nil, err
	}
	defer a.finish(entry.ID, token)

	updated, err := a.svc.Rename(ctx, entry.ID, name)
	if err != nil {
		return nil, a.observe(err)
	}
	a.publish(drive.ActionRename, updated.ID, updated.ParentID)
	return updated, nil
}

// Trash soft-deletes an entry.
func (a *Actions) Trash(ctx context.Context, entry drive.Entry) error {
	token, err := a.begin(entry.ID)
	if err != nil {
		return err
	}
	defer a.finish(entry.ID, token)

	if err := a.svc.Trash(ctx, entry.ID); err != nil {
		return a.observe(err)
	}
	a.publish(drive.ActionTrash, entry.ID, entry.ParentID)
	return nil
}

// Restore returns a trashed entry to the active state. The returned
// entry carries the parent it actually restored into, which may be the
// root when the original parent no longer exists.
func (a *Actions) Restore(ctx context.Context, entry drive.Entry) (*drive.Entry, error) {
	token, err := a.begin(entry.ID)
	if err != nil {
		return nil, err
	}
	defer a.finish(entry.ID, token)

	restored, err := a.svc.Restore(ctx, entry.ID)
	if err != nil {
		return nil, a.observe(err)
	}
	a.publish(drive.ActionRestore, restored.ID, restored.ParentID)
	return restored, nil
}

// DeletePermanently destroys a trashed entry and everything under it.
// The call is refused unless confirmed is true: the view must have
// walked the user through an explicit confirmation, because there is no
// undo on the other side of this call.
func (a *Actions) DeletePermanently(ctx context.Context, entry drive.Entry, confirmed bool) error {
	if !confirmed {
		return drive.Validation("permanent deletion requires confirmation")
	}
	token, err := a.begin(entry.ID)
	if err != nil {
		return err
	}
	defer a.finish(entry.ID, token)

	if err := a.svc.DeletePermanently(ctx, entry.ID); err != nil {
		return a.observe(err)
	}
	a.publish(ReasonPermanentDelete, entry.ID, entry.ParentID)
	return nil
}

// Share grants or updates access for the account behind email.
func (a *Actions) Share(ctx context.Context, entry drive.Entry, email string, role drive.Role) (*drive.ShareResult, error) {
	token, err := a.begin(entry.ID)
	if err != nil {
		return nil, err
	}
	defer a.finish(entry.ID, token)

	result, err := a.svc.Share(ctx, entry.ID, email, role)
	if err != nil {
		return nil, a.observe(err)
	}
	a.publish(drive.ActionShare, entry.ID, entry.ParentID)
	return result, nil
}

// UpdatePermission changes an existing grant's role.
func (a *Actions) UpdatePermission(ctx context.Context, entry drive.Entry, userID string, role drive.Role) ([]drive.Permission, error) {
	token, err := a.begin(entry.ID)
	if err != nil {
		return nil, err
	}
	defer a.finish(entry.ID, token)

	perms, err := a.svc.UpdatePermission(ctx, entry.ID, userID, role)
	if err != nil {
		return nil, a.observe(err)
	}
	a.publish(ReasonUpdateShare, entry.ID, entry.ParentID)
	return perms, nil
}

// RemovePermission revokes a grant.
func (a *Actions) RemovePermission(ctx context.Context, entry drive.Entry, userID string) ([]drive.Permission, error) {
	token, err := a.begin(entry.ID)
	if err != nil {
		return nil, err
	}
	defer a.finish(entry.ID, token)

	perms, err := a.svc.RemovePermission(ctx, entry.ID, userID)
	if err != nil {
		return nil, a.observe(err)
	}
	a.publish(drive.ActionUnshare, entry.ID, entry.ParentID)
	return perms, nil
}

// DeleteVersion removes one version of a file. The service enforces the
// one-version floor; the refreshed version list is returned either way
// a view wants to re-render.
func (a *Actions) DeleteVersion(ctx context.Context, entry drive.Entry, versionID string) ([]drive.Version, error) {
	token, err := a.begin(entry.ID)
	if err != nil {
		return nil, err
	}
	defer a.finish(entry.ID, token)

	versions, err := a.svc.DeleteVersion(ctx, entry.ID, versionID)
	if err != nil {
		return nil, a.observe(err)
	}
	a.publish(drive.ActionVersionDelete, entry.ID, entry.ParentID)
	return versions, nil
}

// ClearVersions prunes all versions except the current one.
func (a *Actions) ClearVersions(ctx context.Context, entry drive.Entry) ([]drive.Version, error) {
	token, err := a.begin(entry.ID)
	if err != nil {
		return nil, err
	}
	defer a.finish(entry.ID, token)

	versions, err := a.svc.ClearVersions(ctx, entry.ID)
	if err != nil {
		return nil, a.observe(err)
	}
	a.publish(drive.ActionVersionClear, entry.ID, entry.ParentID)
	return versions, nil
}

// Open records an open event. Opens do not change any listing, so no
// bus event is published and failures are swallowed after the session
// has seen them; an open that fails to record must never block the open
// itself.
func (a *Actions) Open(ctx context.Context, entry drive.Entry) {
	if err := a.svc.RecordOpen(ctx, entry.ID); err != nil {
		a.observe(err)
	}
}
