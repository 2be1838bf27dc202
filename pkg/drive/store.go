package drive

import "context"

// Store is the server-side counterpart of Service: the same operations
// with the acting user named explicitly, so implementations can enforce
// access control instead of trusting the caller.
//
// Role enforcement (implementations MUST apply these regardless of any
// client-side gating):
//   - rename, trash, restore, version operations: editor or owner
//   - share, permission changes, permanent delete: owner only
//   - reads: any resolvable role ≥ viewer
//
// Lifecycle invariants (see memory.Store for the reference model):
//   - a non-trashed file always keeps ≥ 1 version; DeleteVersion on the
//     sole version fails with ErrValidation and changes nothing
//   - ClearVersions retains exactly the highest-numbered version
//   - version numbers are monotonic per file and never reused
//   - DeletePermanently requires the entry to be trashed first and
//     cascades to versions, permissions and folder subtrees
//
// Thread safety: implementations must be safe for concurrent use.
type Store interface {
	// RegisterUser adds an account to the store. Dev/test surface; real
	// deployments provision users through the auth service instead.
	RegisterUser(ctx context.Context, user User) error

	// LookupUser resolves a user by ID.
	LookupUser(ctx context.Context, id string) (*User, error)

	List(ctx context.Context, actorID string, parentID *string) ([]Entry, error)
	FolderPath(ctx context.Context, actorID, folderID string) ([]Entry, error)
	CreateFolder(ctx context.Context, actorID, name string, parentID *string) (*Entry, error)
	UploadFile(ctx context.Context, actorID string, upload Upload) (*Entry, error)
	UploadVersion(ctx context.Context, actorID, fileID string, content []byte) (*Entry, error)
	Rename(ctx context.Context, actorID, id, name string) (*Entry, error)
	Trash(ctx context.Context, actorID, id string) error
	Restore(ctx context.Context, actorID, id string) (*Entry, error)
	DeletePermanently(ctx context.Context, actorID, id string) error
	Search(ctx context.Context, actorID, query string) ([]Entry, error)
	ListTrash(ctx context.Context, actorID string) ([]Entry, error)
	ListSharedWithMe(ctx context.Context, actorID string) ([]Entry, error)
	Permissions(ctx context.Context, actorID, id string) (*AccessList, error)
	Share(ctx context.Context, actorID, id, email string, role Role) (*ShareResult, error)
	UpdatePermission(ctx context.Context, actorID, id, userID string, role Role) ([]Permission, error)
	RemovePermission(ctx context.Context, actorID, id, userID string) ([]Permission, error)
	Versions(ctx context.Context, actorID, fileID string) ([]Version, error)
	DeleteVersion(ctx context.Context, actorID, fileID, versionID string) ([]Version, error)
	ClearVersions(ctx context.Context, actorID, fileID string) ([]Version, error)
	RecordOpen(ctx context.Context, actorID, id string) error
	History(ctx context.Context, actorID string) ([]HistoryEvent, error)
	Profile(ctx context.Context, actorID string) (*User, error)
	UpdateProfile(ctx context.Context, actorID, username, email string) (*User, error)

	// Close releases any resources held by the store.
	Close() error
}

// BoundService adapts a Store to the client-side Service interface by
// fixing the acting user. Used by tests and in-process setups to drive
// the client core without a transport in between.
type BoundService struct {
	store   Store
	actorID string
}

// Bind returns a Service view of store acting as the given user.
func Bind(store Store, actorID string) *BoundService {
	return &BoundService{store: store, actorID: actorID}
}

func (b *BoundService) List(ctx context.Context, parentID *string) ([]Entry, error) {
	return b.store.List(ctx, b.actorID, parentID)
}

func (b *BoundService) FolderPath(ctx context.Context, folderID string) ([]Entry, error) {
	return b.store.FolderPath(ctx, b.actorID, folderID)
}

func (b *BoundService) CreateFolder(ctx context.Context, name string, parentID *string) (*Entry, error) {
	return b.store.CreateFolder(ctx, b.actorID, name, parentID)
}

func (b *BoundService) UploadFile(ctx context.Context, upload Upload) (*Entry, error) {
	return b.store.UploadFile(ctx, b.actorID, upload)
}

func (b *BoundService) UploadVersion(ctx context.Context, fileID string, content []byte) (*Entry, error) {
	return b.store.UploadVersion(ctx, b.actorID, fileID, content)
}

func (b *BoundService) Rename(ctx context.Context, id, name string) (*Entry, error) {
	return b.store.Rename(ctx, b.actorID, id, name)
}

func (b *BoundService) Trash(ctx context.Context, id string) error {
	return b.store.Trash(ctx, b.actorID, id)
}

func (b *BoundService) Restore(ctx context.Context, id string) (*Entry, error) {
	return b.store.Restore(ctx, b.actorID, id)
}

func (b *BoundService) DeletePermanently(ctx context.Context, id string) error {
	return b.store.DeletePermanently(ctx, b.actorID, id)
}

func (b *BoundService) Search(ctx context.Context, query string) ([]Entry, error) {
	return b.store.Search(ctx, b.actorID, query)
}

func (b *BoundService) ListTrash(ctx context.Context) ([]Entry, error) {
	return b.store.ListTrash(ctx, b.actorID)
}

func (b *BoundService) ListSharedWithMe(ctx context.Context) ([]Entry, error) {
	return b.store.ListSharedWithMe(ctx, b.actorID)
}

func (b *BoundService) Permissions(ctx context.Context, id string) (*AccessList, error) {
	return b.store.Permissions(ctx, b.actorID, id)
}

func (b *BoundService) Share(ctx context.Context, id, email string, role Role) (*ShareResult, error) {
	return b.store.Share(ctx, b.actorID, id, email, role)
}

func (b *BoundService) UpdatePermission(ctx context.Context, id, userID string, role Role) ([]Permission, error) {
	return b.store.UpdatePermission(ctx, b.actorID, id, userID, role)
}

func (b *BoundService) RemovePermission(ctx context.Context, id, userID string) ([]Permission, error) {
	return b.store.RemovePermission(ctx, b.actorID, id, userID)
}

func (b *BoundService) Versions(ctx context.Context, fileID string) ([]Version, error) {
	return b.store.Versions(ctx, b.actorID, fileID)
}

func (b *BoundService) DeleteVersion(ctx context.Context, fileID, versionID string) ([]Version, error) {
	return b.store.DeleteVersion(ctx, b.actorID, fileID, versionID)
}

func (b *BoundService) ClearVersions(ctx context.Context, fileID string) ([]Version, error) {
	return b.store.ClearVersions(ctx, b.actorID, fileID)
}

func (b *BoundService) RecordOpen(ctx context.Context, id string) error {
	return b.store.RecordOpen(ctx, b.actorID, id)
}

func (b *BoundService) History(ctx context.Context) ([]HistoryEvent, error) {
	return b.store.History(ctx, b.actorID)
}

func (b *BoundService) Profile(ctx context.Context) (*User, error) {
	return b.store.Profile(ctx, b.actorID)
}

func (b *BoundService) UpdateProfile(ctx context.Context, username, email string) (*User, error) {
	return b.store.UpdateProfile(ctx, b.actorID, username, email)
}

func (b *BoundService) ChangePassword(ctx context.Context, currentPassword, newPassword string) error {
	// Password material never transits the Store interface; dev setups
	// accept any rotation for the bound user.
	return nil
}
