package drive

import "context"

// Service is the client-side boundary to the File/Folder Service.
//
// The acting user is implicit: implementations carry an opaque credential
// (supplied by the auth collaborator) and attach it to every call. All
// methods respect context cancellation, and every failure is a
// *ServiceError so callers can branch on the error category.
//
// Consistency contract: reads through this interface are the only
// strongly consistent view of the backend. Bus events and cached listings
// are hints; when they disagree with a fresh read, the read wins.
type Service interface {
	// List returns the non-trashed children of the given folder, or the
	// caller's root entries when parentID is nil. Every returned entry
	// resolves to at least RoleViewer for the caller.
	List(ctx context.Context, parentID *string) ([]Entry, error)

	// FolderPath returns the root-first breadcrumb chain for a folder:
	// its ancestors followed by the folder itself. A root-level folder
	// yields a single-segment chain.
	FolderPath(ctx context.Context, folderID string) ([]Entry, error)

	// CreateFolder creates a folder under parentID (root when nil).
	CreateFolder(ctx context.Context, name string, parentID *string) (*Entry, error)

	// UploadFile creates a new file entry with its first version.
	UploadFile(ctx context.Context, upload Upload) (*Entry, error)

	// UploadVersion adds a new version to an existing file and returns
	// the updated entry.
	UploadVersion(ctx context.Context, fileID string, content []byte) (*Entry, error)

	// Rename changes an entry's name. Requires editor or owner.
	Rename(ctx context.Context, id, name string) (*Entry, error)

	// Trash soft-deletes an entry. Requires editor or owner.
	Trash(ctx context.Context, id string) error

	// Restore returns a trashed entry to the active state.
	Restore(ctx context.Context, id string) (*Entry, error)

	// DeletePermanently destroys a trashed entry, cascading to its
	// versions, permissions and (for folders) its whole subtree.
	// Irreversible. Owner only.
	DeletePermanently(ctx context.Context, id string) error

	// Search returns a ranked snapshot of entries matching the query.
	Search(ctx context.Context, query string) ([]Entry, error)

	// ListTrash returns the caller's trashed entries.
	ListTrash(ctx context.Context) ([]Entry, error)

	// ListSharedWithMe returns entries other accounts shared with the
	// caller, with the Owner snapshot populated.
	ListSharedWithMe(ctx context.Context) ([]Entry, error)

	// Permissions returns the owner and permission list for an entry.
	Permissions(ctx context.Context, id string) (*AccessList, error)

	// Share grants or updates access for the user identified by email.
	// Owner only. The result reports whether the grant was created or
	// updated and carries the refreshed permission list.
	Share(ctx context.Context, id, email string, role Role) (*ShareResult, error)

	// UpdatePermission changes an existing grant's role. Owner only.
	UpdatePermission(ctx context.Context, id, userID string, role Role) ([]Permission, error)

	// RemovePermission revokes a grant. Owner only.
	RemovePermission(ctx context.Context, id, userID string) ([]Permission, error)

	// Versions lists a file's versions, newest first.
	Versions(ctx context.Context, fileID string) ([]Version, error)

	// DeleteVersion removes a single version. Rejected with a validation
	// error when it would leave the file with zero versions.
	DeleteVersion(ctx context.Context, fileID, versionID string) ([]Version, error)

	// ClearVersions prunes all versions except the current (highest
	// numbered) one, which is always retained.
	ClearVersions(ctx context.Context, fileID string) ([]Version, error)

	// RecordOpen appends an "open" history event for the entry.
	RecordOpen(ctx context.Context, id string) error

	// History returns the caller's recent history events, newest first.
	History(ctx context.Context) ([]HistoryEvent, error)

	// Profile returns the authenticated user's profile.
	Profile(ctx context.Context) (*User, error)

	// UpdateProfile updates the caller's username and email.
	UpdateProfile(ctx context.Context, username, email string) (*User, error)

	// ChangePassword rotates the caller's password.
	ChangePassword(ctx context.Context, currentPassword, newPassword string) error
}
