// Package drive defines the domain model and service boundaries for the
// CloudBox collaborative-storage client.
//
// The package is deliberately transport-agnostic: it describes entries,
// permissions, versions and the operations the File/Folder Service offers,
// without committing to a wire format. Concrete implementations live in
// subpackages:
//
//   - httpapi: REST client talking to a remote service
//   - memory:  in-memory reference implementation (tests, dev server)
//   - badger:  persistent implementation backed by BadgerDB
//
// Two interfaces cover the same operations from different vantage points:
//
//   - Service: client-side view; the acting user is implicit in the
//     credential carried by the implementation.
//   - Store: server-side view; every operation names the acting user
//     explicitly so implementations can enforce access control.
package drive

import "time"

// EntryType distinguishes files from folders.
type EntryType string

const (
	EntryTypeFile   EntryType = "file"
	EntryTypeFolder EntryType = "folder"
)

// User identifies an account. Credential handling (tokens, passwords)
// stays outside this package; User is identity only.
type User struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Username string `json:"username"`
}

// Entry is a node in the ownership tree: a file or a folder.
//
// Invariants:
//   - The ParentID chain is acyclic and every ancestor is a folder.
//   - A nil ParentID means the entry sits at the root of its owner's tree.
//   - TrashedAt is non-nil exactly while the entry is soft-deleted; trashed
//     entries are excluded from normal listings and path resolution but
//     remain addressable by ID for restore and permanent deletion.
//   - A non-trashed file always has at least one version.
type Entry struct {
	ID        string     `json:"id"`
	Type      EntryType  `json:"type"`
	Name      string     `json:"name"`
	ParentID  *string    `json:"parentId,omitempty"`
	OwnerID   string     `json:"ownerId"`
	Owner     *User      `json:"owner,omitempty"` // populated on shared listings
	Size      int64      `json:"size,omitempty"`  // files only
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
	TrashedAt *time.Time `json:"trashedAt,omitempty"`
}

// IsFolder reports whether the entry is a folder.
func (e *Entry) IsFolder() bool { return e.Type == EntryTypeFolder }

// IsTrashed reports whether the entry is currently soft-deleted.
func (e *Entry) IsTrashed() bool { return e.TrashedAt != nil }

// Permission grants a non-owner user access to a single entry.
//
// The owner is never represented as a Permission row; ownership lives on
// Entry.OwnerID. A user holds at most one row per entry.
type Permission struct {
	EntryID string `json:"entryId"`
	UserID  string `json:"userId"`
	User    *User  `json:"user,omitempty"`
	Role    Role   `json:"role"` // viewer or editor only
}

// Version is one historical content revision of a file.
//
// VersionNumber is 1-based and strictly monotonic per file: the counter
// never rewinds, so numbers are never reused even after versions are
// deleted or history is cleared.
type Version struct {
	ID            string    `json:"id"`
	FileID        string    `json:"fileId"`
	VersionNumber int       `json:"versionNumber"`
	UploadedBy    *User     `json:"uploadedBy,omitempty"`
	Size          int64     `json:"size"`
	CreatedAt     time.Time `json:"createdAt"`
}

// HistoryEvent is an append-only record of an action taken on an entry.
// The service owns these records; the client only reads them.
type HistoryEvent struct {
	ID        string    `json:"id"`
	EntryID   string    `json:"entryId"`
	EntryName string    `json:"entryName"`
	EntryType EntryType `json:"entryType"`
	Action    string    `json:"action"`
	ActorID   string    `json:"actorId"`
	CreatedAt time.Time `json:"createdAt"`
}

// History actions recorded by the service.
const (
	ActionOpen          = "open"
	ActionRename        = "rename"
	ActionShare         = "share"
	ActionUnshare       = "unshare"
	ActionTrash         = "trash"
	ActionRestore       = "restore"
	ActionVersionUpload = "version-upload"
	ActionVersionDelete = "version-delete"
	ActionVersionClear  = "version-clear"
)

// AccessList is the permission snapshot for one entry: the owner plus all
// explicitly granted permissions. Views re-resolve roles from this
// snapshot rather than caching a role across fetches.
type AccessList struct {
	Owner       *User        `json:"owner"`
	Permissions []Permission `json:"permissions"`
}

// ShareResult reports whether a share call created a new grant or updated
// an existing one, along with the refreshed permission list.
type ShareResult struct {
	// Mode is "shared" for a new grant, "updated" when the target user
	// already had a permission row on the entry.
	Mode        string       `json:"mode"`
	Permissions []Permission `json:"permissions"`
}

const (
	ShareModeShared  = "shared"
	ShareModeUpdated = "updated"
)

// Upload describes a new file or file version handed to the service.
// Content transport mechanics (multipart framing, resumability) are the
// transport's concern; at this boundary content is just bytes.
type Upload struct {
	Name     string
	ParentID *string
	Content  []byte
}
