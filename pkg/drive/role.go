package drive

// Role is the effective access level a user holds on an entry.
//
// Roles are derived, never stored: ownership comes from Entry.OwnerID,
// grants from Permission rows, and everything else is RoleNone. A listing
// that returns an entry to a user implies that user resolves to at least
// RoleViewer; RoleNone must never reach rendering.
type Role string

const (
	RoleOwner  Role = "owner"
	RoleEditor Role = "editor"
	RoleViewer Role = "viewer"
	RoleNone   Role = "none"
)

// ResolveRole computes the effective role of currentUserID on entry.
//
// Resolution order:
//  1. Ownership wins: if the user is the entry's owner (by Entry.OwnerID
//     or the owner snapshot), the result is RoleOwner regardless of any
//     permission row that may also exist for the user.
//  2. Otherwise the user's permission row, if any, decides.
//  3. Otherwise RoleNone: the entry is invisible to the user.
//
// The function is pure and total: no I/O, and it returns exactly one of
// the four roles for every input, including nil entry or empty user.
func ResolveRole(currentUserID string, entry *Entry, owner *User, permissions []Permission) Role {
	if currentUserID == "" || entry == nil {
		return RoleNone
	}
	if entry.OwnerID == currentUserID {
		return RoleOwner
	}
	if owner != nil && owner.ID == currentUserID {
		return RoleOwner
	}
	for _, p := range permissions {
		if p.UserID == currentUserID {
			switch p.Role {
			case RoleEditor:
				return RoleEditor
			case RoleViewer:
				return RoleViewer
			}
		}
	}
	return RoleNone
}

// CanEdit reports whether the role permits mutating the entry itself
// (rename, trash, version management).
func (r Role) CanEdit() bool { return r == RoleOwner || r == RoleEditor }

// CanView reports whether the role permits seeing the entry at all.
func (r Role) CanView() bool { return r != RoleNone && r != "" }

// Capabilities are the per-row affordances a view may render for one
// entry. They are a UX convenience only: the service re-checks the role
// on every mutating call, so a forged client gains nothing by ignoring
// these booleans.
type Capabilities struct {
	CanOpen          bool `json:"canOpen"`
	CanShare         bool `json:"canShare"`
	CanRename        bool `json:"canRename"`
	CanTrash         bool `json:"canTrash"`
	CanManageVersion bool `json:"canManageVersions"`

	// CanDeleteVersion is false when exactly one version remains, so the
	// delete affordance disappears before the service would reject the
	// call anyway.
	CanDeleteVersion bool `json:"canDeleteVersion"`
}

// CapabilitiesFor derives the affordances for an entry given the resolved
// role and the number of versions currently known for it (pass 0 when the
// version list has not been fetched; version management gates then rely
// on the service-side check alone).
func CapabilitiesFor(role Role, entry *Entry, versionCount int) Capabilities {
	if entry == nil || !role.CanView() {
		return Capabilities{}
	}
	caps := Capabilities{
		CanOpen:   true,
		CanShare:  role == RoleOwner,
		CanRename: role.CanEdit(),
		CanTrash:  role.CanEdit(),
	}
	if entry.Type == EntryTypeFile {
		caps.CanManageVersion = role.CanEdit()
		caps.CanDeleteVersion = role.CanEdit() && versionCount > 1
	}
	return caps
}
