package client

// ScopeKind names the listing families a view can display.
type ScopeKind string

const (
	// ScopeFolder lists the children of one folder (root when FolderID
	// is nil).
	ScopeFolder ScopeKind = "folder"

	// ScopeSharedWithMe lists entries other accounts shared with the
	// current user. Changes here originate in other browser profiles and
	// never produce a local bus event, so this scope always polls.
	ScopeSharedWithMe ScopeKind = "shared-with-me"

	// ScopeTrash lists the user's soft-deleted entries.
	ScopeTrash ScopeKind = "trash"

	// ScopeHistory lists the user's recent history events.
	ScopeHistory ScopeKind = "history"

	// ScopeSearch is a one-shot ranked snapshot. Search results are not
	// optimistically patched, bus-invalidated, or polled.
	ScopeSearch ScopeKind = "search"
)

// Scope identifies what one ListStore is showing.
type Scope struct {
	Kind     ScopeKind
	FolderID *string // ScopeFolder only; nil means root
	Query    string  // ScopeSearch only
}

// FolderScope returns a folder scope (nil folderID = root).
func FolderScope(folderID *string) Scope {
	return Scope{Kind: ScopeFolder, FolderID: folderID}
}

// SharedWithMeScope returns the shared-with-me scope.
func SharedWithMeScope() Scope { return Scope{Kind: ScopeSharedWithMe} }

// TrashScope returns the trash scope.
func TrashScope() Scope { return Scope{Kind: ScopeTrash} }

// HistoryScope returns the history scope.
func HistoryScope() Scope { return Scope{Kind: ScopeHistory} }

// SearchScope returns a snapshot scope for the given query.
func SearchScope(query string) Scope {
	return Scope{Kind: ScopeSearch, Query: query}
}

// samePointerTarget reports whether two optional IDs refer to the same
// folder: both nil, or both set to the same value.
func samePointerTarget(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
