package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloudbox/cloudbox/pkg/drive"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s := NewStore()
	ctx := context.Background()
	for _, u := range []drive.User{
		{ID: "alice", Email: "alice@example.com", Username: "alice"},
		{ID: "bob", Email: "bob@example.com", Username: "bob"},
		{ID: "carol", Email: "carol@example.com", Username: "carol"},
	} {
		require.NoError(t, s.RegisterUser(ctx, u))
	}
	return s
}

func mustUploadFile(t *testing.T, s *Store, actorID, name string, parentID *string) *drive.Entry {
	t.Helper()
	entry, err := s.UploadFile(context.Background(), actorID, drive.Upload{
		Name:     name,
		ParentID: parentID,
		Content:  []byte("content of " + name),
	})
	require.NoError(t, err)
	return entry
}

func mustCreateFolder(t *testing.T, s *Store, actorID, name string, parentID *string) *drive.Entry {
	t.Helper()
	entry, err := s.CreateFolder(context.Background(), actorID, name, parentID)
	require.NoError(t, err)
	return entry
}

func TestListRootIsPersonal(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	folder := mustCreateFolder(t, s, "alice", "docs", nil)
	mustUploadFile(t, s, "alice", "a.txt", nil)
	mustUploadFile(t, s, "bob", "bobs.txt", nil)

	entries, err := s.List(ctx, "alice", nil)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	// Folders sort before files.
	assert.Equal(t, folder.ID, entries[0].ID)
	assert.Equal(t, "a.txt", entries[1].Name)
}

func TestListFolderChildrenAndValidation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	folder := mustCreateFolder(t, s, "alice", "docs", nil)
	child := mustUploadFile(t, s, "alice", "inner.txt", &folder.ID)
	trashed := mustUploadFile(t, s, "alice", "gone.txt", &folder.ID)
	require.NoError(t, s.Trash(ctx, "alice", trashed.ID))

	entries, err := s.List(ctx, "alice", &folder.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, child.ID, entries[0].ID)

	_, err = s.List(ctx, "alice", &child.ID)
	assert.True(t, drive.IsValidation(err), "listing a file must fail")

	_, err = s.List(ctx, "bob", &folder.ID)
	assert.True(t, drive.IsNotFound(err), "invisible folders must not leak existence")
}

func TestSharedFolderContentsAreReachable(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	folder := mustCreateFolder(t, s, "alice", "shared", nil)
	child := mustUploadFile(t, s, "alice", "inside.txt", &folder.ID)

	_, err := s.Share(ctx, "alice", folder.ID, "bob@example.com", drive.RoleEditor)
	require.NoError(t, err)

	entries, err := s.List(ctx, "bob", &folder.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, child.ID, entries[0].ID)

	// The inherited editor role extends to mutations on the children.
	_, err = s.Rename(ctx, "bob", child.ID, "renamed.txt")
	assert.NoError(t, err)
}

func TestFolderPathBreadcrumbs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	top := mustCreateFolder(t, s, "alice", "top", nil)
	mid := mustCreateFolder(t, s, "alice", "mid", &top.ID)
	leaf := mustCreateFolder(t, s, "alice", "leaf", &mid.ID)

	chain, err := s.FolderPath(ctx, "alice", leaf.ID)
	require.NoError(t, err)
	require.Len(t, chain, 3)
	assert.Equal(t, []string{"top", "mid", "leaf"}, []string{chain[0].Name, chain[1].Name, chain[2].Name})

	// A trashed ancestor terminates the chain.
	require.NoError(t, s.Trash(ctx, "alice", top.ID))
	chain, err = s.FolderPath(ctx, "alice", leaf.ID)
	require.NoError(t, err)
	require.Len(t, chain, 2)
	assert.Equal(t, "mid", chain[0].Name)
}

func TestCreateValidation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.CreateFolder(ctx, "alice", "   ", nil)
	assert.True(t, drive.IsValidation(err))

	file := mustUploadFile(t, s, "alice", "f.txt", nil)
	_, err = s.CreateFolder(ctx, "alice", "sub", &file.ID)
	assert.True(t, drive.IsValidation(err), "a file cannot be a parent")

	folder := mustCreateFolder(t, s, "alice", "docs", nil)
	require.NoError(t, s.Trash(ctx, "alice", folder.ID))
	_, err = s.UploadFile(ctx, "alice", drive.Upload{Name: "x.txt", ParentID: &folder.ID, Content: []byte("x")})
	assert.True(t, drive.IsNotFound(err), "a trashed folder is not a destination")
}

func TestViewerCannotMutate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	file := mustUploadFile(t, s, "alice", "doc.txt", nil)
	_, err := s.Share(ctx, "alice", file.ID, "bob@example.com", drive.RoleViewer)
	require.NoError(t, err)

	_, err = s.Rename(ctx, "bob", file.ID, "evil.txt")
	assert.True(t, drive.IsForbidden(err))

	err = s.Trash(ctx, "bob", file.ID)
	assert.True(t, drive.IsForbidden(err))

	// Sharing is owner-only even for editors.
	_, err = s.UpdatePermission(ctx, "alice", file.ID, "bob", drive.RoleEditor)
	require.NoError(t, err)
	_, err = s.Share(ctx, "bob", file.ID, "carol@example.com", drive.RoleViewer)
	assert.True(t, drive.IsForbidden(err))
}

func TestVersionNumbersAreMonotonic(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	file := mustUploadFile(t, s, "alice", "doc.txt", nil)
	for i := 0; i < 3; i++ {
		_, err := s.UploadVersion(ctx, "alice", file.ID, []byte("more"))
		require.NoError(t, err)
	}

	versions, err := s.Versions(ctx, "alice", file.ID)
	require.NoError(t, err)
	require.Len(t, versions, 4)
	assert.Equal(t, 4, versions[0].VersionNumber, "newest first")

	// Prune everything, upload again: the counter must not rewind.
	_, err = s.ClearVersions(ctx, "alice", file.ID)
	require.NoError(t, err)
	_, err = s.UploadVersion(ctx, "alice", file.ID, []byte("again"))
	require.NoError(t, err)

	versions, err = s.Versions(ctx, "alice", file.ID)
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.Equal(t, 5, versions[0].VersionNumber, "numbers are never reused")
}

func TestDeleteVersionFloor(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	file := mustUploadFile(t, s, "alice", "doc.txt", nil)

	versions, err := s.Versions(ctx, "alice", file.ID)
	require.NoError(t, err)
	require.Len(t, versions, 1)

	_, err = s.DeleteVersion(ctx, "alice", file.ID, versions[0].ID)
	assert.True(t, drive.IsValidation(err), "the sole version must survive")

	// Still there.
	versions, err = s.Versions(ctx, "alice", file.ID)
	require.NoError(t, err)
	assert.Len(t, versions, 1)

	_, err = s.UploadVersion(ctx, "alice", file.ID, []byte("v2"))
	require.NoError(t, err)
	_, err = s.DeleteVersion(ctx, "alice", file.ID, "no-such-version")
	assert.True(t, drive.IsNotFound(err))

	versions, err = s.Versions(ctx, "alice", file.ID)
	require.NoError(t, err)
	remaining, err := s.DeleteVersion(ctx, "alice", file.ID, versions[0].ID)
	require.NoError(t, err)
	assert.Len(t, remaining, 1)
}

func TestClearVersionsKeepsCurrent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	file := mustUploadFile(t, s, "alice", "doc.txt", nil)
	_, err := s.UploadVersion(ctx, "alice", file.ID, []byte("22"))
	require.NoError(t, err)
	_, err = s.UploadVersion(ctx, "alice", file.ID, []byte("333"))
	require.NoError(t, err)

	versions, err := s.ClearVersions(ctx, "alice", file.ID)
	require.NoError(t, err)
	require.Len(t, versions, 1)
	assert.Equal(t, 3, versions[0].VersionNumber)

	// Idempotent at one version.
	versions, err = s.ClearVersions(ctx, "alice", file.ID)
	require.NoError(t, err)
	assert.Len(t, versions, 1)
}

func TestTrashAndRestore(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	file := mustUploadFile(t, s, "alice", "doc.txt", nil)
	require.NoError(t, s.Trash(ctx, "alice", file.ID))

	err := s.Trash(ctx, "alice", file.ID)
	assert.True(t, drive.IsValidation(err), "double trash rejected")

	trashed, err := s.ListTrash(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, trashed, 1)
	assert.True(t, trashed[0].IsTrashed())

	restored, err := s.Restore(ctx, "alice", file.ID)
	require.NoError(t, err)
	assert.False(t, restored.IsTrashed())

	_, err = s.Restore(ctx, "alice", file.ID)
	assert.True(t, drive.IsValidation(err), "restoring an active entry rejected")
}

func TestRestoreFallsBackToRoot(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	folder := mustCreateFolder(t, s, "alice", "docs", nil)
	file := mustUploadFile(t, s, "alice", "doc.txt", &folder.ID)

	require.NoError(t, s.Trash(ctx, "alice", file.ID))
	require.NoError(t, s.Trash(ctx, "alice", folder.ID))

	restored, err := s.Restore(ctx, "alice", file.ID)
	require.NoError(t, err)
	assert.Nil(t, restored.ParentID, "restore never revives into a trashed folder")
}

func TestDeletePermanently(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	folder := mustCreateFolder(t, s, "alice", "docs", nil)
	file := mustUploadFile(t, s, "alice", "doc.txt", &folder.ID)

	err := s.DeletePermanently(ctx, "alice", folder.ID)
	assert.True(t, drive.IsValidation(err), "purge requires the entry to be trashed")

	require.NoError(t, s.Trash(ctx, "alice", folder.ID))

	// Editors cannot purge.
	_, err = s.Share(ctx, "alice", folder.ID, "bob@example.com", drive.RoleEditor)
	require.NoError(t, err)
	err = s.DeletePermanently(ctx, "bob", folder.ID)
	assert.True(t, drive.IsForbidden(err))

	require.NoError(t, s.DeletePermanently(ctx, "alice", folder.ID))

	// The whole subtree is gone, versions included.
	_, err = s.Versions(ctx, "alice", file.ID)
	assert.True(t, drive.IsNotFound(err))
	s.mu.RLock()
	assert.Empty(t, s.versions[file.ID])
	assert.Empty(t, s.content)
	s.mu.RUnlock()
}

func TestShareModes(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	file := mustUploadFile(t, s, "alice", "doc.txt", nil)

	result, err := s.Share(ctx, "alice", file.ID, "bob@example.com", drive.RoleViewer)
	require.NoError(t, err)
	assert.Equal(t, drive.ShareModeShared, result.Mode)

	result, err = s.Share(ctx, "alice", file.ID, "bob@example.com", drive.RoleEditor)
	require.NoError(t, err)
	assert.Equal(t, drive.ShareModeUpdated, result.Mode)
	require.Len(t, result.Permissions, 1)
	assert.Equal(t, drive.RoleEditor, result.Permissions[0].Role)

	_, err = s.Share(ctx, "alice", file.ID, "nobody@example.com", drive.RoleViewer)
	assert.True(t, drive.IsValidation(err))

	_, err = s.Share(ctx, "alice", file.ID, "alice@example.com", drive.RoleViewer)
	assert.True(t, drive.IsValidation(err), "the owner is never a grant target")

	_, err = s.Share(ctx, "alice", file.ID, "bob@example.com", drive.RoleOwner)
	assert.True(t, drive.IsValidation(err), "only viewer and editor are grantable")
}

func TestPermissionLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	file := mustUploadFile(t, s, "alice", "doc.txt", nil)
	_, err := s.Share(ctx, "alice", file.ID, "bob@example.com", drive.RoleViewer)
	require.NoError(t, err)

	perms, err := s.UpdatePermission(ctx, "alice", file.ID, "bob", drive.RoleEditor)
	require.NoError(t, err)
	require.Len(t, perms, 1)
	assert.Equal(t, drive.RoleEditor, perms[0].Role)

	_, err = s.UpdatePermission(ctx, "alice", file.ID, "carol", drive.RoleEditor)
	assert.True(t, drive.IsNotFound(err))

	perms, err = s.RemovePermission(ctx, "alice", file.ID, "bob")
	require.NoError(t, err)
	assert.Empty(t, perms)

	// Revoked access means the entry vanishes for bob.
	_, err = s.Versions(ctx, "bob", file.ID)
	assert.True(t, drive.IsNotFound(err))
}

func TestListSharedWithMe(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	file := mustUploadFile(t, s, "alice", "doc.txt", nil)
	_, err := s.Share(ctx, "alice", file.ID, "bob@example.com", drive.RoleViewer)
	require.NoError(t, err)

	shared, err := s.ListSharedWithMe(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, shared, 1)
	require.NotNil(t, shared[0].Owner)
	assert.Equal(t, "alice", shared[0].Owner.ID)

	// Trashed entries drop out of the shared listing.
	require.NoError(t, s.Trash(ctx, "alice", file.ID))
	shared, err = s.ListSharedWithMe(ctx, "bob")
	require.NoError(t, err)
	assert.Empty(t, shared)
}

func TestSearchRanking(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	mustUploadFile(t, s, "alice", "report", nil)
	mustUploadFile(t, s, "alice", "report-2024", nil)
	mustUploadFile(t, s, "alice", "annual report", nil)
	mustUploadFile(t, s, "alice", "unrelated", nil)
	hidden := mustUploadFile(t, s, "bob", "report secret", nil)
	_ = hidden

	results, err := s.Search(ctx, "alice", "report")
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, "report", results[0].Name)
	assert.Equal(t, "report-2024", results[1].Name)
	assert.Equal(t, "annual report", results[2].Name)

	_, err = s.Search(ctx, "alice", "   ")
	assert.True(t, drive.IsValidation(err))
}

func TestHistory(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	file := mustUploadFile(t, s, "alice", "doc.txt", nil)
	require.NoError(t, s.RecordOpen(ctx, "alice", file.ID))
	_, err := s.Rename(ctx, "alice", file.ID, "renamed.txt")
	require.NoError(t, err)

	events, err := s.History(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, drive.ActionRename, events[0].Action, "newest first")
	assert.Equal(t, drive.ActionOpen, events[1].Action)

	// Actions by an editor on alice's entry show up for alice too.
	_, err = s.Share(ctx, "alice", file.ID, "bob@example.com", drive.RoleEditor)
	require.NoError(t, err)
	_, err = s.Rename(ctx, "bob", file.ID, "again.txt")
	require.NoError(t, err)

	events, err = s.History(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "bob", events[0].ActorID)
}

func TestUpdateProfile(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	user, err := s.UpdateProfile(ctx, "alice", "alice2", "alice2@example.com")
	require.NoError(t, err)
	assert.Equal(t, "alice2", user.Username)
	assert.Equal(t, "alice2@example.com", user.Email)

	// The old email is free, the new one is taken.
	_, err = s.UpdateProfile(ctx, "bob", "bob", "alice2@example.com")
	assert.Equal(t, drive.ErrConflict, drive.CodeOf(err))
	_, err = s.UpdateProfile(ctx, "bob", "bob", "alice@example.com")
	assert.NoError(t, err)
}
