package httpapi

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloudbox/cloudbox/internal/devserver"
	"github.com/cloudbox/cloudbox/pkg/drive"
	"github.com/cloudbox/cloudbox/pkg/drive/memory"
)

// The round trip: every client method travels through a real HTTP stack
// into a devserver hosting the memory store, so wire shapes and error
// mapping are tested against the same server the run command uses.

type fixture struct {
	srv    *devserver.Server
	ts     *httptest.Server
	client *Client
}

func newRoundTrip(t *testing.T) *fixture {
	t.Helper()
	srv := devserver.New(memory.NewStore())
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	token, err := srv.SeedUser(drive.User{ID: "alice", Email: "alice@example.com", Username: "alice"})
	require.NoError(t, err)

	return &fixture{srv: srv, ts: ts, client: NewClient(ts.URL, token)}
}

func TestListAndCreateFolder(t *testing.T) {
	f := newRoundTrip(t)
	ctx := context.Background()

	folder, err := f.client.CreateFolder(ctx, "docs", nil)
	require.NoError(t, err)
	assert.Equal(t, "docs", folder.Name)
	assert.True(t, folder.IsFolder())

	nested, err := f.client.CreateFolder(ctx, "work", &folder.ID)
	require.NoError(t, err)

	entries, err := f.client.List(ctx, nil)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, folder.ID, entries[0].ID)

	entries, err = f.client.List(ctx, &folder.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, nested.ID, entries[0].ID)

	chain, err := f.client.FolderPath(ctx, nested.ID)
	require.NoError(t, err)
	require.Len(t, chain, 2)
	assert.Equal(t, "docs", chain[0].Name)
	assert.Equal(t, "work", chain[1].Name)
}

func TestMultipartUploadAndVersions(t *testing.T) {
	f := newRoundTrip(t)
	ctx := context.Background()

	file, err := f.client.UploadFile(ctx, drive.Upload{Name: "doc.txt", Content: []byte("v1")})
	require.NoError(t, err)
	assert.Equal(t, "doc.txt", file.Name)
	assert.Equal(t, int64(2), file.Size)

	updated, err := f.client.UploadVersion(ctx, file.ID, []byte("version two"))
	require.NoError(t, err)
	assert.Equal(t, int64(len("version two")), updated.Size)

	versions, err := f.client.Versions(ctx, file.ID)
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.Equal(t, 2, versions[0].VersionNumber, "newest first")

	remaining, err := f.client.DeleteVersion(ctx, file.ID, versions[0].ID)
	require.NoError(t, err)
	require.Len(t, remaining, 1)

	_, err = f.client.DeleteVersion(ctx, file.ID, remaining[0].ID)
	assert.True(t, drive.IsValidation(err), "floor violation surfaces as 400")

	cleared, err := f.client.ClearVersions(ctx, file.ID)
	require.NoError(t, err)
	assert.Len(t, cleared, 1)
}

func TestTrashLifecycle(t *testing.T) {
	f := newRoundTrip(t)
	ctx := context.Background()

	file, err := f.client.UploadFile(ctx, drive.Upload{Name: "doc.txt", Content: []byte("x")})
	require.NoError(t, err)

	require.NoError(t, f.client.Trash(ctx, file.ID))
	trashed, err := f.client.ListTrash(ctx)
	require.NoError(t, err)
	require.Len(t, trashed, 1)

	restored, err := f.client.Restore(ctx, file.ID)
	require.NoError(t, err)
	assert.False(t, restored.IsTrashed())

	// Purging an active entry is refused; purging a trashed one works.
	err = f.client.DeletePermanently(ctx, file.ID)
	assert.True(t, drive.IsValidation(err))

	require.NoError(t, f.client.Trash(ctx, file.ID))
	require.NoError(t, f.client.DeletePermanently(ctx, file.ID))

	_, err = f.client.Versions(ctx, file.ID)
	assert.True(t, drive.IsNotFound(err))
}

func TestRenameAndSearch(t *testing.T) {
	f := newRoundTrip(t)
	ctx := context.Background()

	file, err := f.client.UploadFile(ctx, drive.Upload{Name: "quarterly report.txt", Content: []byte("x")})
	require.NoError(t, err)

	renamed, err := f.client.Rename(ctx, file.ID, "annual report.txt")
	require.NoError(t, err)
	assert.Equal(t, "annual report.txt", renamed.Name)

	results, err := f.client.Search(ctx, "annual")
	require.NoError(t, err)
	require.Len(t, results, 1)

	results, err = f.client.Search(ctx, "quarterly")
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSharingOverTheWire(t *testing.T) {
	f := newRoundTrip(t)
	ctx := context.Background()

	bobToken, err := f.srv.SeedUser(drive.User{ID: "bob", Email: "bob@example.com", Username: "bob"})
	require.NoError(t, err)
	bob := NewClient(f.ts.URL, bobToken)

	file, err := f.client.UploadFile(ctx, drive.Upload{Name: "doc.txt", Content: []byte("x")})
	require.NoError(t, err)

	_, err = bob.Versions(ctx, file.ID)
	assert.True(t, drive.IsNotFound(err), "invisible before the grant")

	result, err := f.client.Share(ctx, file.ID, "bob@example.com", drive.RoleViewer)
	require.NoError(t, err)
	assert.Equal(t, drive.ShareModeShared, result.Mode)

	shared, err := bob.ListSharedWithMe(ctx)
	require.NoError(t, err)
	require.Len(t, shared, 1)

	_, err = bob.Rename(ctx, file.ID, "evil.txt")
	assert.True(t, drive.IsForbidden(err), "403 maps to forbidden")

	access, err := f.client.Permissions(ctx, file.ID)
	require.NoError(t, err)
	require.Len(t, access.Permissions, 1)
	assert.Equal(t, drive.RoleViewer, access.Permissions[0].Role)

	perms, err := f.client.UpdatePermission(ctx, file.ID, "bob", drive.RoleEditor)
	require.NoError(t, err)
	require.Len(t, perms, 1)
	assert.Equal(t, drive.RoleEditor, perms[0].Role)

	perms, err = f.client.RemovePermission(ctx, file.ID, "bob")
	require.NoError(t, err)
	assert.Empty(t, perms)
}

func TestHistoryAndProfile(t *testing.T) {
	f := newRoundTrip(t)
	ctx := context.Background()

	file, err := f.client.UploadFile(ctx, drive.Upload{Name: "doc.txt", Content: []byte("x")})
	require.NoError(t, err)
	require.NoError(t, f.client.RecordOpen(ctx, file.ID))

	events, err := f.client.History(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, events)
	assert.Equal(t, drive.ActionOpen, events[0].Action)

	me, err := f.client.Profile(ctx)
	require.NoError(t, err)
	assert.Equal(t, "alice", me.ID)

	updated, err := f.client.UpdateProfile(ctx, "alice2", "alice2@example.com")
	require.NoError(t, err)
	assert.Equal(t, "alice2", updated.Username)

	require.NoError(t, f.client.ChangePassword(ctx, "old", "newpassword"))
}

func TestErrorMapping(t *testing.T) {
	f := newRoundTrip(t)
	ctx := context.Background()

	// Bad token: 401.
	stranger := NewClient(f.ts.URL, "not-a-token")
	_, err := stranger.List(ctx, nil)
	assert.True(t, drive.IsUnauthorized(err))

	// Revoked token: 401 from then on.
	token, err := f.srv.SeedUser(drive.User{ID: "carol", Email: "carol@example.com"})
	require.NoError(t, err)
	carol := NewClient(f.ts.URL, token)
	_, err = carol.List(ctx, nil)
	require.NoError(t, err)
	f.srv.RevokeToken(token)
	_, err = carol.List(ctx, nil)
	assert.True(t, drive.IsUnauthorized(err))

	// Unknown entry: 404.
	_, err = f.client.Rename(ctx, "missing", "x")
	assert.True(t, drive.IsNotFound(err))

	// Blank name: 400 with the server's message preserved.
	_, err = f.client.CreateFolder(ctx, "  ", nil)
	assert.True(t, drive.IsValidation(err))
	assert.NotEmpty(t, drive.MessageOf(err, ""))

	// Unreachable server: transport error, not an HTTP status.
	dead := NewClient("http://127.0.0.1:1", "tok")
	_, err = dead.List(ctx, nil)
	assert.True(t, drive.IsTransport(err))
}

func TestTokenSourceIsConsultedPerRequest(t *testing.T) {
	f := newRoundTrip(t)
	ctx := context.Background()

	current := ""
	client := NewClient(f.ts.URL, "", WithTokenSource(func() string { return current }))

	_, err := client.List(ctx, nil)
	assert.True(t, drive.IsUnauthorized(err))

	token, err := f.srv.SeedUser(drive.User{ID: "dave", Email: "dave@example.com"})
	require.NoError(t, err)
	current = token

	_, err = client.List(ctx, nil)
	assert.NoError(t, err, "rotated token picked up without rebuilding the client")
}
