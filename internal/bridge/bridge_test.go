package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloudbox/cloudbox/pkg/client"
	"github.com/cloudbox/cloudbox/pkg/drive"
	"github.com/cloudbox/cloudbox/pkg/drive/memory"
)

func newTestStore(t *testing.T) *memory.Store {
	t.Helper()
	store := memory.NewStore()
	ctx := context.Background()
	for _, u := range []drive.User{
		{ID: "alice", Email: "alice@example.com", Username: "alice"},
		{ID: "bob", Email: "bob@example.com", Username: "bob"},
	} {
		require.NoError(t, store.RegisterUser(ctx, u))
	}
	return store
}

func newTestBridge(t *testing.T, store *memory.Store, userID string) *Bridge {
	t.Helper()
	br := New(drive.Bind(store, userID), nil, client.NewSession("token-"+userID), nil)
	t.Cleanup(br.Close)
	require.NoError(t, br.Bootstrap(context.Background()))
	return br
}

func getState(t *testing.T, b *Bridge) viewState {
	t.Helper()
	rec := httptest.NewRecorder()
	b.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/state", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var state viewState
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &state))
	return state
}

func postJSON(t *testing.T, b *Bridge, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	rec := httptest.NewRecorder()
	b.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw)))
	return rec
}

func TestStateCarriesOwnerCapabilities(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	_, err := drive.Bind(store, "alice").CreateFolder(ctx, "docs", nil)
	require.NoError(t, err)

	br := newTestBridge(t, store, "alice")
	rec := postJSON(t, br, "/refresh", map[string]string{})
	require.Equal(t, http.StatusOK, rec.Code)

	state := getState(t, br)
	require.Len(t, state.Items, 1)
	caps := state.Items[0].Capabilities
	assert.True(t, caps.CanOpen)
	assert.True(t, caps.CanShare, "owner may share")
	assert.True(t, caps.CanRename)
	assert.True(t, caps.CanTrash)
}

func TestSharedListingResolvesGrantedRole(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	alice := drive.Bind(store, "alice")
	folder, err := alice.CreateFolder(ctx, "shared", nil)
	require.NoError(t, err)
	file, err := alice.UploadFile(ctx, drive.Upload{Name: "inner.txt", ParentID: &folder.ID, Content: []byte("x")})
	require.NoError(t, err)
	_, err = alice.Share(ctx, folder.ID, "bob@example.com", drive.RoleEditor)
	require.NoError(t, err)

	br := newTestBridge(t, store, "bob")

	// The shared-with-me listing carries bob's direct grant.
	rec := postJSON(t, br, "/scope", map[string]string{"kind": "shared-with-me"})
	require.Equal(t, http.StatusOK, rec.Code)
	state := getState(t, br)
	require.Len(t, state.Items, 1)
	caps := state.Items[0].Capabilities
	assert.True(t, caps.CanRename, "editor grant renders the rename affordance")
	assert.True(t, caps.CanTrash)
	assert.False(t, caps.CanShare, "sharing stays owner-only")

	// Items inside the folder inherit the editor grant.
	rec = postJSON(t, br, "/navigate", map[string]*string{"folderId": &folder.ID})
	require.Equal(t, http.StatusOK, rec.Code)
	state = getState(t, br)
	require.Len(t, state.Items, 1)
	assert.Equal(t, file.ID, state.Items[0].ID)
	assert.True(t, state.Items[0].Capabilities.CanRename, "inherited editor grant")
	assert.False(t, state.Items[0].Capabilities.CanShare)

	// Downgrading the grant downgrades the rendered affordances.
	_, err = alice.UpdatePermission(ctx, folder.ID, "bob", drive.RoleViewer)
	require.NoError(t, err)
	state = getState(t, br)
	require.Len(t, state.Items, 1)
	assert.True(t, state.Items[0].Capabilities.CanOpen)
	assert.False(t, state.Items[0].Capabilities.CanRename, "viewer renders read-only affordances")
}

func TestActionFailureMapsToStatus(t *testing.T) {
	store := newTestStore(t)
	br := newTestBridge(t, store, "alice")

	rec := postJSON(t, br, "/actions/create-folder", map[string]string{"name": "   "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = postJSON(t, br, "/actions/rename", map[string]string{"id": "missing", "name": "x"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
