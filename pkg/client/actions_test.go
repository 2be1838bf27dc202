package client

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloudbox/cloudbox/pkg/bus"
	"github.com/cloudbox/cloudbox/pkg/drive"
)

// eventRecorder captures published bus events.
type eventRecorder struct {
	mu     sync.Mutex
	events []bus.Event
}

func record(b *bus.Bus) *eventRecorder {
	r := &eventRecorder{}
	b.Subscribe(bus.TopicEntityMutated, func(ev bus.Event) {
		r.mu.Lock()
		r.events = append(r.events, ev)
		r.mu.Unlock()
	})
	return r
}

func (r *eventRecorder) all() []bus.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]bus.Event(nil), r.events...)
}

func TestActionsPublishAfterConfirmedMutations(t *testing.T) {
	_, svc := newFixture(t)
	ctx := context.Background()

	b := bus.New()
	defer b.Close()
	recorder := record(b)
	actions := NewActions(svc, b, nil)

	folder, err := actions.CreateFolder(ctx, "docs", nil)
	require.NoError(t, err)

	file, err := actions.UploadFile(ctx, drive.Upload{Name: "doc.txt", ParentID: &folder.ID, Content: []byte("x")})
	require.NoError(t, err)

	_, err = actions.Rename(ctx, *file, "doc2.txt")
	require.NoError(t, err)

	require.NoError(t, actions.Trash(ctx, *file))

	events := recorder.all()
	require.Len(t, events, 4)
	assert.Equal(t, ReasonCreateFolder, events[0].Reason)
	assert.Equal(t, ReasonUploadFile, events[1].Reason)
	assert.Equal(t, drive.ActionRename, events[2].Reason)
	assert.Equal(t, drive.ActionTrash, events[3].Reason)
	assert.Equal(t, file.ID, events[3].EntryID)
	require.NotNil(t, events[3].ParentID)
	assert.Equal(t, folder.ID, *events[3].ParentID)
}

func TestFailedMutationPublishesNothing(t *testing.T) {
	_, svc := newFixture(t)
	ctx := context.Background()

	b := bus.New()
	defer b.Close()
	recorder := record(b)
	actions := NewActions(svc, b, nil)

	_, err := actions.Rename(ctx, drive.Entry{ID: "missing"}, "x")
	assert.True(t, drive.IsNotFound(err))
	assert.Empty(t, recorder.all())
}

func TestEmptyNamesRejectedWithoutARoundTrip(t *testing.T) {
	actions := NewActions(nil, nil, nil) // a nil service proves no call is made
	ctx := context.Background()

	_, err := actions.CreateFolder(ctx, "   ", nil)
	assert.True(t, drive.IsValidation(err))

	_, err = actions.UploadFile(ctx, drive.Upload{Name: ""})
	assert.True(t, drive.IsValidation(err))

	_, err = actions.Rename(ctx, drive.Entry{ID: "e1"}, " ")
	assert.True(t, drive.IsValidation(err))
}

func TestDoubleSubmissionIsRejected(t *testing.T) {
	_, svc := newFixture(t)
	ctx := context.Background()

	actions := NewActions(svc, nil, nil)
	file, err := actions.UploadFile(ctx, drive.Upload{Name: "doc.txt", Content: []byte("x")})
	require.NoError(t, err)

	// Simulate an action still in flight for this entry.
	token, err := actions.begin(file.ID)
	require.NoError(t, err)

	_, err = actions.Rename(ctx, *file, "doc2.txt")
	assert.True(t, drive.IsValidation(err))
	err = actions.Trash(ctx, *file)
	assert.True(t, drive.IsValidation(err))

	// Other entries are unaffected.
	_, err = actions.CreateFolder(ctx, "docs", nil)
	assert.NoError(t, err)

	// Once released, the entry accepts actions again.
	actions.finish(file.ID, token)
	_, err = actions.Rename(ctx, *file, "doc2.txt")
	assert.NoError(t, err)
}

func TestShareMutationsRespectTheInFlightGuard(t *testing.T) {
	store, svc := newFixture(t)
	ctx := context.Background()
	require.NoError(t, store.RegisterUser(ctx, drive.User{
		ID: "bob", Email: "bob@example.com", Username: "bob",
	}))

	actions := NewActions(svc, nil, nil)
	folder, err := actions.CreateFolder(ctx, "shared", nil)
	require.NoError(t, err)

	// Simulate an action still in flight for this entry.
	token, err := actions.begin(folder.ID)
	require.NoError(t, err)

	_, err = actions.Share(ctx, *folder, "bob@example.com", drive.RoleViewer)
	assert.True(t, drive.IsValidation(err))
	_, err = actions.UpdatePermission(ctx, *folder, "bob", drive.RoleEditor)
	assert.True(t, drive.IsValidation(err))
	_, err = actions.RemovePermission(ctx, *folder, "bob")
	assert.True(t, drive.IsValidation(err))

	// Once released, the grant goes through.
	actions.finish(folder.ID, token)
	_, err = actions.Share(ctx, *folder, "bob@example.com", drive.RoleViewer)
	assert.NoError(t, err)
}

func TestFinishIgnoresStaleToken(t *testing.T) {
	actions := NewActions(nil, nil, nil)

	token, err := actions.begin("e1")
	require.NoError(t, err)
	actions.finish("e1", "not-the-token")

	// Still held.
	_, err = actions.begin("e1")
	assert.True(t, drive.IsValidation(err))

	actions.finish("e1", token)
	_, err = actions.begin("e1")
	assert.NoError(t, err)
}

func TestPermanentDeleteRequiresConfirmation(t *testing.T) {
	_, svc := newFixture(t)
	ctx := context.Background()

	b := bus.New()
	defer b.Close()
	recorder := record(b)
	actions := NewActions(svc, b, nil)

	file, err := actions.UploadFile(ctx, drive.Upload{Name: "doc.txt", Content: []byte("x")})
	require.NoError(t, err)
	require.NoError(t, actions.Trash(ctx, *file))

	err = actions.DeletePermanently(ctx, *file, false)
	assert.True(t, drive.IsValidation(err), "unconfirmed purge never reaches the service")

	require.NoError(t, actions.DeletePermanently(ctx, *file, true))

	events := recorder.all()
	assert.Equal(t, ReasonPermanentDelete, events[len(events)-1].Reason)
}

func TestOpenDoesNotPublish(t *testing.T) {
	_, svc := newFixture(t)
	ctx := context.Background()

	b := bus.New()
	defer b.Close()
	recorder := record(b)
	actions := NewActions(svc, b, nil)

	file, err := svc.UploadFile(ctx, drive.Upload{Name: "doc.txt", Content: []byte("x")})
	require.NoError(t, err)

	actions.Open(ctx, *file)
	assert.Empty(t, recorder.all(), "opens do not change listings")

	history, err := svc.History(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, history)
	assert.Equal(t, drive.ActionOpen, history[0].Action)
}

func TestShareRoundTrip(t *testing.T) {
	store, svc := newFixture(t)
	ctx := context.Background()
	require.NoError(t, store.RegisterUser(ctx, drive.User{ID: "bob", Email: "bob@example.com"}))

	b := bus.New()
	defer b.Close()
	recorder := record(b)
	actions := NewActions(svc, b, nil)

	file, err := svc.UploadFile(ctx, drive.Upload{Name: "doc.txt", Content: []byte("x")})
	require.NoError(t, err)

	result, err := actions.Share(ctx, *file, "bob@example.com", drive.RoleViewer)
	require.NoError(t, err)
	assert.Equal(t, drive.ShareModeShared, result.Mode)

	perms, err := actions.UpdatePermission(ctx, *file, "bob", drive.RoleEditor)
	require.NoError(t, err)
	require.Len(t, perms, 1)

	perms, err = actions.RemovePermission(ctx, *file, "bob")
	require.NoError(t, err)
	assert.Empty(t, perms)

	events := recorder.all()
	require.Len(t, events, 3)
	assert.Equal(t, drive.ActionShare, events[0].Reason)
	assert.Equal(t, ReasonUpdateShare, events[1].Reason)
	assert.Equal(t, drive.ActionUnshare, events[2].Reason)
}

func TestVersionActions(t *testing.T) {
	_, svc := newFixture(t)
	ctx := context.Background()

	b := bus.New()
	defer b.Close()
	recorder := record(b)
	actions := NewActions(svc, b, nil)

	file, err := svc.UploadFile(ctx, drive.Upload{Name: "doc.txt", Content: []byte("v1")})
	require.NoError(t, err)

	updated, err := actions.UploadVersion(ctx, file.ID, []byte("v2 longer"))
	require.NoError(t, err)
	assert.Equal(t, int64(len("v2 longer")), updated.Size)

	versions, err := svc.Versions(ctx, file.ID)
	require.NoError(t, err)
	require.Len(t, versions, 2)

	remaining, err := actions.DeleteVersion(ctx, *file, versions[1].ID)
	require.NoError(t, err)
	assert.Len(t, remaining, 1)

	// The floor holds even through the coordinator.
	_, err = actions.DeleteVersion(ctx, *file, remaining[0].ID)
	assert.True(t, drive.IsValidation(err))

	events := recorder.all()
	require.Len(t, events, 2)
	assert.Equal(t, drive.ActionVersionUpload, events[0].Reason)
	assert.Equal(t, drive.ActionVersionDelete, events[1].Reason)
}
