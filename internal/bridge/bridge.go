// Package bridge exposes the client core over a loopback JSON API so a
// local UI (browser frontend, desktop shell) can drive it without
// linking Go code. One bridge instance is one view: it owns a ListStore,
// a Navigator and an Actions coordinator wired to the shared bus, so
// several bridge processes on the same machine stay consistent through
// the relay.
package bridge

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/cloudbox/cloudbox/internal/logger"
	"github.com/cloudbox/cloudbox/pkg/bus"
	"github.com/cloudbox/cloudbox/pkg/client"
	"github.com/cloudbox/cloudbox/pkg/drive"
)

// Bridge serves one view's state and actions over HTTP.
type Bridge struct {
	svc       drive.Service
	session   *client.Session
	store     *client.ListStore
	navigator *client.Navigator
	actions   *client.Actions
	log       *logger.Scoped

	allowedOrigins []string
	router         chi.Router
}

// New wires a bridge around the given service, bus and session. The
// initial scope is the root folder.
func New(svc drive.Service, b *bus.Bus, session *client.Session, allowedOrigins []string) *Bridge {
	br := &Bridge{
		svc:            svc,
		session:        session,
		store:          client.NewListStore(svc, b, session, client.FolderScope(nil)),
		navigator:      client.NewNavigator(svc),
		actions:        client.NewActions(svc, b, session),
		log:            logger.Component("bridge"),
		allowedOrigins: allowedOrigins,
	}
	br.router = br.buildRouter()
	return br
}

// Handler returns the HTTP handler.
func (b *Bridge) Handler() http.Handler { return b.router }

// Store exposes the bridge's list store, e.g. for starting the polling
// ticker from the composition root.
func (b *Bridge) Store() *client.ListStore { return b.store }

// Close releases the view's resources.
func (b *Bridge) Close() {
	b.store.Close()
	b.navigator.Reset()
}

func (b *Bridge) buildRouter() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: b.allowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/state", b.handleState)
	r.Post("/navigate", b.handleNavigate)
	r.Post("/scope", b.handleScope)
	r.Post("/refresh", b.handleRefresh)

	r.Route("/actions", func(r chi.Router) {
		r.Post("/create-folder", b.handleCreateFolder)
		r.Post("/rename", b.handleRename)
		r.Post("/trash", b.handleTrash)
		r.Post("/restore", b.handleRestore)
		r.Post("/delete", b.handleDelete)
		r.Post("/open", b.handleOpen)
		r.Post("/share", b.handleShare)
	})

	return r
}

// viewState is what the UI renders from.
type viewState struct {
	Scope       client.Scope         `json:"scope"`
	Items       []viewEntry          `json:"items"`
	Events      []drive.HistoryEvent `json:"events,omitempty"`
	Breadcrumbs []drive.Entry        `json:"breadcrumbs"`
	Loading     bool                 `json:"loading"`
	Error       string               `json:"error,omitempty"`
	User        *drive.User          `json:"user,omitempty"`
	SessionOK   bool                 `json:"sessionOk"`
}

// viewEntry is one listed row plus the affordances the UI may render
// for it. The service re-checks the real role on every mutating call,
// so the booleans only decide what to draw.
type viewEntry struct {
	drive.Entry
	Capabilities drive.Capabilities `json:"capabilities"`
}

func (b *Bridge) state(ctx context.Context) viewState {
	snap := b.store.Snapshot()
	inherited := b.inheritedRole(ctx, snap.Scope)
	items := make([]viewEntry, 0, len(snap.Items))
	for _, entry := range snap.Items {
		role := b.roleFor(ctx, entry, inherited)
		items = append(items, viewEntry{
			Entry:        entry,
			Capabilities: drive.CapabilitiesFor(role, &entry, 0),
		})
	}
	return viewState{
		Scope:       snap.Scope,
		Items:       items,
		Events:      snap.Events,
		Breadcrumbs: b.navigator.Chain(),
		Loading:     snap.Loading,
		Error:       snap.Err,
		User:        b.session.User(),
		SessionOK:   b.session.Valid(),
	}
}

// inheritedRole resolves the role a folder scope passes down to items
// that carry no grant of their own. Listings of the user's own tree
// resolve from the breadcrumb chain without I/O; a shared folder costs
// one access-list fetch per render.
func (b *Bridge) inheritedRole(ctx context.Context, scope client.Scope) drive.Role {
	uid := b.session.UserID()
	if uid == "" || scope.Kind != client.ScopeFolder || scope.FolderID == nil {
		return drive.RoleNone
	}
	if chain := b.navigator.Chain(); len(chain) > 0 {
		if folder := chain[len(chain)-1]; folder.OwnerID == uid {
			return drive.RoleOwner
		}
	}
	acl, err := b.svc.Permissions(ctx, *scope.FolderID)
	if err != nil {
		return drive.RoleNone
	}
	if acl.Owner != nil && acl.Owner.ID == uid {
		return drive.RoleOwner
	}
	for _, p := range acl.Permissions {
		if p.UserID == uid {
			return p.Role
		}
	}
	return drive.RoleNone
}

// roleFor resolves the acting user's role on one listed entry. Owned
// entries resolve without I/O; otherwise the entry's own access list
// decides, then the role inherited through the displayed folder.
// A listed entry the walk cannot place still renders as a viewer: the
// listing already proved visibility, and grants further up the tree
// stay service-side.
func (b *Bridge) roleFor(ctx context.Context, entry drive.Entry, inherited drive.Role) drive.Role {
	uid := b.session.UserID()
	if role := drive.ResolveRole(uid, &entry, entry.Owner, nil); role != drive.RoleNone {
		return role
	}
	if uid == "" {
		return drive.RoleNone
	}
	if acl, err := b.svc.Permissions(ctx, entry.ID); err == nil {
		if role := drive.ResolveRole(uid, &entry, acl.Owner, acl.Permissions); role != drive.RoleNone {
			return role
		}
	}
	if inherited != drive.RoleNone {
		return inherited
	}
	return drive.RoleViewer
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (b *Bridge) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch drive.CodeOf(err) {
	case drive.ErrValidation:
		status = http.StatusBadRequest
	case drive.ErrUnauthorized:
		status = http.StatusUnauthorized
	case drive.ErrForbidden:
		status = http.StatusForbidden
	case drive.ErrNotFound:
		status = http.StatusNotFound
	case drive.ErrConflict:
		status = http.StatusConflict
	case drive.ErrTransport:
		status = http.StatusBadGateway
	}
	b.log.Warn("%s %s: %s", r.Method, r.URL.Path, drive.MessageOf(err, "internal error"))
	writeJSON(w, status, map[string]string{"message": drive.MessageOf(err, "internal error")})
}

func decode(r *http.Request, dst interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return drive.Validation("malformed request body")
	}
	return nil
}

// cachedEntry resolves an entry from the view's cache. Actions operate
// on what the user can see; an ID outside the cache is a stale click.
func (b *Bridge) cachedEntry(id string) (*drive.Entry, error) {
	for _, entry := range b.store.Snapshot().Items {
		if entry.ID == id {
			e := entry
			return &e, nil
		}
	}
	return nil, drive.NotFound(id)
}

func (b *Bridge) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, b.state(r.Context()))
}

func (b *Bridge) handleNavigate(w http.ResponseWriter, r *http.Request) {
	var body struct {
		FolderID *string `json:"folderId"`
	}
	if err := decode(r, &body); err != nil {
		b.writeError(w, r, err)
		return
	}
	b.store.SetScope(client.FolderScope(body.FolderID))
	if err := b.navigator.Navigate(r.Context(), body.FolderID); err != nil {
		b.writeError(w, r, err)
		return
	}
	b.store.Load(r.Context())
	writeJSON(w, http.StatusOK, b.state(r.Context()))
}

func (b *Bridge) handleScope(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Kind  string `json:"kind"`
		Query string `json:"query"`
	}
	if err := decode(r, &body); err != nil {
		b.writeError(w, r, err)
		return
	}

	var scope client.Scope
	switch client.ScopeKind(body.Kind) {
	case client.ScopeTrash:
		scope = client.TrashScope()
	case client.ScopeSharedWithMe:
		scope = client.SharedWithMeScope()
	case client.ScopeHistory:
		scope = client.HistoryScope()
	case client.ScopeSearch:
		scope = client.SearchScope(body.Query)
	case client.ScopeFolder:
		scope = client.FolderScope(nil)
	default:
		b.writeError(w, r, drive.Validation("unknown scope kind"))
		return
	}

	b.store.SetScope(scope)
	b.navigator.Reset()
	b.store.Load(r.Context())
	writeJSON(w, http.StatusOK, b.state(r.Context()))
}

func (b *Bridge) handleRefresh(w http.ResponseWriter, r *http.Request) {
	b.store.Load(r.Context())
	writeJSON(w, http.StatusOK, b.state(r.Context()))
}

func (b *Bridge) handleCreateFolder(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name string `json:"name"`
	}
	if err := decode(r, &body); err != nil {
		b.writeError(w, r, err)
		return
	}
	entry, err := b.actions.CreateFolder(r.Context(), body.Name, b.navigator.CurrentFolderID())
	if err != nil {
		b.writeError(w, r, err)
		return
	}
	b.store.ApplyCreated(*entry)
	writeJSON(w, http.StatusCreated, entry)
}

func (b *Bridge) handleRename(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	if err := decode(r, &body); err != nil {
		b.writeError(w, r, err)
		return
	}
	entry, err := b.cachedEntry(body.ID)
	if err != nil {
		b.writeError(w, r, err)
		return
	}
	updated, err := b.actions.Rename(r.Context(), *entry, body.Name)
	if err != nil {
		b.writeError(w, r, err)
		return
	}
	b.store.ApplyUpdated(*updated)
	writeJSON(w, http.StatusOK, updated)
}

func (b *Bridge) handleTrash(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ID string `json:"id"`
	}
	if err := decode(r, &body); err != nil {
		b.writeError(w, r, err)
		return
	}
	entry, err := b.cachedEntry(body.ID)
	if err != nil {
		b.writeError(w, r, err)
		return
	}
	if err := b.actions.Trash(r.Context(), *entry); err != nil {
		b.writeError(w, r, err)
		return
	}
	b.store.ApplyRemoved(body.ID)
	writeJSON(w, http.StatusOK, b.state(r.Context()))
}

func (b *Bridge) handleRestore(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ID string `json:"id"`
	}
	if err := decode(r, &body); err != nil {
		b.writeError(w, r, err)
		return
	}
	entry, err := b.cachedEntry(body.ID)
	if err != nil {
		b.writeError(w, r, err)
		return
	}
	restored, err := b.actions.Restore(r.Context(), *entry)
	if err != nil {
		b.writeError(w, r, err)
		return
	}
	b.store.ApplyRemoved(body.ID)
	writeJSON(w, http.StatusOK, restored)
}

func (b *Bridge) handleDelete(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ID        string `json:"id"`
		Confirmed bool   `json:"confirmed"`
	}
	if err := decode(r, &body); err != nil {
		b.writeError(w, r, err)
		return
	}
	entry, err := b.cachedEntry(body.ID)
	if err != nil {
		b.writeError(w, r, err)
		return
	}
	if err := b.actions.DeletePermanently(r.Context(), *entry, body.Confirmed); err != nil {
		b.writeError(w, r, err)
		return
	}
	b.store.ApplyRemoved(body.ID)
	writeJSON(w, http.StatusOK, b.state(r.Context()))
}

func (b *Bridge) handleOpen(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ID string `json:"id"`
	}
	if err := decode(r, &body); err != nil {
		b.writeError(w, r, err)
		return
	}
	entry, err := b.cachedEntry(body.ID)
	if err != nil {
		b.writeError(w, r, err)
		return
	}
	b.actions.Open(r.Context(), *entry)
	writeJSON(w, http.StatusOK, map[string]string{"message": "recorded"})
}

func (b *Bridge) handleShare(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ID    string     `json:"id"`
		Email string     `json:"email"`
		Role  drive.Role `json:"role"`
	}
	if err := decode(r, &body); err != nil {
		b.writeError(w, r, err)
		return
	}
	entry, err := b.cachedEntry(body.ID)
	if err != nil {
		b.writeError(w, r, err)
		return
	}
	result, err := b.actions.Share(r.Context(), *entry, body.Email, body.Role)
	if err != nil {
		b.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Bootstrap resolves the authenticated profile into the session and
// performs the initial root load. Called once at startup.
func (b *Bridge) Bootstrap(ctx context.Context) error {
	user, err := b.svc.Profile(ctx)
	if err != nil {
		b.session.Observe(err)
		return err
	}
	b.session.SetUser(user)
	b.log.Info("bootstrapped as %s", user.Email)
	return b.store.Load(ctx)
}
