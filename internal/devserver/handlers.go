package devserver

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/cloudbox/cloudbox/pkg/drive"
)

type contextKey string

const actorKey contextKey = "actor"

// authenticate resolves x-auth-token to a user ID and stores it on the
// request context. Unknown or missing tokens fail with 401.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := r.Header.Get(authHeader)
		s.mu.RLock()
		actorID, ok := s.tokens[token]
		s.mu.RUnlock()
		if !ok {
			writeMessage(w, http.StatusUnauthorized, "authentication required")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), actorKey, actorID)))
	})
}

func actor(r *http.Request) string {
	actorID, _ := r.Context().Value(actorKey).(string)
	return actorID
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"message": message})
}

// writeError maps the error taxonomy onto HTTP statuses, mirroring what
// the httpapi client decodes on the other side.
func (s *Server) writeError(w http.ResponseWriter, err error) {
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
	}
	if status == http.StatusInternalServerError {
		s.log.Error("request failed: %v", err)
	}
	writeMessage(w, status, drive.MessageOf(err, "internal error"))
}

// decodeBody parses a JSON request body into dst.
func decodeBody(r *http.Request, dst interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return drive.Validation("malformed request body")
	}
	return nil
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	var parentID *string
	if raw := r.URL.Query().Get("parentId"); raw != "" {
		parentID = &raw
	}
	entries, err := s.store.List(r.Context(), actor(r), parentID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if entries == nil {
		entries = []drive.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleFolderPath(w http.ResponseWriter, r *http.Request) {
	chain, err := s.store.FolderPath(r.Context(), actor(r), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, chain)
}

func (s *Server) handleCreateFolder(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name     string  `json:"name"`
		ParentID *string `json:"parentId"`
	}
	if err := decodeBody(r, &body); err != nil {
		s.writeError(w, err)
		return
	}
	entry, err := s.store.CreateFolder(r.Context(), actor(r), body.Name, body.ParentID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

// readUpload pulls the multipart file plus the optional name/parentId
// form fields out of an upload request.
func readUpload(r *http.Request) (*drive.Upload, error) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		return nil, drive.Validation("expected a multipart upload")
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, drive.Validation("missing file field")
	}
	defer file.Close()
	content, err := io.ReadAll(file)
	if err != nil {
		return nil, drive.Validation("could not read upload")
	}

	name := r.FormValue("name")
	if name == "" {
		name = header.Filename
	}
	upload := &drive.Upload{Name: name, Content: content}
	if parentID := r.FormValue("parentId"); parentID != "" {
		upload.ParentID = &parentID
	}
	return upload, nil
}

func (s *Server) handleUploadFile(w http.ResponseWriter, r *http.Request) {
	upload, err := readUpload(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	entry, err := s.store.UploadFile(r.Context(), actor(r), *upload)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

func (s *Server) handleUploadVersion(w http.ResponseWriter, r *http.Request) {
	upload, err := readUpload(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	entry, err := s.store.UploadVersion(r.Context(), actor(r), chi.URLParam(r, "id"), upload.Content)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

func (s *Server) handleRename(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name string `json:"name"`
	}
	if err := decodeBody(r, &body); err != nil {
		s.writeError(w, err)
		return
	}
	entry, err := s.store.Rename(r.Context(), actor(r), chi.URLParam(r, "id"), body.Name)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (s *Server) handleTrash(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Trash(r.Context(), actor(r), chi.URLParam(r, "id")); err != nil {
		s.writeError(w, err)
		return
	}
	writeMessage(w, http.StatusOK, "moved to trash")
}

func (s *Server) handleRestore(w http.ResponseWriter, r *http.Request) {
	entry, err := s.store.Restore(r.Context(), actor(r), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (s *Server) handleDeletePermanently(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeletePermanently(r.Context(), actor(r), chi.URLParam(r, "id")); err != nil {
		s.writeError(w, err)
		return
	}
	writeMessage(w, http.StatusOK, "deleted")
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	entries, err := s.store.Search(r.Context(), actor(r), r.URL.Query().Get("q"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	if entries == nil {
		entries = []drive.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleListTrash(w http.ResponseWriter, r *http.Request) {
	entries, err := s.store.ListTrash(r.Context(), actor(r))
	if err != nil {
		s.writeError(w, err)
		return
	}
	if entries == nil {
		entries = []drive.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleListSharedWithMe(w http.ResponseWriter, r *http.Request) {
	entries, err := s.store.ListSharedWithMe(r.Context(), actor(r))
	if err != nil {
		s.writeError(w, err)
		return
	}
	if entries == nil {
		entries = []drive.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handlePermissions(w http.ResponseWriter, r *http.Request) {
	access, err := s.store.Permissions(r.Context(), actor(r), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, access)
}

func (s *Server) handleShare(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email string     `json:"email"`
		Role  drive.Role `json:"role"`
	}
	if err := decodeBody(r, &body); err != nil {
		s.writeError(w, err)
		return
	}
	result, err := s.store.Share(r.Context(), actor(r), chi.URLParam(r, "id"), body.Email, body.Role)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleUpdatePermission(w http.ResponseWriter, r *http.Request) {
	var body struct {
		UserID string     `json:"userId"`
		Role   drive.Role `json:"role"`
	}
	if err := decodeBody(r, &body); err != nil {
		s.writeError(w, err)
		return
	}
	perms, err := s.store.UpdatePermission(r.Context(), actor(r), chi.URLParam(r, "id"), body.UserID, body.Role)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"permissions": perms})
}

func (s *Server) handleRemovePermission(w http.ResponseWriter, r *http.Request) {
	perms, err := s.store.RemovePermission(r.Context(), actor(r), chi.URLParam(r, "id"), chi.URLParam(r, "userId"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"permissions": perms})
}

func (s *Server) handleVersions(w http.ResponseWriter, r *http.Request) {
	versions, err := s.store.Versions(r.Context(), actor(r), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"versions": versions})
}

func (s *Server) handleDeleteVersion(w http.ResponseWriter, r *http.Request) {
	versions, err := s.store.DeleteVersion(r.Context(), actor(r), chi.URLParam(r, "id"), chi.URLParam(r, "versionId"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"versions": versions})
}

func (s *Server) handleClearVersions(w http.ResponseWriter, r *http.Request) {
	versions, err := s.store.ClearVersions(r.Context(), actor(r), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"versions": versions})
}

func (s *Server) handleOpen(w http.ResponseWriter, r *http.Request) {
	if err := s.store.RecordOpen(r.Context(), actor(r), chi.URLParam(r, "id")); err != nil {
		s.writeError(w, err)
		return
	}
	writeMessage(w, http.StatusOK, "recorded")
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	events, err := s.store.History(r.Context(), actor(r))
	if err != nil {
		s.writeError(w, err)
		return
	}
	if events == nil {
		events = []drive.HistoryEvent{}
	}
	writeJSON(w, http.StatusOK, events)
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	user, err := s.store.Profile(r.Context(), actor(r))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Username string `json:"username"`
		Email    string `json:"email"`
	}
	if err := decodeBody(r, &body); err != nil {
		s.writeError(w, err)
		return
	}
	user, err := s.store.UpdateProfile(r.Context(), actor(r), body.Username, body.Email)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// handleChangePassword validates the shape of the request. The dev
// server has no password store; the real auth service owns credentials.
func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	var body struct {
		CurrentPassword string `json:"currentPassword"`
		NewPassword     string `json:"newPassword"`
	}
	if err := decodeBody(r, &body); err != nil {
		s.writeError(w, err)
		return
	}
	if body.CurrentPassword == "" || body.NewPassword == "" {
		s.writeError(w, drive.Validation("both current and new password are required"))
		return
	}
	writeMessage(w, http.StatusOK, "password updated")
}
