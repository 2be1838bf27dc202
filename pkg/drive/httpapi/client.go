// Package httpapi implements drive.Service over the CloudBox REST API.
//
// The client attaches the session credential as the x-auth-token header
// on every request and translates HTTP failures into *drive.ServiceError
// values so callers never see transport types.
package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cloudbox/cloudbox/pkg/drive"
)

const authHeader = "x-auth-token"

// Client is a drive.Service backed by the remote REST API.
type Client struct {
	baseURL string
	httpc   *http.Client
	token   func() string
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client, e.g. for tests or
// custom transports.
func WithHTTPClient(httpc *http.Client) Option {
	return func(c *Client) { c.httpc = httpc }
}

// WithTokenSource supplies the credential lazily, so token rotation and
// invalidation are picked up per request.
func WithTokenSource(fn func() string) Option {
	return func(c *Client) { c.token = fn }
}

// NewClient creates a REST client for the API at baseURL using a static
// credential token. Use WithTokenSource when the token can change.
func NewClient(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpc:   &http.Client{Timeout: 30 * time.Second},
		token:   func() string { return token },
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var _ drive.Service = (*Client)(nil)

// errorBody is the error envelope the API returns. Older deployments
// used "msg"; both spellings are accepted.
type errorBody struct {
	Message string `json:"message"`
	Msg     string `json:"msg"`
}

// do issues one request and decodes the JSON response into out (which
// may be nil when the caller only needs the status).
func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return &drive.ServiceError{Code: drive.ErrTransport, Message: err.Error()}
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token := c.token(); token != "" {
		req.Header.Set(authHeader, token)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return &drive.ServiceError{Code: drive.ErrTransport, Message: "could not reach the server"}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeError(resp)
	}
	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &drive.ServiceError{Code: drive.ErrInternal, Message: "malformed response from server"}
	}
	return nil
}

// doJSON marshals payload and issues a JSON request.
func (c *Client) doJSON(ctx context.Context, method, path string, payload, out interface{}) error {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return &drive.ServiceError{Code: drive.ErrInternal, Message: err.Error()}
		}
		body = bytes.NewReader(raw)
	}
	return c.do(ctx, method, path, body, "application/json", out)
}

// decodeError maps an HTTP failure onto the error taxonomy.
func decodeError(resp *http.Response) error {
	var envelope errorBody
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	json.Unmarshal(raw, &envelope)
	message := envelope.Message
	if message == "" {
		message = envelope.Msg
	}
	if message == "" {
		message = http.StatusText(resp.StatusCode)
	}

	code := drive.ErrInternal
	switch resp.StatusCode {
	case http.StatusBadRequest:
		code = drive.ErrValidation
	case http.StatusUnauthorized:
		code = drive.ErrUnauthorized
	case http.StatusForbidden:
		code = drive.ErrForbidden
	case http.StatusNotFound:
		code = drive.ErrNotFound
	case http.StatusConflict:
		code = drive.ErrConflict
	}
	return &drive.ServiceError{Code: code, Message: message}
}

func (c *Client) List(ctx context.Context, parentID *string) ([]drive.Entry, error) {
	path := "/api/files"
	if parentID != nil {
		path += "?parentId=" + url.QueryEscape(*parentID)
	}
	var out []drive.Entry
	if err := c.do(ctx, http.MethodGet, path, nil, "", &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) FolderPath(ctx context.Context, folderID string) ([]drive.Entry, error) {
	var out []drive.Entry
	if err := c.do(ctx, http.MethodGet, "/api/folders/"+url.PathEscape(folderID)+"/path", nil, "", &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) CreateFolder(ctx context.Context, name string, parentID *string) (*drive.Entry, error) {
	payload := struct {
		Name     string  `json:"name"`
		ParentID *string `json:"parentId,omitempty"`
	}{Name: name, ParentID: parentID}
	var out drive.Entry
	if err := c.doJSON(ctx, http.MethodPost, "/api/folders", payload, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UploadFile(ctx context.Context, upload drive.Upload) (*drive.Entry, error) {
	body, contentType, err := multipartUpload(upload.Name, upload.ParentID, upload.Content)
	if err != nil {
		return nil, err
	}
	var out drive.Entry
	if err := c.do(ctx, http.MethodPost, "/api/files", body, contentType, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UploadVersion(ctx context.Context, fileID string, content []byte) (*drive.Entry, error) {
	body, contentType, err := multipartUpload("", nil, content)
	if err != nil {
		return nil, err
	}
	var out drive.Entry
	if err := c.do(ctx, http.MethodPost, "/api/files/"+url.PathEscape(fileID)+"/versions", body, contentType, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// multipartUpload frames content as a multipart form. The name and
// parentId travel as form fields when set.
func multipartUpload(name string, parentID *string, content []byte) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	filename := name
	if filename == "" {
		filename = "upload"
	}
	part, err := w.CreateFormFile("file", filename)
	if err != nil {
		return nil, "", &drive.ServiceError{Code: drive.ErrInternal, Message: err.Error()}
	}
	if _, err := part.Write(content); err != nil {
		return nil, "", &drive.ServiceError{Code: drive.ErrInternal, Message: err.Error()}
	}
	if name != "" {
		w.WriteField("name", name)
	}
	if parentID != nil {
		w.WriteField("parentId", *parentID)
	}
	if err := w.Close(); err != nil {
		return nil, "", &drive.ServiceError{Code: drive.ErrInternal, Message: err.Error()}
	}
	return &buf, w.FormDataContentType(), nil
}

func (c *Client) Rename(ctx context.Context, id, name string) (*drive.Entry, error) {
	payload := struct {
		Name string `json:"name"`
	}{Name: name}
	var out drive.Entry
	if err := c.doJSON(ctx, http.MethodPut, "/api/files/"+url.PathEscape(id)+"/rename", payload, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Trash(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/files/"+url.PathEscape(id), nil, "", nil)
}

func (c *Client) Restore(ctx context.Context, id string) (*drive.Entry, error) {
	var out drive.Entry
	if err := c.do(ctx, http.MethodPut, "/api/files/"+url.PathEscape(id)+"/restore", nil, "", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeletePermanently(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/files/trash/"+url.PathEscape(id), nil, "", nil)
}

func (c *Client) Search(ctx context.Context, query string) ([]drive.Entry, error) {
	var out []drive.Entry
	if err := c.do(ctx, http.MethodGet, "/api/files/search?q="+url.QueryEscape(query), nil, "", &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) ListTrash(ctx context.Context) ([]drive.Entry, error) {
	var out []drive.Entry
	if err := c.do(ctx, http.MethodGet, "/api/files/trash", nil, "", &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) ListSharedWithMe(ctx context.Context) ([]drive.Entry, error) {
	var out []drive.Entry
	if err := c.do(ctx, http.MethodGet, "/api/files/shared-with-me", nil, "", &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Permissions(ctx context.Context, id string) (*drive.AccessList, error) {
	var out drive.AccessList
	if err := c.do(ctx, http.MethodGet, "/api/files/"+url.PathEscape(id)+"/permissions", nil, "", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Share(ctx context.Context, id, email string, role drive.Role) (*drive.ShareResult, error) {
	payload := struct {
		Email string     `json:"email"`
		Role  drive.Role `json:"role"`
	}{Email: email, Role: role}
	var out drive.ShareResult
	if err := c.doJSON(ctx, http.MethodPost, "/api/files/"+url.PathEscape(id)+"/share", payload, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// permissionsEnvelope wraps permission list responses.
type permissionsEnvelope struct {
	Permissions []drive.Permission `json:"permissions"`
}

func (c *Client) UpdatePermission(ctx context.Context, id, userID string, role drive.Role) ([]drive.Permission, error) {
	payload := struct {
		UserID string     `json:"userId"`
		Role   drive.Role `json:"role"`
	}{UserID: userID, Role: role}
	var out permissionsEnvelope
	if err := c.doJSON(ctx, http.MethodPatch, "/api/files/"+url.PathEscape(id)+"/permissions", payload, &out); err != nil {
		return nil, err
	}
	return out.Permissions, nil
}

func (c *Client) RemovePermission(ctx context.Context, id, userID string) ([]drive.Permission, error) {
	path := fmt.Sprintf("/api/files/%s/permissions/%s", url.PathEscape(id), url.PathEscape(userID))
	var out permissionsEnvelope
	if err := c.do(ctx, http.MethodDelete, path, nil, "", &out); err != nil {
		return nil, err
	}
	return out.Permissions, nil
}

// versionsEnvelope wraps version list responses.
type versionsEnvelope struct {
	Versions []drive.Version `json:"versions"`
}

func (c *Client) Versions(ctx context.Context, fileID string) ([]drive.Version, error) {
	var out versionsEnvelope
	if err := c.do(ctx, http.MethodGet, "/api/files/"+url.PathEscape(fileID)+"/versions", nil, "", &out); err != nil {
		return nil, err
	}
	return out.Versions, nil
}

func (c *Client) DeleteVersion(ctx context.Context, fileID, versionID string) ([]drive.Version, error) {
	path := fmt.Sprintf("/api/files/%s/versions/%s", url.PathEscape(fileID), url.PathEscape(versionID))
	var out versionsEnvelope
	if err := c.do(ctx, http.MethodDelete, path, nil, "", &out); err != nil {
		return nil, err
	}
	return out.Versions, nil
}

func (c *Client) ClearVersions(ctx context.Context, fileID string) ([]drive.Version, error) {
	var out versionsEnvelope
	if err := c.do(ctx, http.MethodDelete, "/api/files/"+url.PathEscape(fileID)+"/versions", nil, "", &out); err != nil {
		return nil, err
	}
	return out.Versions, nil
}

func (c *Client) RecordOpen(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, "/api/files/"+url.PathEscape(id)+"/open", nil, "", nil)
}

func (c *Client) History(ctx context.Context) ([]drive.HistoryEvent, error) {
	var out []drive.HistoryEvent
	if err := c.do(ctx, http.MethodGet, "/api/history", nil, "", &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Profile(ctx context.Context) (*drive.User, error) {
	var out drive.User
	if err := c.do(ctx, http.MethodGet, "/api/auth/me", nil, "", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdateProfile(ctx context.Context, username, email string) (*drive.User, error) {
	payload := struct {
		Username string `json:"username"`
		Email    string `json:"email"`
	}{Username: username, Email: email}
	var out drive.User
	if err := c.doJSON(ctx, http.MethodPut, "/api/users/me", payload, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ChangePassword(ctx context.Context, currentPassword, newPassword string) error {
	payload := struct {
		CurrentPassword string `json:"currentPassword"`
		NewPassword     string `json:"newPassword"`
	}{CurrentPassword: currentPassword, NewPassword: newPassword}
	return c.doJSON(ctx, http.MethodPut, "/api/users/me/password", payload, nil)
}
