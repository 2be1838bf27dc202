// Package devserver hosts a drive.Store behind the CloudBox REST API.
//
// It serves the same endpoints and error envelope the httpapi client
// consumes, with a token table standing in for the real auth service:
// accounts are seeded programmatically and each seeded account gets an
// opaque token to present as x-auth-token.
package devserver

import (
	"context"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"

	"github.com/cloudbox/cloudbox/internal/logger"
	"github.com/cloudbox/cloudbox/pkg/drive"
)

const authHeader = "x-auth-token"

// Server exposes a drive.Store over HTTP.
type Server struct {
	store drive.Store
	log   *logger.Scoped

	mu     sync.RWMutex
	tokens map[string]string // token -> user ID

	router chi.Router
}

// New creates a server around the given store.
func New(store drive.Store) *Server {
	s := &Server{
		store:  store,
		log:    logger.Component("devserver"),
		tokens: make(map[string]string),
	}
	s.router = s.buildRouter()
	return s
}

// Handler returns the HTTP handler for mounting or httptest.
func (s *Server) Handler() http.Handler { return s.router }

// SeedUser registers an account in the store and issues a credential
// token for it.
func (s *Server) SeedUser(user drive.User) (string, error) {
	if err := s.store.RegisterUser(context.Background(), user); err != nil {
		return "", err
	}
	return s.IssueToken(user.ID), nil
}

// IssueToken mints a fresh token for an existing user.
func (s *Server) IssueToken(userID string) string {
	token := uuid.NewString()
	s.mu.Lock()
	s.tokens[token] = userID
	s.mu.Unlock()
	return token
}

// RevokeToken invalidates a token. Requests carrying it fail with 401
// from then on.
func (s *Server) RevokeToken(token string) {
	s.mu.Lock()
	delete(s.tokens, token)
	s.mu.Unlock()
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", authHeader},
		MaxAge:         300,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Use(s.authenticate)

		r.Route("/files", func(r chi.Router) {
			r.Get("/", s.handleList)
			r.Post("/", s.handleUploadFile)
			r.Get("/search", s.handleSearch)
			r.Get("/trash", s.handleListTrash)
			r.Delete("/trash/{id}", s.handleDeletePermanently)
			r.Get("/shared-with-me", s.handleListSharedWithMe)

			r.Route("/{id}", func(r chi.Router) {
				r.Delete("/", s.handleTrash)
				r.Put("/rename", s.handleRename)
				r.Put("/restore", s.handleRestore)
				r.Post("/open", s.handleOpen)
				r.Post("/share", s.handleShare)
				r.Get("/permissions", s.handlePermissions)
				r.Patch("/permissions", s.handleUpdatePermission)
				r.Delete("/permissions/{userId}", s.handleRemovePermission)
				r.Get("/versions", s.handleVersions)
				r.Post("/versions", s.handleUploadVersion)
				r.Delete("/versions", s.handleClearVersions)
				r.Delete("/versions/{versionId}", s.handleDeleteVersion)
			})
		})

		r.Post("/folders", s.handleCreateFolder)
		r.Get("/folders/{id}/path", s.handleFolderPath)
		r.Get("/history", s.handleHistory)
		r.Get("/auth/me", s.handleProfile)
		r.Put("/users/me", s.handleUpdateProfile)
		r.Put("/users/me/password", s.handleChangePassword)
	})

	return r
}
