package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/cloudbox/cloudbox/internal/devserver"
	"github.com/cloudbox/cloudbox/internal/logger"
	"github.com/cloudbox/cloudbox/pkg/config"
	"github.com/cloudbox/cloudbox/pkg/drive"
)

var seedDemo bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the CloudBox dev server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		return serve(cfg)
	},
}

func init() {
	serveCmd.Flags().BoolVar(&seedDemo, "seed", false, "seed a demo account with example content")
}

func serve(cfg *config.Config) error {
	log := logger.Component("serve")

	store, err := config.CreateStore(context.Background(), &cfg.Store, &cfg.Blob)
	if err != nil {
		return err
	}
	defer store.Close()

	server := devserver.New(store)

	if seedDemo {
		token, err := seedDemoData(server, store)
		if err != nil {
			return err
		}
		log.Info("demo account ready, token: %s", token)
	}

	httpServer := &http.Server{
		Addr:    cfg.Server.Listen,
		Handler: server.Handler(),
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening on %s (store: %s)", cfg.Server.Listen, cfg.Store.Type)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return err
		}
	}
	return nil
}

// seedDemoData provisions a demo account with a small tree so a fresh
// dev server has something to browse.
func seedDemoData(server *devserver.Server, store drive.Store) (string, error) {
	ctx := context.Background()
	user := drive.User{ID: uuid.NewString(), Email: "demo@cloudbox.local", Username: "demo"}
	token, err := server.SeedUser(user)
	if err != nil {
		return "", err
	}

	docs, err := store.CreateFolder(ctx, user.ID, "Documents", nil)
	if err != nil {
		return "", err
	}
	if _, err := store.CreateFolder(ctx, user.ID, "Photos", nil); err != nil {
		return "", err
	}

	files := []struct {
		name     string
		parentID *string
		content  string
	}{
		{"readme.txt", nil, "Welcome to CloudBox!\n"},
		{"notes.txt", &docs.ID, "Some notes live here.\n"},
		{"report.txt", &docs.ID, "Quarterly report draft.\n"},
	}
	for _, f := range files {
		_, err := store.UploadFile(ctx, user.ID, drive.Upload{
			Name:     f.name,
			ParentID: f.parentID,
			Content:  []byte(f.content),
		})
		if err != nil {
			return "", err
		}
	}
	return token, nil
}
