package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cloudbox/cloudbox/internal/bridge"
	"github.com/cloudbox/cloudbox/internal/logger"
	"github.com/cloudbox/cloudbox/pkg/bus"
	"github.com/cloudbox/cloudbox/pkg/client"
	"github.com/cloudbox/cloudbox/pkg/config"
	"github.com/cloudbox/cloudbox/pkg/drive/httpapi"
)

var authToken string

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the client core for one view",
	Long: `run starts the client core: it connects to the File/Folder Service,
joins the cross-process event relay, and serves view state and actions
to a local UI over the bridge API. Start one run process per open view;
they stay consistent with each other through the relay.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		return run(cfg)
	},
}

func init() {
	runCmd.Flags().StringVar(&authToken, "token", "", "credential token (or CLOUDBOX_TOKEN)")
}

func run(cfg *config.Config) error {
	log := logger.Component("run")

	token := authToken
	if token == "" {
		token = os.Getenv("CLOUDBOX_TOKEN")
	}
	if token == "" {
		return errors.New("a credential token is required (--token or CLOUDBOX_TOKEN)")
	}

	session := client.NewSession(token)
	svc := httpapi.NewClient(cfg.API.BaseURL, token,
		httpapi.WithHTTPClient(&http.Client{Timeout: cfg.API.Timeout}),
		httpapi.WithTokenSource(session.Token),
	)

	eventBus := bus.New(bus.WithRelay(cfg.Client.RelaySocket))
	defer eventBus.Close()
	if eventBus.Relayed() {
		log.Info("joined event relay at %s", cfg.Client.RelaySocket)
	} else {
		log.Warn("event relay unavailable, running with local events only")
	}

	view := bridge.New(svc, eventBus, session, cfg.Bridge.AllowedOrigins)
	defer view.Close()

	bootCtx, cancel := context.WithTimeout(context.Background(), cfg.API.Timeout)
	err := view.Bootstrap(bootCtx)
	cancel()
	if err != nil {
		return err
	}
	view.Store().StartPolling(cfg.Client.PollInterval)

	session.OnInvalidated(func() {
		log.Warn("session invalidated, credential is no longer usable")
	})

	httpServer := &http.Server{
		Addr:    cfg.Bridge.Listen,
		Handler: view.Handler(),
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info("bridge listening on %s", cfg.Bridge.Listen)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return err
		}
	}
	return nil
}
