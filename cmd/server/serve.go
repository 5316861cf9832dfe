package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/fuomag9/notionsocial/internal/api"
	"github.com/fuomag9/notionsocial/internal/jobs"
	"github.com/fuomag9/notionsocial/internal/notion"
	"github.com/fuomag9/notionsocial/internal/oauth"
	"github.com/fuomag9/notionsocial/internal/tracking"
	"github.com/fuomag9/notionsocial/internal/websocket"
)

// Ten OAuth starts or callbacks per minute per client, in bursts of five.
const (
	authRate  = rate.Limit(10.0 / 60.0)
	authBurst = 5
)

func newServeCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.serve(cmd.Context())
		},
	}
}

func (a *app) serve(parent context.Context) error {
	cfg := a.cfg
	log := a.log

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, closeStore, err := a.openStore()
	if err != nil {
		return err
	}
	defer closeStore()

	// Initialize WebSocket hub
	hub := websocket.NewHub(cfg.JWTSecret, cfg.CORSOrigins, log)
	go hub.Run(ctx)

	clients := oauth.NewClients(cfg)
	for _, c := range clients {
		log.Info().Str("provider", string(c.Provider())).Msg("OAuth provider enabled")
	}
	broker := oauth.NewBroker(st, clients, oauth.Options{
		StateTTL:              cfg.OAuth.StateTTL,
		RequireLongLivedToken: cfg.OAuth.RequireLongLivedToken,
		Events:                hub,
	}, log)

	notionClient := notion.NewClient(&http.Client{Timeout: cfg.OAuth.HTTPTimeout})
	tracker := tracking.NewService(st, notionClient, hub, log)

	// Initialize job scheduler
	scheduler := jobs.NewScheduler(st, log)
	if err := scheduler.Start(); err != nil {
		return fmt.Errorf("failed to start job scheduler: %w", err)
	}
	defer scheduler.Stop()

	limiter := api.NewRateLimiter(authRate, authBurst)
	limiter.CleanupOldLimiters(ctx, 10*time.Minute)

	router := api.NewRouter(api.Deps{
		Config:      cfg,
		Store:       st,
		Flow:        broker,
		Tracker:     tracker,
		WebSocket:   hub.HandleWebSocket,
		AuthLimiter: limiter,
		Log:         log,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Int("port", cfg.Port).Str("environment", cfg.Environment).Msg("Server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Info().Msg("Server exited")
	return nil
}
