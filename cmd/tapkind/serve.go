package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"tapkind/internal/auth"
	"tapkind/internal/cache"
	api "tapkind/internal/http"
	"tapkind/internal/service"
)

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.serve(cmd.Context())
		},
	}
}

func (a *app) serve(ctx context.Context) error {
	store, closeStore, err := a.openStore(ctx, a.cfg.Database.Migrate)
	if err != nil {
		return err
	}
	defer closeStore()

	if a.cfg.Catalog.Seed {
		if err := a.seedCatalog(ctx, store); err != nil {
			return fmt.Errorf("seed catalog: %w", err)
		}
	}

	var cacheClient *cache.Client
	if a.cfg.Redis.Enabled {
		cacheClient, err = cache.NewClient(a.cfg.Redis, a.log)
		if err != nil {
			a.log.Warn("redis unavailable; token revocation and rate limits are off", zap.Error(err))
			cacheClient = nil
		} else {
			defer cacheClient.Close()
		}
	}

	authManager := auth.NewManager(a.cfg.Auth.JWTSecret, a.cfg.Auth.AccessTokenTTL)
	svc := service.New(store, authManager, cacheClient, a.cfg, a.log)
	handler := api.New(svc, a.cfg.Server.CORSOrigins)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           handler.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		a.log.Info("server listening", zap.String("addr", srv.Addr), zap.String("store", a.cfg.Server.Store))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	a.log.Info("shutting down")
	ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctxShutdown); err != nil {
		a.log.Error("server shutdown error", zap.Error(err))
	}
	return nil
}
