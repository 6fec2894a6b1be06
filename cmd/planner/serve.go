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

	"github.com/warp/strategy-planner/api"
	"github.com/warp/strategy-planner/budget"
	"github.com/warp/strategy-planner/library"
	"github.com/warp/strategy-planner/planner"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	session := planner.NewSession(store, planner.Options{
		DisableAutoSave: !cfg.Session.AutoSave,
		Debounce:        cfg.Session.Debounce,
		Logger:          logger,
	})
	if err := session.Restore(cmd.Context()); err != nil {
		logger.Warn("could not restore session", "error", err)
	}

	libs, err := library.NewSet(store)
	if err != nil {
		return fmt.Errorf("load libraries: %w", err)
	}

	if cfg.Backup.Enabled {
		backups := api.NewBackupScheduler(store, session, cfg.Backup.Dir, logger)
		backups.Keep = cfg.Backup.Keep
		if err := backups.Register(cfg.Backup.Schedule); err != nil {
			return err
		}
		backups.Start()
		defer backups.Stop()
	}

	handler := api.NewHandler(store, session, libs, logger)
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:      api.NewRouter(handler, cfg.CORS.Origins),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", "addr", server.Addr, "db", cfg.DB.Path, "autosave", cfg.Session.AutoSave)
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

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}

	// The debounce timer may still hold the last edits.
	if err := session.Save(shutdownCtx); err != nil && !errors.Is(err, budget.ErrNoActiveStrategy) {
		logger.Error("final save failed", "error", err)
	}
	logger.Info("server stopped")
	return nil
}
