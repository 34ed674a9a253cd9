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

	"github.com/antoniostano/linerelay/internal/app"
)

func newServeCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the webhook server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.BindAddr = addr
			}

			runCtx, runCancel := context.WithCancel(context.Background())
			defer runCancel()

			built, err := app.Build(runCtx, cfg, logger)
			if err != nil {
				return err
			}

			httpServer := &http.Server{
				Addr:              cfg.BindAddr,
				Handler:           built.API.Router(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			serveErr := make(chan error, 1)
			go func() {
				logger.Info("server listening", "addr", cfg.BindAddr, "version", version)
				if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					serveErr <- err
				}
				close(serveErr)
			}()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			defer signal.Stop(sigCh)

			var listenErr error
			select {
			case sig := <-sigCh:
				logger.Info("shutdown signal received", "signal", sig.String())
			case listenErr = <-serveErr:
				logger.Error("listen error", "error", listenErr)
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
			defer cancel()
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				logger.Warn("graceful shutdown failed", "error", err)
				_ = httpServer.Close()
			}
			if err := built.Cleanup(shutdownCtx); err != nil {
				logger.Error("cleanup failed", "error", err)
			}
			runCancel()

			logger.Info("shutdown complete")
			return listenErr
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides APP_BIND_ADDR)")
	return cmd
}
