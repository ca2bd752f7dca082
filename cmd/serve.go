package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/SovereignSignal/discusswatch/internal/api"
	"github.com/SovereignSignal/discusswatch/internal/logger"
	"github.com/SovereignSignal/discusswatch/internal/refresh"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the polling cache and HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(ctx context.Context) error {
	a, err := buildApp(cfgFile)
	if err != nil {
		return err
	}
	defer a.close()

	scheduler := refresh.NewScheduler(a.orch, a.cfg.Cache.RefreshInterval, a.log)
	if err := scheduler.Start(); err != nil {
		return err
	}
	defer scheduler.Stop()

	handler := api.NewHandler(a.facade, a.registry, a.orch, a.log)
	server := api.NewServer(a.cfg.Server, a.cfg.RateLimit, handler, a.inbound, a.metrics, a.promReg, a.log)
	errCh := server.StartAsync()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case sig := <-sigCh:
		a.log.Info("shutdown signal received", logger.String("signal", sig.String()))
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
