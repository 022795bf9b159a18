package main

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/alejandrodnm/ertvault/internal/adapters/httpapi"
	"github.com/alejandrodnm/ertvault/internal/application/controller"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the expiry sweeper",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	return withApp(func(a *app) error {
		ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()

		slog.Info("ertd starting",
			"config", configPath,
			"http", a.cfg.HTTP.Addr,
			"storage", a.cfg.Storage.DSN,
			"oracle", a.cfg.Oracle.BaseURL,
			"venues", len(a.cfg.Venues),
			"controllers", len(a.cfg.Engine.Controllers),
		)

		go sweepExpired(ctx, a.ctl, a.cfg.ExpirySweepInterval())

		srv := httpapi.New(a.ctl, a.metrics, httpapi.Config{
			Addr:              a.cfg.HTTP.Addr,
			RequestsPerSecond: a.cfg.HTTP.RequestsPerSecond,
			MaxBodyBytes:      a.cfg.HTTP.MaxBodyBytes,
		})
		if err := srv.ListenAndServe(ctx); err != nil {
			slog.Error("http server exited with error", "err", err)
			return err
		}
		slog.Info("ertd stopped cleanly")
		return nil
	})
}

// sweepExpired marca como EXPIRED los ERTs vencidos en cada tick.
func sweepExpired(ctx context.Context, ctl *controller.Controller, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := ctl.ExpireDue(ctx); err != nil && ctx.Err() == nil {
				slog.Warn("expiry sweep failed", "err", err)
			}
		}
	}
}
