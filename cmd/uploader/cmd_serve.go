package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/LEE-CHIEN-AN/wiolink-uploader/internal/api"
	"github.com/LEE-CHIEN-AN/wiolink-uploader/internal/config"
	"github.com/LEE-CHIEN-AN/wiolink-uploader/internal/repository"
	"github.com/LEE-CHIEN-AN/wiolink-uploader/internal/service"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Poll devices on an interval and serve the query API",
	Long: `Start the poller and the HTTP server. A poll cycle runs immediately and
then every POLL_INTERVAL; /health, /metrics and /api/* are served on
SERVICE_PORT.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	return runApp(ctx, func(ctx context.Context) error {
		<-ctx.Done()
		return nil
	},
		fx.Provide(ProvideRouter),
		fx.Invoke(registerAutoMigrate),
		fx.Invoke(startServer),
		fx.Invoke(startPoller),
	)
}

// ProvideRouter creates the HTTP router
func ProvideRouter(repo *repository.Repository, reg *prometheus.Registry, cfg *config.Config, logger *zap.Logger) http.Handler {
	return api.NewRouter(repo, reg, cfg.ServiceName, logger)
}

func startServer(lc fx.Lifecycle, handler http.Handler, cfg *config.Config, logger *zap.Logger) {
	api.NewServer(lc, handler, cfg.ServicePort, logger)
}

func startPoller(lc fx.Lifecycle, runner *service.Runner, logger *zap.Logger) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				runner.RunForever(ctx)
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-done:
				logger.Info("poller stopped")
				return nil
			case <-stopCtx.Done():
				return stopCtx.Err()
			}
		},
	})
}
