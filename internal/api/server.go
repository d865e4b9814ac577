package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// NewRouter configures the query and health routes
func NewRouter(repo Repository, gatherer prometheus.Gatherer, serviceName string, logger *zap.Logger) *mux.Router {
	h := &handlers{repo: repo, serviceName: serviceName, logger: logger.Named("api")}

	r := mux.NewRouter()
	r.HandleFunc("/health", h.health).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/readings", h.readings).Methods(http.MethodGet)
	api.HandleFunc("/devices", h.devices).Methods(http.MethodGet)
	api.HandleFunc("/metrics", h.metrics).Methods(http.MethodGet)

	return r
}

// NewServer creates the HTTP server and binds it to the application lifecycle
func NewServer(lc fx.Lifecycle, handler http.Handler, port int, logger *zap.Logger) *http.Server {
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      handler,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ln, err := net.Listen("tcp", server.Addr)
			if err != nil {
				return fmt.Errorf("failed to listen on %s: %w", server.Addr, err)
			}
			logger.Info("http server listening", zap.String("addr", server.Addr))

			go func() {
				if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("http server stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("shutting down http server")
			return server.Shutdown(ctx)
		},
	})

	return server
}
