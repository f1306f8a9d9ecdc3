package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func newMetricsServer(port int) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.HandlerFor(prometheus.DefaultGatherer, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}))
	return &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
}

// startMetricsServer serves /metrics until ctx is cancelled and then drains for
// up to 5 seconds. A clean stop returns http.ErrServerClosed.
func startMetricsServer(ctx context.Context, logger *slog.Logger, port int) error {
	server := newMetricsServer(port)

	drained := make(chan error, 1)
	stop := context.AfterFunc(ctx, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		drained <- server.Shutdown(shutdownCtx)
	})
	defer stop()

	logger.Info("metrics server starting", slog.Int("port", port))
	err := server.ListenAndServe()
	if !errors.Is(err, http.ErrServerClosed) {
		logger.Error("metrics server error", slog.Any("error", err))
		return err
	}
	if err := <-drained; err != nil {
		logger.Error("metrics server shutdown error", slog.Any("error", err))
		return err
	}
	logger.Info("metrics server stopped")
	return http.ErrServerClosed
}
