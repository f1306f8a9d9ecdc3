package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	httpmw "daily-digest/internal/handler/http"
	unsubscribeHandler "daily-digest/internal/handler/http/unsubscribe"
	"daily-digest/internal/infra/worker"
	"daily-digest/internal/observability/logging"
	"daily-digest/internal/observability/tracing"
	"daily-digest/internal/usecase/schedule"
)

var (
	serveStaleAfter    time.Duration
	serveRatePerMinute int
	serveRateBurst     int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the scheduler with the health, metrics and unsubscribe endpoints",
	Long: `Run the dispatch scheduler until SIGINT or SIGTERM.

The process serves:
  /health, /health/ready, /unsubscribe   on HEALTH_PORT (default 9091)
  /metrics                               on METRICS_PORT (default 9090)

Examples:
  digest serve
  digest serve --stale-after 2h`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().DurationVar(&serveStaleAfter, "stale-after", time.Hour,
		"report not ready when no scheduler tick completed for this long (0 disables)")
	serveCmd.Flags().IntVar(&serveRatePerMinute, "unsubscribe-rate", 30, "unsubscribe requests per minute per client")
	serveCmd.Flags().IntVar(&serveRateBurst, "unsubscribe-burst", 10, "unsubscribe request burst per client")
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := logging.NewLogger()
	a, err := newApp(ctx, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	health := worker.NewHealthServer(fmt.Sprintf(":%d", a.workerCfg.HealthPort), serveStaleAfter, logger)
	health.Mount("/", newPublicRouter(a, logger))

	scheduler := a.newScheduler(schedule.WithHeartbeat(health))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := health.Start(gctx); !isShutdown(err) {
			return fmt.Errorf("health server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := startMetricsServer(gctx, logger, a.workerCfg.MetricsPort); !isShutdown(err) {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		health.SetReady(true)
		defer health.SetReady(false)
		return scheduler.Run(gctx)
	})

	err = g.Wait()
	logger.Info("digest service stopped", slog.Bool("clean", err == nil))
	return err
}

// newPublicRouter serves the unsubscribe link behind the HTTP middleware chain.
func newPublicRouter(a *app, logger *slog.Logger) chi.Router {
	r := chi.NewRouter()
	r.Use(tracing.Middleware)
	r.Use(httpmw.RequestID)
	r.Use(httpmw.Logging(logger))
	r.Use(httpmw.Recover(logger))
	r.Use(httpmw.SecurityHeaders)
	r.Use(httpmw.Metrics)
	r.Use(httpmw.NewRateLimiter(serveRatePerMinute, serveRateBurst).Limit)

	unsubscribeHandler.Register(r, unsubscribeHandler.Handler{
		Verifier: a.tokens,
		Store:    a.subscribers,
		AppName:  a.cfg.AppName,
	})
	return r
}
