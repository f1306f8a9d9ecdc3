package main

import (
	"context"
	"crypto/tls"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"daily-digest/internal/config"
	"daily-digest/internal/infra/adapter/persistence/postgres"
	"daily-digest/internal/infra/db"
	"daily-digest/internal/infra/fetcher"
	"daily-digest/internal/infra/notifier"
	"daily-digest/internal/infra/renderer"
	"daily-digest/internal/infra/scraper"
	"daily-digest/internal/infra/summarizer"
	"daily-digest/internal/infra/worker"
	"daily-digest/internal/observability/tracing"
	"daily-digest/internal/repository"
	"daily-digest/internal/service/unsubscribe"
	"daily-digest/internal/usecase/aggregate"
	"daily-digest/internal/usecase/assemble"
	"daily-digest/internal/usecase/dispatch"
	"daily-digest/internal/usecase/schedule"
)

// app holds the collaborators shared by the run and serve commands.
type app struct {
	logger        *slog.Logger
	cfg           *config.AppConfig
	workerCfg     *worker.WorkerConfig
	workerMetrics *worker.WorkerMetrics
	db            *sql.DB
	subscribers   repository.SubscriberRepository
	ledger        repository.DispatchRepository
	tokens        *unsubscribe.Tokens
	dispatcher    *dispatch.Service

	shutdownTracing func(context.Context) error
}

// newApp loads configuration, opens the database and wires the pipeline.
// Configuration errors are returned before anything touches the network.
func newApp(ctx context.Context, logger *slog.Logger) (*app, error) {
	cfg, err := config.LoadAppConfig()
	if err != nil {
		return nil, err
	}

	// Worker configuration is fail-open: invalid values fall back to defaults.
	workerMetrics := worker.NewWorkerMetrics()
	workerCfg, err := worker.LoadConfigFromEnv(logger, workerMetrics)
	if err != nil {
		return nil, fmt.Errorf("load worker configuration: %w", err)
	}
	if err := workerCfg.Validate(); err != nil {
		return nil, fmt.Errorf("worker configuration: %w", err)
	}
	logger.Info("configuration loaded",
		slog.String("environment", cfg.Environment),
		slog.Duration("poll_interval", workerCfg.PollInterval),
		slog.Bool("due_only", workerCfg.DueOnly),
		slog.Int("max_skips_per_day", workerCfg.MaxSkipsPerDay),
		slog.String("summarizer", cfg.Summarizer.Type),
		slog.String("scorer", cfg.Digest.Scorer))

	registry, err := config.LoadSourceRegistry(cfg.FeedSourcesFile)
	if err != nil {
		return nil, err
	}

	tokens, err := unsubscribe.NewTokens(cfg.SecretKey)
	if err != nil {
		return nil, err
	}

	htmlRenderer, err := renderer.NewHTMLRenderer()
	if err != nil {
		return nil, err
	}

	sum, err := createSummarizer(logger, cfg)
	if err != nil {
		return nil, err
	}

	mailer, err := createMailer(logger, cfg)
	if err != nil {
		return nil, err
	}

	database, err := db.Open(ctx, os.Getenv("DATABASE_URL"))
	if err != nil {
		return nil, err
	}

	a := &app{
		logger:          logger,
		cfg:             cfg,
		workerCfg:       workerCfg,
		workerMetrics:   workerMetrics,
		db:              database,
		subscribers:     postgres.NewSubscriberRepo(database),
		ledger:          postgres.NewDispatchRepo(database),
		tokens:          tokens,
		shutdownTracing: tracing.Init(cfg.TraceSampleRatio),
	}

	aggregator := aggregate.NewAggregator(
		registry,
		scraper.NewRSSFetcher(createHTTPClient()),
		createExtractor(logger),
		sum,
		aggregate.Config{
			MaxArticlesPerSource: cfg.Digest.MaxArticlesPerSource,
			MaxArticleTextChars:  cfg.Digest.MaxArticleTextChars,
			TopN:                 cfg.Digest.TopN,
			ExtractTimeout:       cfg.Timeouts.Extract,
			SummarizeTimeout:     cfg.Timeouts.Summarize,
			Scorer:               aggregate.NewScorer(cfg.Digest.Scorer),
		},
	)

	assembler := assemble.NewService(assemble.Config{
		AppName:          cfg.AppName,
		BaseURL:          cfg.BaseURL,
		TotalMaxArticles: cfg.Digest.TotalMaxArticles,
		PerTopicCap:      cfg.Digest.PerTopicCap,
	}, tokens, htmlRenderer)

	a.dispatcher = dispatch.NewService(a.ledger, aggregator, assembler, mailer,
		dispatch.Config{
			MaxSkipsPerDay: workerCfg.MaxSkipsPerDay,
			SendTimeout:    cfg.Timeouts.Send,
		},
		dispatch.WithMetrics(workerMetrics),
	)

	return a, nil
}

// newScheduler builds the scheduler over the app's stores and dispatcher.
func (a *app) newScheduler(opts ...schedule.Option) *schedule.Scheduler {
	opts = append([]schedule.Option{
		schedule.WithMetrics(a.workerMetrics),
		schedule.WithLogger(a.logger),
	}, opts...)
	return schedule.NewScheduler(a.subscribers, a.ledger, a.dispatcher, schedule.Config{
		Interval: a.workerCfg.PollInterval,
		DueOnly:  a.workerCfg.DueOnly,
	}, opts...)
}

// Close flushes spans and closes the database.
func (a *app) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.shutdownTracing(ctx); err != nil {
		a.logger.Warn("tracer shutdown failed", slog.Any("error", err))
	}
	if err := a.db.Close(); err != nil {
		a.logger.Error("failed to close database", slog.Any("error", err))
	}
}

// createSummarizer picks the summarizer named by SUMMARIZER_TYPE. Outside strict
// environments a missing API key degrades to the no-op summarizer so the pipeline
// can be exercised without credentials.
func createSummarizer(logger *slog.Logger, cfg *config.AppConfig) (aggregate.Summarizer, error) {
	sc := cfg.Summarizer
	metrics := summarizer.WithMetrics(summarizer.NewPrometheusSummaryMetrics())

	apply := func(base summarizer.Config, model string) summarizer.Config {
		base.Model = model
		base.MaxTokens = sc.MaxTokens
		base.Temperature = sc.Temperature
		base.Timeout = cfg.Timeouts.Summarize
		base.BulletsCount = cfg.Digest.BulletsCount
		base.MaxInputChars = cfg.Digest.MaxArticleTextChars
		return base
	}

	switch sc.Type {
	case "claude":
		if sc.AnthropicAPIKey == "" {
			logger.Warn("ANTHROPIC_API_KEY not set, using placeholder summaries")
			return summarizer.NewNoOp(cfg.Digest.BulletsCount), nil
		}
		c := apply(summarizer.DefaultClaudeConfig(), sc.ClaudeModel)
		if err := c.Validate(); err != nil {
			return nil, fmt.Errorf("claude summarizer: %w", err)
		}
		return summarizer.NewClaude(sc.AnthropicAPIKey, c, metrics), nil
	case "openai":
		if sc.OpenAIAPIKey == "" {
			logger.Warn("OPENAI_API_KEY not set, using placeholder summaries")
			return summarizer.NewNoOp(cfg.Digest.BulletsCount), nil
		}
		c := apply(summarizer.DefaultOpenAIConfig(), sc.OpenAIModel)
		if err := c.Validate(); err != nil {
			return nil, fmt.Errorf("openai summarizer: %w", err)
		}
		return summarizer.NewOpenAI(sc.OpenAIAPIKey, c, metrics), nil
	default:
		logger.Info("Using placeholder summaries", slog.String("type", sc.Type))
		return summarizer.NewNoOp(cfg.Digest.BulletsCount), nil
	}
}

// createMailer returns the SMTP mailer, or a log-only mailer in development when
// no SMTP password is configured.
func createMailer(logger *slog.Logger, cfg *config.AppConfig) (dispatch.Mailer, error) {
	if cfg.SMTP.Password == "" && !cfg.Strict() {
		logger.Warn("SMTP_PASSWORD not set, digests will be logged instead of sent")
		return notifier.NewLogMailer(logger), nil
	}

	mailer, err := notifier.NewSMTPMailer(notifier.SMTPConfig{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		UseTLS:   cfg.SMTP.UseTLS,
		Username: cfg.SMTP.Username,
		Password: cfg.SMTP.Password,
		From:     cfg.SMTP.From,
		ReplyTo:  cfg.SMTP.ReplyTo,
		Timeout:  cfg.Timeouts.Send,
	}, notifier.NewRateLimiter(cfg.SMTP.RatePerSecond, cfg.SMTP.Burst))
	if err != nil {
		return nil, fmt.Errorf("smtp mailer: %w", err)
	}
	logger.Info("SMTP mailer initialized",
		slog.String("host", cfg.SMTP.Host),
		slog.Int("port", cfg.SMTP.Port),
		slog.Float64("rate_per_second", cfg.SMTP.RatePerSecond))
	return mailer, nil
}

// createExtractor builds the article extractor. An invalid EXTRACT_* setting
// falls back to the defaults rather than disabling extraction.
func createExtractor(logger *slog.Logger) aggregate.Extractor {
	cfg, err := fetcher.LoadConfigFromEnv()
	if err != nil {
		logger.Warn("invalid extraction configuration, using defaults", slog.Any("error", err))
		cfg = fetcher.DefaultConfig()
	}
	return fetcher.NewReadabilityExtractor(cfg)
}

// createHTTPClient creates the feed HTTP client with timeouts and connection pooling.
// TLS 1.2+ is enforced.
func createHTTPClient() *http.Client {
	return &http.Client{
		Timeout: 30 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
			TLSClientConfig: &tls.Config{
				MinVersion: tls.VersionTLS12,
			},
		},
	}
}

// isShutdown reports whether err only signals a requested stop.
func isShutdown(err error) bool {
	return err == nil || errors.Is(err, context.Canceled) || errors.Is(err, http.ErrServerClosed)
}
