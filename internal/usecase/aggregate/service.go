package aggregate

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"daily-digest/internal/config"
	"daily-digest/internal/domain/entity"
	"daily-digest/internal/observability/logging"
	"daily-digest/internal/observability/metrics"
	"daily-digest/internal/observability/tracing"
	"daily-digest/internal/utils/text"
)

// Sources resolves topics to the feeds that publish them.
type Sources interface {
	FeedsFor(topics []string) []config.FeedTarget
}

// FeedFetcher fetches up to limit items from one feed.
type FeedFetcher interface {
	FetchFeed(ctx context.Context, target config.FeedTarget, limit int) ([]entity.RawArticle, error)
}

// Extractor returns the readable body text of an article page.
type Extractor interface {
	Extract(ctx context.Context, url string) (string, error)
}

// Summarizer produces a structured summary of article text.
type Summarizer interface {
	Summarize(ctx context.Context, text string) (*entity.Summary, error)
}

// Config sizes one aggregation run.
type Config struct {
	MaxArticlesPerSource int
	MaxArticleTextChars  int
	TopN                 int
	ExtractTimeout       time.Duration
	SummarizeTimeout     time.Duration
	Scorer               Scorer
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		MaxArticlesPerSource: 5,
		MaxArticleTextChars:  12000,
		TopN:                 15,
		ExtractTimeout:       10 * time.Second,
		SummarizeTimeout:     60 * time.Second,
		Scorer:               TitleLengthScorer{},
	}
}

// Aggregator runs the fetch, extract, summarize, deduplicate and rank pipeline.
// Articles are processed one at a time.
type Aggregator struct {
	sources    Sources
	fetcher    FeedFetcher
	extractor  Extractor
	summarizer Summarizer
	cfg        Config
}

// NewAggregator wires an Aggregator. Zero-valued config fields take their defaults.
func NewAggregator(sources Sources, fetcher FeedFetcher, extractor Extractor, summarizer Summarizer, cfg Config) *Aggregator {
	def := DefaultConfig()
	if cfg.MaxArticlesPerSource <= 0 {
		cfg.MaxArticlesPerSource = def.MaxArticlesPerSource
	}
	if cfg.MaxArticleTextChars <= 0 {
		cfg.MaxArticleTextChars = def.MaxArticleTextChars
	}
	if cfg.TopN <= 0 {
		cfg.TopN = def.TopN
	}
	if cfg.ExtractTimeout <= 0 {
		cfg.ExtractTimeout = def.ExtractTimeout
	}
	if cfg.SummarizeTimeout <= 0 {
		cfg.SummarizeTimeout = def.SummarizeTimeout
	}
	if cfg.Scorer == nil {
		cfg.Scorer = def.Scorer
	}
	return &Aggregator{
		sources:    sources,
		fetcher:    fetcher,
		extractor:  extractor,
		summarizer: summarizer,
		cfg:        cfg,
	}
}

// Aggregate returns the ranked, summarized articles for topics.
//
// Feed and extraction failures only drop the affected feed or article, and a
// summarizer failure substitutes the fallback summary. ErrAllFeedsFailed is
// returned when no attempted feed succeeded. A cancelled context stops the run
// between articles.
func (a *Aggregator) Aggregate(ctx context.Context, topics []string) ([]entity.SummarizedArticle, error) {
	ctx, span := tracing.StartSpan(ctx, "aggregate", attribute.StringSlice("topics", topics))
	defer span.End()

	logger := logging.FromContext(ctx)
	start := time.Now()

	raw, err := a.fetchAll(ctx, topics)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	summarized := make([]entity.SummarizedArticle, 0, len(raw))
	for _, article := range raw {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		body, ok := a.extract(ctx, article)
		if !ok {
			continue
		}
		summarized = append(summarized, entity.SummarizedArticle{
			RawArticle: article,
			Summary:    a.summarize(ctx, article, body),
		})
	}

	unique := Deduplicate(summarized)
	metrics.RecordDuplicatesDropped(len(summarized) - len(unique))
	ranked := Rank(unique, a.cfg.Scorer, a.cfg.TopN)

	logger.Info("aggregation completed",
		slog.Any("topics", topics),
		slog.Int("fetched", len(raw)),
		slog.Int("extracted", len(summarized)),
		slog.Int("unique", len(unique)),
		slog.Int("ranked", len(ranked)),
		slog.Duration("duration", time.Since(start)))
	span.SetAttributes(attribute.Int("articles", len(ranked)))

	return ranked, nil
}

// fetchAll fetches every feed for topics in registry order.
func (a *Aggregator) fetchAll(ctx context.Context, topics []string) ([]entity.RawArticle, error) {
	logger := logging.FromContext(ctx)
	targets := a.sources.FeedsFor(topics)

	var (
		articles []entity.RawArticle
		failed   int
		lastErr  error
	)
	for _, target := range targets {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		items, err := a.fetcher.FetchFeed(ctx, target, a.cfg.MaxArticlesPerSource)
		metrics.RecordFeedFetch(target.Source, target.Topic, len(items), err)
		if err != nil {
			failed++
			lastErr = err
			logger.Warn("feed fetch failed",
				slog.String("source", target.Source),
				slog.String("topic", target.Topic),
				slog.Any("error", err))
			continue
		}
		articles = append(articles, items...)
	}

	if len(targets) > 0 && failed == len(targets) {
		return nil, errors.Join(ErrAllFeedsFailed, lastErr)
	}
	return articles, nil
}

// extract fetches and cleans the article body. ok is false when the article
// should be dropped.
func (a *Aggregator) extract(ctx context.Context, article entity.RawArticle) (string, bool) {
	extractCtx, cancel := context.WithTimeout(ctx, a.cfg.ExtractTimeout)
	defer cancel()

	start := time.Now()
	body, err := a.extractor.Extract(extractCtx, article.URL)
	if err != nil {
		metrics.RecordExtract("error", time.Since(start))
		logging.FromContext(ctx).Debug("article extraction failed",
			slog.String("url", article.URL),
			slog.Any("error", err))
		return "", false
	}

	body = text.Truncate(text.Clean(body), a.cfg.MaxArticleTextChars)
	if body == "" {
		metrics.RecordExtract("empty", time.Since(start))
		return "", false
	}
	metrics.RecordExtract("success", time.Since(start))
	return body, true
}

// summarize never fails: errors and empty replies yield the fallback summary.
// A summary without a category takes the article's topic.
func (a *Aggregator) summarize(ctx context.Context, article entity.RawArticle, body string) entity.Summary {
	summarizeCtx, cancel := context.WithTimeout(ctx, a.cfg.SummarizeTimeout)
	defer cancel()

	start := time.Now()
	summary, err := a.summarizer.Summarize(summarizeCtx, body)
	if err != nil || summary == nil {
		metrics.RecordArticleSummarized(false, time.Since(start))
		logging.FromContext(ctx).Warn("summarization failed, using fallback",
			slog.String("url", article.URL),
			slog.Any("error", err))
		return entity.FallbackSummary()
	}
	metrics.RecordArticleSummarized(true, time.Since(start))
	result := *summary
	if strings.TrimSpace(result.Category) == "" {
		result.Category = article.Topic
	}
	return result.Normalize()
}
