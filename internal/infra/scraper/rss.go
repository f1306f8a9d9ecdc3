// Package scraper fetches RSS/Atom feeds for the configured publishers.
// It uses the gofeed library to parse feed content with reliability patterns.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"net/http"
	"strings"

	"daily-digest/internal/config"
	"daily-digest/internal/domain/entity"
	"daily-digest/internal/resilience/circuitbreaker"
	"daily-digest/internal/resilience/retry"

	"github.com/microcosm-cc/bluemonday"
	"github.com/mmcdole/gofeed"
	"github.com/sony/gobreaker"
)

// UserAgent is sent with every feed request.
const UserAgent = "DailyDigestBot/1.0"

// RSSFetcher fetches feeds using the gofeed library.
// It includes circuit breaker and retry logic for improved reliability.
type RSSFetcher struct {
	client      *http.Client
	breakers    *circuitbreaker.Group
	retryConfig retry.Config
	policy      *bluemonday.Policy
}

// Option configures an RSSFetcher.
type Option func(*RSSFetcher)

// WithRetryConfig overrides the retry configuration.
func WithRetryConfig(cfg retry.Config) Option {
	return func(f *RSSFetcher) {
		f.retryConfig = cfg
	}
}

// WithCircuitBreakers overrides the per-source breaker group.
func WithCircuitBreakers(g *circuitbreaker.Group) Option {
	return func(f *RSSFetcher) {
		f.breakers = g
	}
}

// NewRSSFetcher creates a new RSSFetcher with the given HTTP client.
// Each source gets its own circuit breaker.
func NewRSSFetcher(client *http.Client, opts ...Option) *RSSFetcher {
	f := &RSSFetcher{
		client:      client,
		breakers:    circuitbreaker.NewGroup(circuitbreaker.FeedFetchConfig()),
		retryConfig: retry.FeedFetchConfig(),
		policy:      bluemonday.StrictPolicy(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// FetchFeed retrieves the feed behind target and returns at most limit entries,
// each tagged with the target's source and topic. Entries without a link are skipped.
// A limit of zero or less means no cap.
func (f *RSSFetcher) FetchFeed(ctx context.Context, target config.FeedTarget, limit int) ([]entity.RawArticle, error) {
	var feed *gofeed.Feed
	cb := f.breakers.Get(target.Source)

	retryErr := retry.WithBackoff(ctx, f.retryConfig, func() error {
		cbResult, err := cb.Execute(func() (interface{}, error) {
			return f.doFetch(ctx, target.URL)
		})
		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) {
				slog.Warn("feed fetch circuit breaker open, request rejected",
					slog.String("service", "feed-fetch"),
					slog.String("url", target.URL),
					slog.String("breaker", cb.Name()))
			}
			return err
		}

		feed = cbResult.(*gofeed.Feed)
		return nil
	})
	if retryErr != nil {
		return nil, fmt.Errorf("fetch feed %s/%s: %w", target.Source, target.Topic, retryErr)
	}

	items := make([]entity.RawArticle, 0, len(feed.Items))
	for _, it := range feed.Items {
		if limit > 0 && len(items) >= limit {
			break
		}
		link := strings.TrimSpace(it.Link)
		if link == "" {
			continue
		}
		published := it.Published
		if published == "" {
			published = it.Updated
		}
		items = append(items, entity.RawArticle{
			Title:     f.cleanTitle(it.Title),
			URL:       link,
			Source:    target.Source,
			Topic:     target.Topic,
			Published: published,
		})
	}

	return items, nil
}

// doFetch performs the actual feed fetch without retry or circuit breaker.
func (f *RSSFetcher) doFetch(ctx context.Context, feedURL string) (*gofeed.Feed, error) {
	fp := gofeed.NewParser()
	fp.UserAgent = UserAgent
	fp.Client = f.client

	feed, err := fp.ParseURLWithContext(feedURL, ctx)
	if err != nil {
		var httpErr gofeed.HTTPError
		if errors.As(err, &httpErr) {
			return nil, &retry.HTTPError{StatusCode: httpErr.StatusCode, Message: httpErr.Status}
		}
		return nil, err
	}
	return feed, nil
}

// cleanTitle strips markup and entities from a feed title.
func (f *RSSFetcher) cleanTitle(title string) string {
	stripped := f.policy.Sanitize(title)
	return strings.Join(strings.Fields(html.UnescapeString(stripped)), " ")
}
