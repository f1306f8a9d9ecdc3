package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Aggregation stage metrics: fetch, extract, summarize, dedupe, assemble.
var (
	FeedFetchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "digest_feed_fetch_total",
		Help: "Feed fetches by source, topic and result",
	}, []string{"source", "topic", "result"})

	ArticlesFetchedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "digest_articles_fetched_total",
		Help: "Feed items returned, by source and topic",
	}, []string{"source", "topic"})

	// result is success, error or empty
	ArticleExtractTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "digest_article_extract_total",
		Help: "Article text extractions by result",
	}, []string{"result"})

	ExtractDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "digest_article_extract_duration_seconds",
		Help:    "Time to download and extract one article",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 8),
	})

	// status is success or fallback
	ArticlesSummarizedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "digest_articles_summarized_total",
		Help: "Article summaries by status",
	}, []string{"status"})

	SummarizationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "digest_summarization_duration_seconds",
		Help:    "Time to summarize one article",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 8),
	})

	DuplicatesDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "digest_duplicates_dropped_total",
		Help: "Articles dropped as title duplicates",
	})

	DigestArticles = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "digest_articles_per_digest",
		Help:    "Articles placed in each assembled digest",
		Buckets: []float64{0, 1, 2, 4, 6, 8, 10, 12, 15},
	})
)

// RecordFeedFetch records one feed fetch and, on success, the number of items it returned.
func RecordFeedFetch(source, topic string, items int, err error) {
	if err != nil {
		FeedFetchTotal.WithLabelValues(source, topic, "failure").Inc()
		return
	}
	FeedFetchTotal.WithLabelValues(source, topic, "success").Inc()
	ArticlesFetchedTotal.WithLabelValues(source, topic).Add(float64(items))
}

// RecordExtract records an extraction attempt.
// Result should be one of "success", "failure" or "empty".
func RecordExtract(result string, duration time.Duration) {
	ArticleExtractTotal.WithLabelValues(result).Inc()
	ExtractDuration.Observe(duration.Seconds())
}

// RecordArticleSummarized records a summarization outcome. A failed call still
// yields an article with the fallback summary, so failure is labelled "fallback".
func RecordArticleSummarized(success bool, duration time.Duration) {
	status := "success"
	if !success {
		status = "fallback"
	}
	ArticlesSummarizedTotal.WithLabelValues(status).Inc()
	SummarizationDuration.Observe(duration.Seconds())
}

// RecordDuplicatesDropped adds n to the deduplication counter.
func RecordDuplicatesDropped(n int) {
	if n > 0 {
		DuplicatesDroppedTotal.Add(float64(n))
	}
}

// RecordDigestSize observes the number of articles in an assembled digest.
func RecordDigestSize(articles int) {
	DigestArticles.Observe(float64(articles))
}
