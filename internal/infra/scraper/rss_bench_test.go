package scraper_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"daily-digest/internal/infra/scraper"
)

func benchmarkFeed(b *testing.B, items int) {
	var sb strings.Builder
	sb.WriteString(`<?xml version="1.0" encoding="UTF-8"?><rss version="2.0"><channel><title>Bench</title>`)
	for i := 0; i < items; i++ {
		fmt.Fprintf(&sb, `<item><title>Article %d</title><link>https://example.com/%d</link><pubDate>Mon, 01 Jan 2024 00:00:00 +0000</pubDate></item>`, i, i)
	}
	sb.WriteString(`</channel></rss>`)
	body := sb.String()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte(body))
	}))
	defer server.Close()

	fetcher := scraper.NewRSSFetcher(&http.Client{Timeout: 10 * time.Second})

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = fetcher.FetchFeed(context.Background(), target(server.URL), 10)
	}
}

func BenchmarkRSSFetcher_SmallFeed(b *testing.B)  { benchmarkFeed(b, 10) }
func BenchmarkRSSFetcher_MediumFeed(b *testing.B) { benchmarkFeed(b, 50) }
