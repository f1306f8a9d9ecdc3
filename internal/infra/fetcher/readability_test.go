package fetcher_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"daily-digest/internal/infra/fetcher"
)

const articleHTML = `<!DOCTYPE html>
<html>
<head><title>Test Article</title><script>var tracking = "pixel";</script></head>
<body>
	<nav><a href="/">Home</a><a href="/world">World</a></nav>
	<article>
		<h1>Test Article Title</h1>
		<p>This is the first paragraph of the article content, long enough to count as prose.</p>
		<div class="advertisement">Buy one get one free on all subscriptions today</div>
		<p>This is the second paragraph with more important information about the story.</p>
		<p>This is the third paragraph to ensure we have enough content for readability.</p>
	</article>
	<aside>Related: ten other stories you might like</aside>
</body>
</html>`

func localConfig() fetcher.ExtractConfig {
	cfg := fetcher.DefaultConfig()
	cfg.DenyPrivateIPs = false // httptest listens on loopback
	return cfg
}

func htmlServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") != fetcher.UserAgent {
			t.Errorf("User-Agent = %q, want %q", r.Header.Get("User-Agent"), fetcher.UserAgent)
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server
}

/* ───────────── extraction ───────────── */

func TestExtract_Success(t *testing.T) {
	server := htmlServer(t, articleHTML)

	text, err := fetcher.NewReadabilityExtractor(localConfig()).Extract(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if !strings.Contains(text, "first paragraph") {
		t.Errorf("expected article text, got %q", text)
	}
	if !strings.Contains(text, "third paragraph") {
		t.Errorf("expected full article text, got %q", text)
	}
}

func TestExtract_StripsBoilerplate(t *testing.T) {
	server := htmlServer(t, articleHTML)

	text, err := fetcher.NewReadabilityExtractor(localConfig()).Extract(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	for _, unwanted := range []string{"tracking", "Buy one get one", "ten other stories"} {
		if strings.Contains(text, unwanted) {
			t.Errorf("text should not contain %q, got %q", unwanted, text)
		}
	}
}

func TestExtract_NoContent(t *testing.T) {
	server := htmlServer(t, `<!DOCTYPE html><html><head><title>Empty</title></head><body><nav>menu</nav></body></html>`)

	_, err := fetcher.NewReadabilityExtractor(localConfig()).Extract(context.Background(), server.URL)
	if err == nil {
		t.Fatal("Extract() error = nil, want error for empty page")
	}
}

func TestExtract_HTTPError(t *testing.T) {
	for _, code := range []int{http.StatusNotFound, http.StatusForbidden, http.StatusInternalServerError} {
		t.Run(fmt.Sprintf("HTTP %d", code), func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(code)
			}))
			defer server.Close()

			_, err := fetcher.NewReadabilityExtractor(localConfig()).Extract(context.Background(), server.URL)
			if err == nil {
				t.Fatalf("expected error for HTTP %d", code)
			}
			if !strings.Contains(err.Error(), fmt.Sprintf("%d", code)) {
				t.Errorf("error should contain status code %d, got %v", code, err)
			}
		})
	}
}

func TestExtract_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(time.Second)
		_, _ = w.Write([]byte("too late"))
	}))
	defer server.Close()

	cfg := localConfig()
	cfg.Timeout = 100 * time.Millisecond

	_, err := fetcher.NewReadabilityExtractor(cfg).Extract(context.Background(), server.URL)
	if err == nil {
		t.Fatal("expected timeout error, got nil")
	}
}

func TestExtract_ContextCancelled(t *testing.T) {
	server := htmlServer(t, articleHTML)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := fetcher.NewReadabilityExtractor(localConfig()).Extract(ctx, server.URL); err == nil {
		t.Fatal("expected error from cancelled context, got nil")
	}
}

/* ───────────── limits ───────────── */

func TestExtract_BodyTooLarge(t *testing.T) {
	server := htmlServer(t, "<html><body><p>"+strings.Repeat("x", 4096)+"</p></body></html>")

	cfg := localConfig()
	cfg.MaxBodySize = 1024

	_, err := fetcher.NewReadabilityExtractor(cfg).Extract(context.Background(), server.URL)
	if !errors.Is(err, fetcher.ErrBodyTooLarge) {
		t.Fatalf("Extract() error = %v, want ErrBodyTooLarge", err)
	}
}

func TestExtract_TooManyRedirects(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, r.URL.String(), http.StatusFound)
	}))
	defer server.Close()

	cfg := localConfig()
	cfg.MaxRedirects = 2

	_, err := fetcher.NewReadabilityExtractor(cfg).Extract(context.Background(), server.URL)
	if !errors.Is(err, fetcher.ErrTooManyRedirects) {
		t.Fatalf("Extract() error = %v, want ErrTooManyRedirects", err)
	}
}

func TestExtract_FollowsRedirect(t *testing.T) {
	final := htmlServer(t, articleHTML)
	initial := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, final.URL, http.StatusFound)
	}))
	defer initial.Close()

	text, err := fetcher.NewReadabilityExtractor(localConfig()).Extract(context.Background(), initial.URL)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if !strings.Contains(text, "second paragraph") {
		t.Errorf("expected content from redirect target, got %q", text)
	}
}

/* ───────────── SSRF ───────────── */

func TestExtract_RejectsUnsupportedScheme(t *testing.T) {
	e := fetcher.NewReadabilityExtractor(fetcher.DefaultConfig())

	for _, u := range []string{"ftp://example.com/a", "file:///etc/passwd", "javascript:alert(1)", "not-a-url"} {
		t.Run(u, func(t *testing.T) {
			_, err := e.Extract(context.Background(), u)
			if !errors.Is(err, fetcher.ErrInvalidURL) {
				t.Errorf("Extract(%q) error = %v, want ErrInvalidURL", u, err)
			}
		})
	}
}

func TestExtract_RejectsPrivateIPs(t *testing.T) {
	e := fetcher.NewReadabilityExtractor(fetcher.DefaultConfig())

	for _, u := range []string{
		"http://127.0.0.1/article",
		"http://10.0.0.5/article",
		"http://172.16.3.4/article",
		"http://192.168.1.1/article",
		"http://169.254.169.254/latest/meta-data",
		"http://[::1]/article",
		"http://0.0.0.0/article",
	} {
		t.Run(u, func(t *testing.T) {
			_, err := e.Extract(context.Background(), u)
			if !errors.Is(err, fetcher.ErrPrivateIP) {
				t.Errorf("Extract(%q) error = %v, want ErrPrivateIP", u, err)
			}
		})
	}
}

/* ───────────── circuit breaker ───────────── */

func TestExtract_CircuitBreakerOpens(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	e := fetcher.NewReadabilityExtractor(localConfig())

	// ArticleExtractConfig trips at 80% failures over at least 10 requests.
	for i := 0; i < 10; i++ {
		_, _ = e.Extract(context.Background(), server.URL)
	}
	before := atomic.LoadInt32(&hits)

	_, err := e.Extract(context.Background(), server.URL)
	if err == nil {
		t.Fatal("expected error with open circuit")
	}
	if after := atomic.LoadInt32(&hits); after != before {
		t.Errorf("request reached the server with an open circuit (hits %d -> %d)", before, after)
	}
}

func TestExtract_ClientErrorsDoNotOpenCircuit(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	e := fetcher.NewReadabilityExtractor(localConfig())
	for i := 0; i < 15; i++ {
		_, _ = e.Extract(context.Background(), server.URL)
	}

	if got := atomic.LoadInt32(&hits); got != 15 {
		t.Errorf("hits = %d, want 15: a 403 must not open the circuit", got)
	}
}

func TestExtract_FailingHostDoesNotBlockOthers(t *testing.T) {
	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer failing.Close()
	healthy := htmlServer(t, articleHTML)

	e := fetcher.NewReadabilityExtractor(localConfig())
	for i := 0; i < 12; i++ {
		_, _ = e.Extract(context.Background(), failing.URL+fmt.Sprintf("/story-%d", i))
	}

	// The failing host's circuit is open by now; the healthy one is untouched.
	text, err := e.Extract(context.Background(), healthy.URL)
	if err != nil {
		t.Fatalf("healthy host blocked: %v", err)
	}
	if !strings.Contains(text, "first paragraph") {
		t.Errorf("unexpected text %q", text)
	}
}
