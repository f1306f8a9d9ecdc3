// Package fetcher downloads article pages and extracts their readable text.
package fetcher

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"daily-digest/internal/resilience/circuitbreaker"
	"daily-digest/internal/resilience/retry"

	"github.com/PuerkitoBio/goquery"
	"github.com/doyensec/safeurl"
	"github.com/go-shiori/go-readability"
)

// UserAgent identifies the extractor to publishers.
const UserAgent = "DailyDigestBot/1.0"

// boilerplateSelector matches page chrome removed before readability runs.
const boilerplateSelector = "script, style, noscript, iframe, nav, aside, footer, form, " +
	".ad, .ads, .advert, .advertisement, [class*='sponsor'], [id*='advert'], [aria-label='advertisement']"

// ReadabilityExtractor extracts article text using the Mozilla Readability algorithm
// (go-shiori/go-readability) after stripping page chrome with goquery.
//
// Thread safety: ReadabilityExtractor is safe for concurrent use.
type ReadabilityExtractor struct {
	client   *http.Client
	breakers *circuitbreaker.Group
	config   ExtractConfig
}

// NewReadabilityExtractor creates an extractor with redirect validation and one
// circuit breaker per host.
// With DenyPrivateIPs the transport also checks every dialed address, which
// catches DNS answers that change between validation and connect.
func NewReadabilityExtractor(config ExtractConfig) *ReadabilityExtractor {
	cbConfig := circuitbreaker.ArticleExtractConfig()
	cbConfig.IsFailure = isHostFailure
	e := &ReadabilityExtractor{
		breakers: circuitbreaker.NewGroup(cbConfig),
		config:   config,
	}

	if config.DenyPrivateIPs {
		e.client = newGuardedClient(config.Timeout)
	} else {
		e.client = &http.Client{
			Timeout: config.Timeout,
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

	next := e.client.CheckRedirect
	e.client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if len(via) >= e.config.MaxRedirects {
			return fmt.Errorf("%w: %d redirects", ErrTooManyRedirects, len(via))
		}
		if err := validateURL(req.Context(), req.URL.String(), e.config.DenyPrivateIPs); err != nil {
			return fmt.Errorf("redirect target validation failed: %w", err)
		}
		if next != nil {
			return next(req, via)
		}
		return nil
	}

	return e
}

// newGuardedClient returns a safeurl client limited to http(s) on the default
// ports. Private, loopback, link-local and metadata addresses are refused at dial time.
func newGuardedClient(timeout time.Duration) *http.Client {
	cfg := safeurl.GetConfigBuilder().
		SetTimeout(timeout).
		SetAllowedSchemes("http", "https").
		SetAllowedPorts(80, 443).
		Build()
	return safeurl.Client(cfg).Client
}

// Extract downloads the page at urlStr and returns its main text.
// Callers treat any error as "drop this article".
func (e *ReadabilityExtractor) Extract(ctx context.Context, urlStr string) (string, error) {
	if err := validateURL(ctx, urlStr, e.config.DenyPrivateIPs); err != nil {
		return "", err
	}

	result, err := e.breakers.Get(hostOf(urlStr)).Execute(func() (interface{}, error) {
		return e.doExtract(ctx, urlStr)
	})
	if err != nil {
		return "", err
	}

	return result.(string), nil
}

func (e *ReadabilityExtractor) doExtract(ctx context.Context, urlStr string) (string, error) {
	reqCtx, cancel := context.WithTimeout(ctx, e.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, urlStr, nil)
	if err != nil {
		return "", fmt.Errorf("%w: failed to create request: %v", ErrInvalidURL, err)
	}
	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := e.client.Do(req)
	if err != nil {
		if errors.Is(reqCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return "", fmt.Errorf("%w: request exceeded %v", ErrTimeout, e.config.Timeout)
		}
		var urlErr *url.Error
		if errors.As(err, &urlErr) && urlErr.Err != nil {
			return "", urlErr.Err
		}
		return "", fmt.Errorf("HTTP request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return "", &retry.HTTPError{StatusCode: resp.StatusCode, Message: resp.Status}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, e.config.MaxBodySize+1))
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}
	if int64(len(body)) > e.config.MaxBodySize {
		return "", fmt.Errorf("%w: response size exceeds limit %d bytes", ErrBodyTooLarge, e.config.MaxBodySize)
	}

	pageURL := resp.Request.URL
	cleaned, err := stripBoilerplate(body)
	if err != nil {
		slog.Debug("boilerplate strip failed, using raw page",
			slog.String("url", urlStr),
			slog.Any("error", err))
		cleaned = string(body)
	}

	article, err := readability.FromReader(strings.NewReader(cleaned), pageURL)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNoContent, err)
	}

	text := strings.TrimSpace(article.TextContent)
	if text == "" {
		return "", fmt.Errorf("%w: %s", ErrNoContent, urlStr)
	}
	return text, nil
}

// isHostFailure counts errors that point at the host being down or slow.
func isHostFailure(err error) bool {
	return errors.Is(err, ErrTimeout) || retry.IsRetryable(err)
}

// hostOf keys the breaker group by host and port. validateURL has already
// accepted urlStr.
func hostOf(urlStr string) string {
	u, err := url.Parse(urlStr)
	if err != nil {
		return urlStr
	}
	return strings.ToLower(u.Host)
}

// stripBoilerplate removes scripts, navigation and ad containers from a page.
func stripBoilerplate(page []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return "", err
	}
	doc.Find(boilerplateSelector).Remove()
	return doc.Html()
}
