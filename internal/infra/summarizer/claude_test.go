package summarizer_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"daily-digest/internal/domain/entity"
	"daily-digest/internal/infra/summarizer"
)

func claudeReply(t *testing.T, text string) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"id":            "msg_01",
		"type":          "message",
		"role":          "assistant",
		"model":         "claude-sonnet-4-5-20250929",
		"content":       []map[string]any{{"type": "text", "text": text}},
		"stop_reason":   "end_turn",
		"stop_sequence": nil,
		"usage":         map[string]any{"input_tokens": 100, "output_tokens": 50},
	})
	require.NoError(t, err)
	return body
}

func claudeServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return server
}

func newTestClaude(url string, metrics *stubMetrics) *summarizer.Claude {
	cfg := summarizer.DefaultClaudeConfig()
	cfg.Timeout = 5 * time.Second
	return summarizer.NewClaude("test-key", cfg,
		summarizer.WithBaseURL(url+"/"),
		summarizer.WithRetryConfig(fastRetry()),
		summarizer.WithMetrics(metrics))
}

func TestClaude_Summarize_Success(t *testing.T) {
	var gotPrompt string
	server := claudeServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/v1/messages"), "path %s", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("X-Api-Key"))

		var req struct {
			Messages []struct {
				Content []struct {
					Text string `json:"text"`
				} `json:"content"`
			} `json:"messages"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		gotPrompt = req.Messages[0].Content[0].Text

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(claudeReply(t, "```json\n"+summaryJSON+"\n```"))
	})

	metrics := &stubMetrics{}
	got, err := newTestClaude(server.URL, metrics).Summarize(context.Background(), "The central bank held rates.")
	require.NoError(t, err)

	assert.Equal(t, []string{"Rates held steady", "Inflation eased", "Markets rose"}, got.Bullets)
	assert.Equal(t, "Economy", got.Category)
	assert.Equal(t, 7, got.ImportanceScore)
	assert.Contains(t, gotPrompt, "The central bank held rates.")
	assert.Equal(t, []string{"success"}, metrics.Statuses())
}

func TestClaude_Summarize_RetriesServerErrors(t *testing.T) {
	var calls int32
	server := claudeServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"type":"error","error":{"type":"api_error","message":"boom"}}`))
			return
		}
		_, _ = w.Write(claudeReply(t, summaryJSON))
	})

	got, err := newTestClaude(server.URL, &stubMetrics{}).Summarize(context.Background(), "text")
	require.NoError(t, err)
	assert.Equal(t, 7, got.ImportanceScore)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestClaude_Summarize_ClientErrorNotRetried(t *testing.T) {
	var calls int32
	server := claudeServer(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"authentication_error","message":"invalid x-api-key"}}`))
	})

	_, err := newTestClaude(server.URL, &stubMetrics{}).Summarize(context.Background(), "text")
	require.Error(t, err)

	var extErr *entity.ExternalServiceError
	require.True(t, errors.As(err, &extErr))
	assert.Equal(t, "claude", extErr.Service)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestClaude_Summarize_MalformedReply(t *testing.T) {
	server := claudeServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(claudeReply(t, "Sorry, I can't help with that."))
	})

	metrics := &stubMetrics{}
	_, err := newTestClaude(server.URL, metrics).Summarize(context.Background(), "text")
	require.Error(t, err)
	assert.True(t, errors.Is(err, summarizer.ErrMalformedResponse))
	assert.Equal(t, []string{"malformed"}, metrics.Statuses())
}

func TestClaude_Summarize_Timeout(t *testing.T) {
	server := claudeServer(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})

	cfg := summarizer.DefaultClaudeConfig()
	cfg.Timeout = 100 * time.Millisecond
	c := summarizer.NewClaude("test-key", cfg,
		summarizer.WithBaseURL(server.URL+"/"),
		summarizer.WithRetryConfig(fastRetry()),
		summarizer.WithMetrics(&stubMetrics{}))

	start := time.Now()
	_, err := c.Summarize(context.Background(), "text")
	require.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
}
