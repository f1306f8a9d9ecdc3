package unsubscribe_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"daily-digest/internal/domain/entity"
	"daily-digest/internal/handler/http/unsubscribe"
	tokens "daily-digest/internal/service/unsubscribe"
)

/* ───────────── stubs ───────────── */

type stubStore struct {
	err   error
	calls []string
}

func (s *stubStore) Unsubscribe(_ context.Context, email string) error {
	s.calls = append(s.calls, email)
	return s.err
}

type stubVerifier struct {
	email string
	err   error
}

func (v stubVerifier) Verify(string) (string, error) {
	return v.email, v.err
}

func serve(t *testing.T, h unsubscribe.Handler, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	r := chi.NewRouter()
	unsubscribe.Register(r, h)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(method, target, nil))
	return rr
}

/* ───────────── tests ───────────── */

func TestHandler_Unsubscribes(t *testing.T) {
	signer, err := tokens.NewTokens("0123456789abcdef0123456789abcdef")
	require.NoError(t, err)
	token, err := signer.Sign("reader@example.com")
	require.NoError(t, err)

	store := &stubStore{}
	h := unsubscribe.Handler{Verifier: signer, Store: store, AppName: "AI News Digest"}

	rr := serve(t, h, http.MethodGet, "/unsubscribe?token="+url.QueryEscape(token))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "text/html; charset=utf-8", rr.Header().Get("Content-Type"))
	assert.Contains(t, rr.Body.String(), "You have been unsubscribed")
	assert.Contains(t, rr.Body.String(), "reader@example.com")
	assert.Equal(t, []string{"reader@example.com"}, store.calls)
}

func TestHandler_OneClickPost(t *testing.T) {
	store := &stubStore{}
	h := unsubscribe.Handler{Verifier: stubVerifier{email: "reader@example.com"}, Store: store}

	rr := serve(t, h, http.MethodPost, "/unsubscribe?token=abc")

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, store.calls, 1)
}

func TestHandler_Errors(t *testing.T) {
	tests := []struct {
		name      string
		target    string
		verifier  unsubscribe.Verifier
		storeErr  error
		wantCode  int
		wantText  string
		wantStore bool
	}{
		{
			name:     "missing token",
			target:   "/unsubscribe",
			verifier: stubVerifier{email: "reader@example.com"},
			wantCode: http.StatusBadRequest,
			wantText: "missing its token",
		},
		{
			name:     "invalid token",
			target:   "/unsubscribe?token=garbage",
			verifier: stubVerifier{err: tokens.ErrInvalidToken},
			wantCode: http.StatusBadRequest,
			wantText: "not valid",
		},
		{
			name:     "expired token",
			target:   "/unsubscribe?token=old",
			verifier: stubVerifier{err: tokens.ErrExpiredToken},
			wantCode: http.StatusBadRequest,
			wantText: "expired",
		},
		{
			name:      "unknown subscriber",
			target:    "/unsubscribe?token=abc",
			verifier:  stubVerifier{email: "gone@example.com"},
			storeErr:  &entity.NotFoundError{Entity: "subscriber", Key: "gone@example.com"},
			wantCode:  http.StatusNotFound,
			wantText:  "could not find",
			wantStore: true,
		},
		{
			name:      "store failure",
			target:    "/unsubscribe?token=abc",
			verifier:  stubVerifier{email: "reader@example.com"},
			storeErr:  errors.New("connection refused"),
			wantCode:  http.StatusInternalServerError,
			wantText:  "try again later",
			wantStore: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &stubStore{err: tt.storeErr}
			h := unsubscribe.Handler{Verifier: tt.verifier, Store: store, AppName: "AI News Digest"}

			rr := serve(t, h, http.MethodGet, tt.target)

			assert.Equal(t, tt.wantCode, rr.Code)
			assert.Contains(t, rr.Body.String(), tt.wantText)
			assert.NotContains(t, rr.Body.String(), "connection refused")
			assert.Equal(t, tt.wantStore, len(store.calls) == 1)
		})
	}
}

func TestHandler_ExpiredRealToken(t *testing.T) {
	issued := time.Date(2026, 10, 1, 8, 0, 0, 0, time.UTC)
	signer, err := tokens.NewTokens("0123456789abcdef0123456789abcdef", tokens.WithClock(func() time.Time { return issued }))
	require.NoError(t, err)
	token, err := signer.Sign("reader@example.com")
	require.NoError(t, err)

	verifier, err := tokens.NewTokens("0123456789abcdef0123456789abcdef",
		tokens.WithClock(func() time.Time { return issued.Add(8 * 24 * time.Hour) }))
	require.NoError(t, err)

	store := &stubStore{}
	rr := serve(t, unsubscribe.Handler{Verifier: verifier, Store: store}, http.MethodGet, "/unsubscribe?token="+url.QueryEscape(token))

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "expired")
	assert.Empty(t, store.calls)
}

func TestHandler_EscapesEmail(t *testing.T) {
	h := unsubscribe.Handler{Verifier: stubVerifier{email: `<b>x</b>@example.com`}, Store: &stubStore{}}

	rr := serve(t, h, http.MethodGet, "/unsubscribe?token=abc")

	assert.NotContains(t, rr.Body.String(), "<b>x</b>")
	assert.Contains(t, rr.Body.String(), "&lt;b&gt;")
}
