// Package unsubscribe serves the link embedded in every digest. A valid token
// soft-deactivates the subscriber it names.
package unsubscribe

import (
	"bytes"
	"context"
	"errors"
	"html/template"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"daily-digest/internal/domain/entity"
	"daily-digest/internal/handler/http/respond"
	tokens "daily-digest/internal/service/unsubscribe"
	"daily-digest/internal/utils/text"
)

// Verifier validates an unsubscribe token and returns the email it was issued for.
type Verifier interface {
	Verify(token string) (string, error)
}

// Store deactivates a subscriber by email.
type Store interface {
	Unsubscribe(ctx context.Context, email string) error
}

// Handler handles GET and POST /unsubscribe?token=...
// POST serves mail clients that implement one-click unsubscribe.
type Handler struct {
	Verifier Verifier
	Store    Store
	AppName  string
}

// Register mounts the handler on r.
func Register(r chi.Router, h Handler) {
	r.Get("/unsubscribe", h.ServeHTTP)
	r.Post("/unsubscribe", h.ServeHTTP)
}

var page = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html lang="en">
<head><meta charset="utf-8"><title>{{.AppName}}</title></head>
<body style="font-family:Helvetica,Arial,sans-serif;max-width:480px;margin:48px auto;color:#1f2933;">
<h1 style="font-size:20px;">{{.Heading}}</h1>
<p>{{.Message}}</p>
</body>
</html>`))

type pageData struct {
	AppName string
	Heading string
	Message string
}

func (h Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		h.render(w, http.StatusBadRequest, "Invalid link", "This unsubscribe link is missing its token.")
		return
	}

	email, err := h.Verifier.Verify(token)
	if err != nil {
		if errors.Is(err, tokens.ErrExpiredToken) {
			h.render(w, http.StatusBadRequest, "Link expired",
				"This unsubscribe link has expired. Use the link in your most recent digest.")
			return
		}
		slog.Debug("unsubscribe token rejected", slog.Any("error", err))
		h.render(w, http.StatusBadRequest, "Invalid link", "This unsubscribe link is not valid.")
		return
	}

	if err := h.Store.Unsubscribe(r.Context(), email); err != nil {
		if errors.Is(err, entity.ErrNotFound) {
			h.render(w, http.StatusNotFound, "Subscription not found",
				"We could not find a subscription for this link.")
			return
		}
		slog.Error("unsubscribe failed",
			slog.String("subscriber", text.HashEmail(email)),
			slog.String("error", respond.SanitizeError(err)))
		h.render(w, http.StatusInternalServerError, "Something went wrong",
			"We could not process your request. Please try again later.")
		return
	}

	slog.Info("subscriber unsubscribed", slog.String("subscriber", text.HashEmail(email)))
	h.render(w, http.StatusOK, "You have been unsubscribed",
		email+" will no longer receive the daily digest.")
}

func (h Handler) render(w http.ResponseWriter, code int, heading, message string) {
	var buf bytes.Buffer
	if err := page.Execute(&buf, pageData{AppName: h.AppName, Heading: heading, Message: message}); err != nil {
		respond.SafeError(w, http.StatusInternalServerError, err)
		return
	}
	respond.HTML(w, code, buf.String())
}
