// Package respond writes HTTP responses for the public endpoints. Error bodies are
// sanitized so internal failures never leak connection strings or credentials.
package respond

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
)

func write(w http.ResponseWriter, code int, contentType string, body []byte) {
	h := w.Header()
	h.Set("Content-Type", contentType)
	h.Set("Cache-Control", "no-store")
	w.WriteHeader(code)
	if _, err := w.Write(body); err != nil {
		slog.Default().Warn("response write failed",
			slog.Int("status_code", code),
			slog.Any("error", err))
	}
}

// JSON encodes v and writes it with code. A nil v writes an empty body.
func JSON(w http.ResponseWriter, code int, v any) {
	var buf bytes.Buffer
	if v != nil {
		if err := json.NewEncoder(&buf).Encode(v); err != nil {
			slog.Default().Error("failed to encode JSON response",
				slog.Int("status_code", code),
				slog.Any("error", err))
			code = http.StatusInternalServerError
			buf.Reset()
			buf.WriteString(`{"error":"internal server error"}` + "\n")
		}
	}
	write(w, code, "application/json", buf.Bytes())
}

// HTML writes a pre-rendered page.
func HTML(w http.ResponseWriter, code int, body string) {
	write(w, code, "text/html; charset=utf-8", []byte(body))
}

// SafeError writes {"error": ...}. For 5xx codes the sanitized error is logged
// and the client only sees a generic message.
func SafeError(w http.ResponseWriter, code int, err error) {
	if err == nil {
		return
	}
	msg := err.Error()
	if code >= http.StatusInternalServerError {
		slog.Default().Error("internal server error",
			slog.Int("code", code),
			slog.String("error", SanitizeError(err)))
		msg = "internal server error"
	}
	JSON(w, code, map[string]string{"error": msg})
}
