package notifier

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"daily-digest/internal/utils/text"
)

// LogMailer records messages in the log instead of sending them.
// It stands in for SMTP in development when no relay credentials are configured.
type LogMailer struct {
	logger *slog.Logger
}

// NewLogMailer creates a LogMailer writing to logger.
func NewLogMailer(logger *slog.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

// Send logs the message and returns a synthetic message id.
func (l *LogMailer) Send(ctx context.Context, to, subject, html string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	id := "log-" + uuid.New().String()
	l.logger.InfoContext(ctx, "email not sent (log transport)",
		slog.String("recipient", text.HashEmail(to)),
		slog.String("subject", subject),
		slog.Int("html_bytes", len(html)),
		slog.String("message_id", id))
	return id, nil
}
