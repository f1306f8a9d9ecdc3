// Package notifier delivers rendered digests by email. SMTPMailer sends through a
// relay with go-mail; LogMailer only logs and is meant for development.
package notifier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"github.com/wneessen/go-mail"

	"daily-digest/internal/resilience/circuitbreaker"
	"daily-digest/internal/utils/text"
)

// SMTPConfig holds relay settings.
type SMTPConfig struct {
	Host     string
	Port     int
	UseTLS   bool
	Username string
	Password string
	From     string
	ReplyTo  string
	// Timeout bounds one delivery including the dial. Default: 30s
	Timeout time.Duration
}

// sender is the part of *mail.Client used for delivery.
type sender interface {
	DialAndSendWithContext(ctx context.Context, messages ...*mail.Msg) error
}

// SMTPMailer sends one HTML message per call. It never retries: a timeout after the
// relay accepted the message would otherwise deliver the digest twice.
type SMTPMailer struct {
	cfg            SMTPConfig
	client         sender
	limiter        *RateLimiter
	circuitBreaker *circuitbreaker.CircuitBreaker
}

// NewSMTPMailer builds the go-mail client. limiter may be nil.
func NewSMTPMailer(cfg SMTPConfig, limiter *RateLimiter) (*SMTPMailer, error) {
	if cfg.Host == "" {
		return nil, errors.New("smtp host is required")
	}
	if cfg.From == "" {
		return nil, errors.New("smtp from address is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	opts := []mail.Option{
		mail.WithPort(cfg.Port),
		mail.WithTimeout(cfg.Timeout),
	}
	if cfg.UseTLS {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
	} else {
		opts = append(opts, mail.WithTLSPolicy(mail.NoTLS))
	}
	if cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password))
	}

	client, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("NewSMTPMailer: %w", err)
	}

	return newSMTPMailer(cfg, client, limiter), nil
}

func newSMTPMailer(cfg SMTPConfig, client sender, limiter *RateLimiter) *SMTPMailer {
	return &SMTPMailer{
		cfg:            cfg,
		client:         client,
		limiter:        limiter,
		circuitBreaker: circuitbreaker.New(circuitbreaker.SMTPConfig()),
	}
}

// Send delivers html to a single recipient and returns the Message-ID.
func (m *SMTPMailer) Send(ctx context.Context, to, subject, html string) (string, error) {
	msg, err := m.buildMessage(to, subject, html)
	if err != nil {
		return "", err
	}

	if m.limiter != nil {
		if err := m.limiter.Allow(ctx); err != nil {
			return "", fmt.Errorf("rate limit wait: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, m.cfg.Timeout)
	defer cancel()

	start := time.Now()
	_, err = m.circuitBreaker.Execute(func() (interface{}, error) {
		return nil, m.client.DialAndSendWithContext(ctx, msg)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) {
			slog.Warn("smtp circuit breaker open, message not sent",
				slog.String("service", "smtp"),
				slog.String("recipient", text.HashEmail(to)))
		}
		return "", err
	}

	messageID := messageIDOf(msg)
	slog.InfoContext(ctx, "email sent",
		slog.String("recipient", text.HashEmail(to)),
		slog.String("message_id", messageID),
		slog.Duration("duration", time.Since(start)))
	return messageID, nil
}

func (m *SMTPMailer) buildMessage(to, subject, html string) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.From(m.cfg.From); err != nil {
		return nil, fmt.Errorf("invalid from address: %w", err)
	}
	if err := msg.To(to); err != nil {
		return nil, fmt.Errorf("invalid recipient address: %w", err)
	}
	if m.cfg.ReplyTo != "" {
		if err := msg.ReplyTo(m.cfg.ReplyTo); err != nil {
			return nil, fmt.Errorf("invalid reply-to address: %w", err)
		}
	}
	msg.Subject(subject)
	msg.SetDate()
	msg.SetMessageID()
	msg.SetBodyString(mail.TypeTextHTML, html)
	return msg, nil
}

// messageIDOf returns the generated Message-ID without angle brackets.
func messageIDOf(msg *mail.Msg) string {
	ids := msg.GetGenHeader(mail.HeaderMessageID)
	if len(ids) == 0 {
		return ""
	}
	return strings.Trim(ids[0], "<>")
}
