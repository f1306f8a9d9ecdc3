package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"daily-digest/internal/domain/entity"
	"daily-digest/internal/observability/logging"
	"daily-digest/internal/observability/metrics"
	"daily-digest/internal/observability/tracing"
	"daily-digest/internal/repository"
	"daily-digest/internal/resilience/retry"
	"daily-digest/internal/usecase/assemble"
	"daily-digest/internal/utils/text"
)

// Provider is stored on every ledger record written by the SMTP transport.
const Provider = "smtp"

const maxErrorMessageRunes = 500

// Aggregator produces the ranked articles for a set of topics.
type Aggregator interface {
	Aggregate(ctx context.Context, topics []string) ([]entity.SummarizedArticle, error)
}

// Assembler builds and renders a subscriber's digest.
type Assembler interface {
	Build(sub *entity.Subscriber, articles []entity.SummarizedArticle, date time.Time) entity.Digest
	Render(ctx context.Context, digest *entity.Digest) (assemble.Payload, error)
}

// Mailer delivers one HTML message and returns the transport's message ID.
type Mailer interface {
	Send(ctx context.Context, to, subject, html string) (string, error)
}

// Metrics receives per-subscriber outcomes.
type Metrics interface {
	RecordOutcome(outcome string)
}

type noopMetrics struct{}

func (noopMetrics) RecordOutcome(string) {}

// Config tunes the orchestrator.
type Config struct {
	// MaxSkipsPerDay bounds skipped records per subscriber and date. 0 disables the bound.
	MaxSkipsPerDay int
	// SendTimeout bounds one Mailer.Send call. Default: 30s
	SendTimeout time.Duration
	// LedgerRetry governs ledger writes.
	LedgerRetry retry.Config
}

// Option configures a Service.
type Option func(*Service)

// WithMetrics sets the outcome recorder.
func WithMetrics(m Metrics) Option {
	return func(s *Service) {
		if m != nil {
			s.metrics = m
		}
	}
}

// Service is the dispatch orchestrator.
type Service struct {
	ledger     repository.DispatchRepository
	aggregator Aggregator
	assembler  Assembler
	mailer     Mailer
	metrics    Metrics
	cfg        Config
}

// NewService wires the orchestrator.
func NewService(ledger repository.DispatchRepository, aggregator Aggregator, assembler Assembler, mailer Mailer, cfg Config, opts ...Option) *Service {
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 30 * time.Second
	}
	if cfg.LedgerRetry.MaxAttempts <= 0 {
		cfg.LedgerRetry = retry.LedgerConfig()
	}
	s := &Service{
		ledger:     ledger,
		aggregator: aggregator,
		assembler:  assembler,
		mailer:     mailer,
		metrics:    noopMetrics{},
		cfg:        cfg,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RunBatch dispatches to subs one at a time. Each subscriber's digest date is the
// calendar date at now in the subscriber's own time zone. Errors and panics are
// confined to the subscriber that raised them; cancellation of ctx stops the
// batch between subscribers.
func (s *Service) RunBatch(ctx context.Context, subs []*entity.Subscriber, now time.Time) BatchResult {
	runID := uuid.NewString()
	logger := logging.FromContext(ctx).With(slog.String("run_id", runID))
	ctx = logging.WithLogger(ctx, logger)

	ctx, span := tracing.StartSpan(ctx, "dispatch.batch",
		attribute.String("run_id", runID),
		attribute.Int("subscribers", len(subs)))
	defer span.End()

	start := time.Now()
	result := BatchResult{RunID: runID, Total: len(subs), Outcomes: make(map[Outcome]int)}
	logger.Info("dispatch batch started", slog.Int("subscribers", len(subs)))

	for _, sub := range subs {
		if ctx.Err() != nil {
			result.Interrupted = true
			logger.Warn("dispatch batch interrupted",
				slog.Int("processed", result.Processed),
				slog.Int("remaining", len(subs)-result.Processed))
			break
		}

		outcome, err := s.dispatchSafely(ctx, sub, now)
		result.Processed++
		result.Outcomes[outcome]++
		s.metrics.RecordOutcome(string(outcome))

		attrs := []any{
			slog.Int64("subscriber_id", sub.ID),
			slog.String("email_hash", text.HashEmail(sub.Email)),
			slog.String("outcome", string(outcome)),
		}
		if err != nil {
			logger.Error("dispatch failed", append(attrs, slog.Any("error", err))...)
			continue
		}
		logger.Info("dispatch completed", attrs...)
	}

	result.Duration = time.Since(start)
	span.SetAttributes(attribute.Int("sent", result.Count(OutcomeSent)), attribute.Int("errors", result.Count(OutcomeError)))
	logger.Info("dispatch batch finished",
		slog.String("outcomes", result.String()),
		slog.Int("processed", result.Processed),
		slog.Duration("duration", result.Duration))
	return result
}

func (s *Service) dispatchSafely(ctx context.Context, sub *entity.Subscriber, now time.Time) (outcome Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			logging.FromContext(ctx).Error("panic during dispatch",
				slog.Int64("subscriber_id", sub.ID),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())))
			outcome, err = OutcomeError, fmt.Errorf("panic: %v", r)
		}
	}()

	date, err := sub.LocalDate(now)
	if err != nil {
		return OutcomeError, err
	}
	return s.DispatchOne(ctx, sub, date)
}

// DispatchOne runs the full pipeline for one subscriber and date.
//
// A nil error accompanies every expected terminal state, including a failed send.
// The error is non-nil only with OutcomeError.
func (s *Service) DispatchOne(ctx context.Context, sub *entity.Subscriber, date time.Time) (Outcome, error) {
	ctx, span := tracing.StartSpan(ctx, "dispatch.subscriber",
		attribute.Int64("subscriber.id", sub.ID),
		attribute.String("digest.date", date.Format(time.DateOnly)))
	defer span.End()

	outcome, err := s.dispatch(ctx, sub, date)
	span.SetAttributes(attribute.String("outcome", string(outcome)))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "dispatch failed")
	}
	return outcome, err
}

func (s *Service) dispatch(ctx context.Context, sub *entity.Subscriber, date time.Time) (Outcome, error) {
	logger := logging.FromContext(ctx).With(
		slog.Int64("subscriber_id", sub.ID),
		slog.String("email_hash", text.HashEmail(sub.Email)))

	sent, err := s.ledger.HasSentToday(ctx, sub.ID, date)
	if err != nil {
		return OutcomeError, fmt.Errorf("check ledger: %w", err)
	}
	if sent {
		return OutcomeAlreadySent, nil
	}

	if s.cfg.MaxSkipsPerDay > 0 {
		skips, err := s.ledger.CountAttempts(ctx, sub.ID, date, entity.DispatchStatusSkipped)
		if err != nil {
			return OutcomeError, fmt.Errorf("count skipped attempts: %w", err)
		}
		if skips >= s.cfg.MaxSkipsPerDay {
			return OutcomeSkipLimited, nil
		}
	}

	articles, err := s.aggregator.Aggregate(ctx, sub.Topics)
	if err != nil {
		return OutcomeError, fmt.Errorf("aggregate: %w", err)
	}

	digest := s.assembler.Build(sub, articles, date)
	metrics.RecordDigestSize(digest.Total())
	if digest.Empty() {
		logger.Info("no articles for subscribed topics",
			slog.Any("topics", sub.Topics),
			slog.Int("aggregated", len(articles)))
		if err := s.record(ctx, repository.DispatchAttempt{
			SubscriberID: sub.ID,
			DigestDate:   date,
			Status:       entity.DispatchStatusSkipped,
			Provider:     Provider,
			ErrorMessage: "no articles for subscribed topics",
		}); err != nil {
			return OutcomeError, fmt.Errorf("record skipped attempt: %w", err)
		}
		return OutcomeSkipped, nil
	}

	payload, err := s.assembler.Render(ctx, &digest)
	if err != nil {
		return OutcomeError, fmt.Errorf("render digest: %w", err)
	}

	sendCtx, cancel := context.WithTimeout(ctx, s.cfg.SendTimeout)
	messageID, sendErr := s.mailer.Send(sendCtx, sub.Email, payload.Subject, payload.HTML)
	cancel()

	if sendErr != nil {
		logger.Warn("digest send failed", slog.Any("error", sendErr))
		if err := s.record(ctx, repository.DispatchAttempt{
			SubscriberID: sub.ID,
			DigestDate:   date,
			Subject:      payload.Subject,
			Status:       entity.DispatchStatusFailed,
			Provider:     Provider,
			ErrorMessage: text.Ellipsize("SMTP send failed: "+sendErr.Error(), maxErrorMessageRunes),
		}); err != nil {
			return OutcomeError, fmt.Errorf("record failed attempt: %w", err)
		}
		return OutcomeSendFailed, nil
	}

	err = s.record(ctx, repository.DispatchAttempt{
		SubscriberID: sub.ID,
		DigestDate:   date,
		Subject:      payload.Subject,
		Status:       entity.DispatchStatusSent,
		Provider:     Provider,
		TransportID:  messageID,
	})
	switch {
	case errors.Is(err, repository.ErrAlreadySent):
		logger.Warn("duplicate send detected, ledger already holds a sent record",
			slog.String("transport_id", messageID))
		return OutcomeAlreadySent, nil
	case err != nil:
		logger.Error("digest delivered but not recorded",
			slog.String("transport_id", messageID),
			slog.Any("error", err))
		return OutcomeError, fmt.Errorf("record sent attempt: %w", err)
	}

	logger.Info("digest sent",
		slog.String("transport_id", messageID),
		slog.Int("articles", digest.Total()),
		slog.Int("sections", len(digest.Sections)))
	return OutcomeSent, nil
}

// record appends to the ledger with retries. The write is detached from
// cancellation so a shutdown signal cannot drop the record of a completed send.
func (s *Service) record(ctx context.Context, attempt repository.DispatchAttempt) error {
	ctx = context.WithoutCancel(ctx)
	return retry.WithBackoff(ctx, s.cfg.LedgerRetry, func() error {
		_, err := s.ledger.RecordAttempt(ctx, attempt)
		return err
	})
}
