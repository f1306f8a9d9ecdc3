package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel/attribute"

	"daily-digest/internal/domain/entity"
	"daily-digest/internal/observability/tracing"
	"daily-digest/internal/usecase/dispatch"
	"daily-digest/internal/utils/text"
)

// Tick statuses reported to Metrics.
const (
	TickIdle      = "idle"
	TickTriggered = "triggered"
	TickError     = "error"
)

// SubscriberLister lists the subscribers that may receive a digest.
type SubscriberLister interface {
	ListEligible(ctx context.Context) ([]*entity.Subscriber, error)
}

// SentChecker reports whether a subscriber already received the digest for a date.
type SentChecker interface {
	HasSentToday(ctx context.Context, subscriberID int64, date time.Time) (bool, error)
}

// Dispatcher runs one dispatch batch.
type Dispatcher interface {
	RunBatch(ctx context.Context, subs []*entity.Subscriber, now time.Time) dispatch.BatchResult
}

// Metrics receives tick-level measurements.
type Metrics interface {
	RecordTick(status string)
	RecordDue(count int)
	RecordBatchDuration(seconds float64)
}

// Heartbeat is told about every completed tick, for the readiness check.
type Heartbeat interface {
	RecordTick(at time.Time)
}

type noopMetrics struct{}

func (noopMetrics) RecordTick(string)           {}
func (noopMetrics) RecordDue(int)               {}
func (noopMetrics) RecordBatchDuration(float64) {}

// Config tunes the scheduler.
type Config struct {
	// Interval between ticks. Default: 60s
	Interval time.Duration
	// DueOnly passes only the subscribers whose window is open to the batch.
	// Otherwise every not-yet-sent eligible subscriber rides along.
	DueOnly bool
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithMetrics sets the tick metrics recorder.
func WithMetrics(m Metrics) Option {
	return func(s *Scheduler) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithHeartbeat sets the tick heartbeat.
func WithHeartbeat(h Heartbeat) Option {
	return func(s *Scheduler) { s.heartbeat = h }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// WithLogger sets the logger. Default: slog.Default()
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) { s.logger = l }
}

// Scheduler polls for due subscribers and triggers dispatch batches.
// Only one scheduler may run against a given store.
type Scheduler struct {
	subscribers SubscriberLister
	ledger      SentChecker
	dispatcher  Dispatcher
	cfg         Config
	metrics     Metrics
	heartbeat   Heartbeat
	now         func() time.Time
	logger      *slog.Logger

	// mu serializes ticks started through Tick and DispatchPending.
	mu sync.Mutex
}

// NewScheduler wires a Scheduler.
func NewScheduler(subscribers SubscriberLister, ledger SentChecker, dispatcher Dispatcher, cfg Config, opts ...Option) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	s := &Scheduler{
		subscribers: subscribers,
		ledger:      ledger,
		dispatcher:  dispatcher,
		cfg:         cfg,
		metrics:     noopMetrics{},
		now:         time.Now,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// TickResult describes one tick.
type TickResult struct {
	Eligible int
	Pending  int
	Due      int
	// Batch is nil when no batch ran.
	Batch *dispatch.BatchResult
}

// Tick lists eligible subscribers, finds those not yet sent today and those whose
// window is open, and runs one batch if any is due. Per-subscriber problems
// (unknown zone, ledger read failure) skip that subscriber for this tick.
func (s *Scheduler) Tick(ctx context.Context) (TickResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	defer s.beat(now)

	ctx, span := tracing.StartSpan(ctx, "scheduler.tick")
	defer span.End()

	pending, due, eligible, err := s.scan(ctx, now)
	if err != nil {
		s.metrics.RecordTick(TickError)
		span.RecordError(err)
		return TickResult{}, err
	}
	result := TickResult{Eligible: eligible, Pending: len(pending), Due: len(due)}
	s.metrics.RecordDue(len(due))
	span.SetAttributes(attribute.Int("due", len(due)), attribute.Int("pending", len(pending)))

	if len(due) == 0 {
		s.metrics.RecordTick(TickIdle)
		s.logger.Debug("scheduler tick idle",
			slog.Int("eligible", eligible),
			slog.Int("pending", len(pending)))
		return result, nil
	}

	batch := pending
	if s.cfg.DueOnly {
		batch = due
	}
	s.metrics.RecordTick(TickTriggered)
	s.logger.Info("delivery window open, dispatching",
		slog.Int("due", len(due)),
		slog.Int("batch", len(batch)),
		slog.Bool("due_only", s.cfg.DueOnly))

	br := s.dispatcher.RunBatch(ctx, batch, now)
	s.metrics.RecordBatchDuration(br.Duration.Seconds())
	result.Batch = &br
	return result, nil
}

// DispatchPending runs one batch over every eligible subscriber not yet sent
// today, ignoring delivery windows. It backs the one-shot CLI run.
func (s *Scheduler) DispatchPending(ctx context.Context) (TickResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	pending, due, eligible, err := s.scan(ctx, now)
	if err != nil {
		return TickResult{}, err
	}
	result := TickResult{Eligible: eligible, Pending: len(pending), Due: len(due)}
	if len(pending) == 0 {
		return result, nil
	}
	br := s.dispatcher.RunBatch(ctx, pending, now)
	s.metrics.RecordBatchDuration(br.Duration.Seconds())
	result.Batch = &br
	return result, nil
}

func (s *Scheduler) scan(ctx context.Context, now time.Time) (pending, due []*entity.Subscriber, eligible int, err error) {
	subs, err := s.subscribers.ListEligible(ctx)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("list eligible subscribers: %w", err)
	}

	for _, sub := range subs {
		if !sub.Eligible() {
			continue
		}
		eligible++

		date, err := sub.LocalDate(now)
		if err != nil {
			s.logger.Warn("skipping subscriber",
				slog.Int64("subscriber_id", sub.ID),
				slog.Any("error", err))
			continue
		}
		sent, err := s.ledger.HasSentToday(ctx, sub.ID, date)
		if err != nil {
			s.logger.Warn("ledger check failed, skipping subscriber this tick",
				slog.Int64("subscriber_id", sub.ID),
				slog.String("email_hash", text.HashEmail(sub.Email)),
				slog.Any("error", err))
			continue
		}
		if sent {
			continue
		}
		pending = append(pending, sub)

		isDue, err := IsDue(sub.PreferredTime, sub.TimeZone, now)
		if err != nil {
			s.logger.Warn("skipping subscriber",
				slog.Int64("subscriber_id", sub.ID),
				slog.Any("error", err))
			continue
		}
		if isDue {
			due = append(due, sub)
		}
	}
	return pending, due, eligible, nil
}

func (s *Scheduler) beat(at time.Time) {
	if s.heartbeat != nil {
		s.heartbeat.RecordTick(at)
	}
}

// Run ticks once immediately and then every Interval until ctx is cancelled.
// A tick that overruns the interval makes the next one skip rather than queue,
// and a panicking tick is logged and recovered. On cancellation Run waits for
// the running tick, whose batch stops at the next subscriber boundary.
func (s *Scheduler) Run(ctx context.Context) error {
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(s.logger.Handler(), slog.LevelWarn))
	job := cron.NewChain(
		cron.Recover(cronLogger),
		cron.SkipIfStillRunning(cronLogger),
	).Then(cron.FuncJob(func() { s.runTick(ctx) }))

	c := cron.New()
	c.Schedule(cron.Every(s.cfg.Interval), job)

	s.logger.Info("scheduler started",
		slog.Duration("interval", s.cfg.Interval),
		slog.Bool("due_only", s.cfg.DueOnly))

	job.Run()
	c.Start()

	<-ctx.Done()
	s.logger.Info("scheduler stopping")
	<-c.Stop().Done()
	s.logger.Info("scheduler stopped")
	return nil
}

func (s *Scheduler) runTick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	res, err := s.Tick(ctx)
	if err != nil {
		s.logger.Error("scheduler tick failed", slog.Any("error", err))
		return
	}
	if res.Batch != nil {
		s.logger.Info("scheduler tick dispatched",
			slog.String("run_id", res.Batch.RunID),
			slog.String("outcomes", res.Batch.String()),
			slog.Duration("duration", res.Batch.Duration))
	}
}
