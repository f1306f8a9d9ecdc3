package dispatch_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"daily-digest/internal/domain/entity"
	"daily-digest/internal/infra/renderer"
	"daily-digest/internal/repository"
	"daily-digest/internal/resilience/retry"
	"daily-digest/internal/service/unsubscribe"
	"daily-digest/internal/usecase/assemble"
	"daily-digest/internal/usecase/dispatch"
)

/* ───────────── stubs ───────────── */

// memLedger enforces one sent record per subscriber and date, like the
// partial unique index in Postgres.
type memLedger struct {
	mu          sync.Mutex
	records     []*entity.DispatchRecord
	hasSentErr  error
	recordErr   error
	forceUnsent bool
}

func (l *memLedger) HasSentToday(_ context.Context, subscriberID int64, date time.Time) (bool, error) {
	if l.hasSentErr != nil {
		return false, l.hasSentErr
	}
	if l.forceUnsent {
		return false, nil
	}
	n, _ := l.CountAttempts(context.Background(), subscriberID, date, entity.DispatchStatusSent)
	return n > 0, nil
}

func (l *memLedger) RecordAttempt(_ context.Context, a repository.DispatchAttempt) (*entity.DispatchRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.recordErr != nil {
		return nil, l.recordErr
	}
	if a.Status == entity.DispatchStatusSent {
		for _, r := range l.records {
			if r.SubscriberID == a.SubscriberID && r.DigestDate.Equal(a.DigestDate) && r.Status == entity.DispatchStatusSent {
				return nil, repository.ErrAlreadySent
			}
		}
	}
	rec := &entity.DispatchRecord{
		ID:           int64(len(l.records) + 1),
		SubscriberID: a.SubscriberID,
		DigestDate:   a.DigestDate,
		Subject:      a.Subject,
		Status:       a.Status,
		Provider:     a.Provider,
		TransportID:  a.TransportID,
		ErrorMessage: a.ErrorMessage,
		CreatedAt:    time.Now(),
	}
	l.records = append(l.records, rec)
	return rec, nil
}

func (l *memLedger) CountAttempts(_ context.Context, subscriberID int64, date time.Time, status entity.DispatchStatus) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, r := range l.records {
		if r.SubscriberID == subscriberID && r.DigestDate.Equal(date) && r.Status == status {
			n++
		}
	}
	return n, nil
}

func (l *memLedger) ListByDate(_ context.Context, date time.Time) ([]*entity.DispatchRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []*entity.DispatchRecord
	for _, r := range l.records {
		if r.DigestDate.Equal(date) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (l *memLedger) Search(_ context.Context, f repository.DispatchFilter) ([]*entity.DispatchRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []*entity.DispatchRecord
	for i := len(l.records) - 1; i >= 0; i-- {
		r := l.records[i]
		if (f.SubscriberID == 0 || r.SubscriberID == f.SubscriberID) &&
			(f.DigestDate.IsZero() || r.DigestDate.Equal(f.DigestDate)) &&
			(f.Status == "" || r.Status == f.Status) {
			out = append(out, r)
		}
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (l *memLedger) withStatus(status entity.DispatchStatus) []*entity.DispatchRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []*entity.DispatchRecord
	for _, r := range l.records {
		if r.Status == status {
			out = append(out, r)
		}
	}
	return out
}

type stubAggregator struct {
	fn    func(topics []string) ([]entity.SummarizedArticle, error)
	calls int
}

func (a *stubAggregator) Aggregate(_ context.Context, topics []string) ([]entity.SummarizedArticle, error) {
	a.calls++
	return a.fn(topics)
}

type sentMail struct {
	to, subject, html string
	hadDeadline       bool
}

type stubMailer struct {
	mu   sync.Mutex
	sent []sentMail
	fail map[string]error
}

func (m *stubMailer) Send(ctx context.Context, to, subject, html string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail[to]; err != nil {
		return "", err
	}
	_, ok := ctx.Deadline()
	m.sent = append(m.sent, sentMail{to: to, subject: subject, html: html, hadDeadline: ok})
	return fmt.Sprintf("<%d.%s@digest.example.com>", len(m.sent), strings.SplitN(to, "@", 2)[0]), nil
}

// spyAssembler records the digests built by the real assembler.
type spyAssembler struct {
	*assemble.Service
	built []entity.Digest
}

func (s *spyAssembler) Build(sub *entity.Subscriber, articles []entity.SummarizedArticle, date time.Time) entity.Digest {
	d := s.Service.Build(sub, articles, date)
	s.built = append(s.built, d)
	return d
}

type outcomeCounter struct {
	counts map[string]int
}

func (c *outcomeCounter) RecordOutcome(outcome string) {
	if c.counts == nil {
		c.counts = make(map[string]int)
	}
	c.counts[outcome]++
}

/* ───────────── fixtures ───────────── */

func techArticles(n int) []entity.SummarizedArticle {
	out := make([]entity.SummarizedArticle, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, entity.SummarizedArticle{
			RawArticle: entity.RawArticle{
				Title:  fmt.Sprintf("Technology headline %d", i+1),
				URL:    fmt.Sprintf("https://news.example.com/tech/%d", i+1),
				Source: "The Hindu",
				Topic:  "Technology",
			},
			Summary: entity.Summary{Bullets: []string{"one", "two", "three"}, Summary: "summary", Category: "Tech", ImportanceScore: 6},
		})
	}
	return out
}

func subscriber(id int64, email string, topics ...string) *entity.Subscriber {
	return &entity.Subscriber{
		ID:            id,
		Email:         email,
		Topics:        topics,
		PreferredTime: "09:00",
		TimeZone:      "Asia/Kolkata",
		Active:        true,
		Verified:      true,
	}
}

// 09:00 in Kolkata on 19 Oct 2026.
var nineInKolkata = time.Date(2026, 10, 19, 3, 30, 0, 0, time.UTC)

var digestDay = time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)

func newAssembler(t *testing.T) *spyAssembler {
	t.Helper()
	tokens, err := unsubscribe.NewTokens("test-secret-key-0123456789")
	require.NoError(t, err)
	html, err := renderer.NewHTMLRenderer()
	require.NoError(t, err)
	cfg := assemble.DefaultConfig()
	cfg.BaseURL = "https://digest.example.com"
	return &spyAssembler{Service: assemble.NewService(cfg, tokens, html)}
}

func fastLedgerRetry() retry.Config {
	return retry.Config{MaxAttempts: 1, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1}
}

type harness struct {
	ledger     *memLedger
	aggregator *stubAggregator
	assembler  *spyAssembler
	mailer     *stubMailer
	metrics    *outcomeCounter
	svc        *dispatch.Service
}

func newHarness(t *testing.T, cfg dispatch.Config, articles func(topics []string) ([]entity.SummarizedArticle, error)) *harness {
	t.Helper()
	h := &harness{
		ledger:     &memLedger{},
		aggregator: &stubAggregator{fn: articles},
		assembler:  newAssembler(t),
		mailer:     &stubMailer{},
		metrics:    &outcomeCounter{},
	}
	if cfg.LedgerRetry.MaxAttempts == 0 {
		cfg.LedgerRetry = fastLedgerRetry()
	}
	h.svc = dispatch.NewService(h.ledger, h.aggregator, h.assembler, h.mailer, cfg, dispatch.WithMetrics(h.metrics))
	return h
}

func threeTechArticles([]string) ([]entity.SummarizedArticle, error) {
	return techArticles(3), nil
}

/* ───────────── end to end ───────────── */

func TestRunBatch_EndToEnd(t *testing.T) {
	h := newHarness(t, dispatch.Config{}, threeTechArticles)
	sub := subscriber(1, "user@example.com", "Technology")

	result := h.svc.RunBatch(context.Background(), []*entity.Subscriber{sub}, nineInKolkata)

	assert.Equal(t, 1, result.Count(dispatch.OutcomeSent))
	assert.Equal(t, 1, result.Processed)
	assert.False(t, result.Interrupted)
	assert.NotEmpty(t, result.RunID)

	require.Len(t, h.assembler.built, 1)
	digest := h.assembler.built[0]
	require.Len(t, digest.Sections, 1)
	assert.Equal(t, "Technology", digest.Sections[0].Topic)
	assert.Len(t, digest.Sections[0].Articles, 3)
	assert.Equal(t, digestDay, digest.Date)

	require.Len(t, h.mailer.sent, 1)
	mail := h.mailer.sent[0]
	assert.Equal(t, "user@example.com", mail.to)
	assert.Equal(t, "🗞️ AI News Digest — Daily News Digest", mail.subject)
	assert.True(t, mail.hadDeadline)
	for i := 1; i <= 3; i++ {
		assert.Contains(t, mail.html, fmt.Sprintf("Technology headline %d", i))
	}
	assert.Contains(t, mail.html, "https://digest.example.com/unsubscribe?token=")

	sent := h.ledger.withStatus(entity.DispatchStatusSent)
	require.Len(t, sent, 1)
	assert.Equal(t, int64(1), sent[0].SubscriberID)
	assert.Equal(t, digestDay, sent[0].DigestDate)
	assert.Equal(t, dispatch.Provider, sent[0].Provider)
	assert.Equal(t, "<1.user@digest.example.com>", sent[0].TransportID)
	assert.Equal(t, mail.subject, sent[0].Subject)

	assert.Equal(t, map[string]int{"sent": 1}, h.metrics.counts)
}

/* ───────────── at most one sent ───────────── */

func TestRunBatch_AtMostOneSentPerDay(t *testing.T) {
	h := newHarness(t, dispatch.Config{}, threeTechArticles)
	subs := []*entity.Subscriber{subscriber(1, "user@example.com", "Technology")}

	first := h.svc.RunBatch(context.Background(), subs, nineInKolkata)
	second := h.svc.RunBatch(context.Background(), subs, nineInKolkata.Add(time.Hour))

	assert.Equal(t, 1, first.Count(dispatch.OutcomeSent))
	assert.Equal(t, 1, second.Count(dispatch.OutcomeAlreadySent))
	assert.Len(t, h.mailer.sent, 1)
	assert.Len(t, h.ledger.withStatus(entity.DispatchStatusSent), 1)
	assert.Equal(t, 1, h.aggregator.calls, "the ledger check short-circuits aggregation")
}

func TestRunBatch_NextLocalDaySendsAgain(t *testing.T) {
	h := newHarness(t, dispatch.Config{}, threeTechArticles)
	subs := []*entity.Subscriber{subscriber(1, "user@example.com", "Technology")}

	h.svc.RunBatch(context.Background(), subs, nineInKolkata)
	result := h.svc.RunBatch(context.Background(), subs, nineInKolkata.Add(24*time.Hour))

	assert.Equal(t, 1, result.Count(dispatch.OutcomeSent))
	assert.Len(t, h.ledger.withStatus(entity.DispatchStatusSent), 2)
}

func TestDispatchOne_LostRaceIsAlreadySent(t *testing.T) {
	h := newHarness(t, dispatch.Config{}, threeTechArticles)
	sub := subscriber(1, "user@example.com", "Technology")

	// another worker already claimed the slot, but this one read the ledger first
	_, err := h.ledger.RecordAttempt(context.Background(), repository.DispatchAttempt{
		SubscriberID: 1, DigestDate: digestDay, Status: entity.DispatchStatusSent, Provider: "smtp",
	})
	require.NoError(t, err)
	h.ledger.forceUnsent = true

	outcome, err := h.svc.DispatchOne(context.Background(), sub, digestDay)

	require.NoError(t, err)
	assert.Equal(t, dispatch.OutcomeAlreadySent, outcome)
	assert.Len(t, h.ledger.withStatus(entity.DispatchStatusSent), 1)
}

/* ───────────── isolation ───────────── */

func TestRunBatch_IsolatesFailures(t *testing.T) {
	h := newHarness(t, dispatch.Config{}, func(topics []string) ([]entity.SummarizedArticle, error) {
		if len(topics) == 1 && topics[0] == "Business" {
			panic("feed parser exploded")
		}
		if len(topics) == 1 && topics[0] == "Politics" {
			return nil, errors.New("all feeds failed")
		}
		return techArticles(2), nil
	})
	h.mailer.fail = map[string]error{"bounce@example.com": errors.New("550 mailbox unavailable")}

	subs := []*entity.Subscriber{
		subscriber(1, "bounce@example.com", "Technology"),
		subscriber(2, "panic@example.com", "Business"),
		subscriber(3, "nofeeds@example.com", "Politics"),
		subscriber(4, "ok@example.com", "Technology"),
	}

	result := h.svc.RunBatch(context.Background(), subs, nineInKolkata)

	assert.Equal(t, 4, result.Processed)
	assert.Equal(t, 1, result.Count(dispatch.OutcomeSendFailed))
	assert.Equal(t, 2, result.Count(dispatch.OutcomeError))
	assert.Equal(t, 1, result.Count(dispatch.OutcomeSent))

	require.Len(t, h.mailer.sent, 1)
	assert.Equal(t, "ok@example.com", h.mailer.sent[0].to)

	failed := h.ledger.withStatus(entity.DispatchStatusFailed)
	require.Len(t, failed, 1)
	assert.Equal(t, int64(1), failed[0].SubscriberID)
	assert.Equal(t, "SMTP send failed: 550 mailbox unavailable", failed[0].ErrorMessage)
	assert.NotEmpty(t, failed[0].Subject)

	assert.Len(t, h.ledger.records, 2, "aggregation failures write nothing")
	assert.Equal(t, map[string]int{"send_failed": 1, "error": 2, "sent": 1}, h.metrics.counts)
}

func TestRunBatch_InvalidTimeZoneOnlyAffectsSubscriber(t *testing.T) {
	h := newHarness(t, dispatch.Config{}, threeTechArticles)
	broken := subscriber(1, "broken@example.com", "Technology")
	broken.TimeZone = "Nowhere/City"

	result := h.svc.RunBatch(context.Background(), []*entity.Subscriber{broken, subscriber(2, "ok@example.com", "Technology")}, nineInKolkata)

	assert.Equal(t, 1, result.Count(dispatch.OutcomeError))
	assert.Equal(t, 1, result.Count(dispatch.OutcomeSent))
}

func TestRunBatch_StopsWhenCancelled(t *testing.T) {
	h := newHarness(t, dispatch.Config{}, threeTechArticles)
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	h.aggregator.fn = func([]string) ([]entity.SummarizedArticle, error) {
		calls++
		cancel()
		return techArticles(1), nil
	}

	subs := []*entity.Subscriber{
		subscriber(1, "a@example.com", "Technology"),
		subscriber(2, "b@example.com", "Technology"),
		subscriber(3, "c@example.com", "Technology"),
	}
	result := h.svc.RunBatch(ctx, subs, nineInKolkata)

	assert.True(t, result.Interrupted)
	assert.Equal(t, 1, result.Processed)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, result.Count(dispatch.OutcomeError), "the in-flight subscriber stops before sending")
	assert.Empty(t, h.mailer.sent)
}

/* ───────────── skipped ───────────── */

func TestDispatchOne_NoMatchingArticlesIsSkipped(t *testing.T) {
	h := newHarness(t, dispatch.Config{}, func([]string) ([]entity.SummarizedArticle, error) {
		a := techArticles(2)
		for i := range a {
			a[i].Topic = "Sports"
		}
		return a, nil
	})
	sub := subscriber(1, "user@example.com", "Technology")

	outcome, err := h.svc.DispatchOne(context.Background(), sub, digestDay)

	require.NoError(t, err)
	assert.Equal(t, dispatch.OutcomeSkipped, outcome)
	assert.Empty(t, h.mailer.sent)

	skipped := h.ledger.withStatus(entity.DispatchStatusSkipped)
	require.Len(t, skipped, 1)
	assert.Equal(t, "no articles for subscribed topics", skipped[0].ErrorMessage)

	sent, err := h.ledger.HasSentToday(context.Background(), 1, digestDay)
	require.NoError(t, err)
	assert.False(t, sent, "a skipped run leaves the subscriber eligible")
}

func TestDispatchOne_SkipLimit(t *testing.T) {
	h := newHarness(t, dispatch.Config{MaxSkipsPerDay: 2}, func([]string) ([]entity.SummarizedArticle, error) {
		return nil, nil
	})
	sub := subscriber(1, "user@example.com", "Technology")

	var outcomes []dispatch.Outcome
	for i := 0; i < 3; i++ {
		outcome, err := h.svc.DispatchOne(context.Background(), sub, digestDay)
		require.NoError(t, err)
		outcomes = append(outcomes, outcome)
	}

	assert.Equal(t, []dispatch.Outcome{dispatch.OutcomeSkipped, dispatch.OutcomeSkipped, dispatch.OutcomeSkipLimited}, outcomes)
	assert.Equal(t, 2, h.aggregator.calls)
	assert.Len(t, h.ledger.withStatus(entity.DispatchStatusSkipped), 2)
}

/* ───────────── errors ───────────── */

func TestDispatchOne_LedgerCheckError(t *testing.T) {
	h := newHarness(t, dispatch.Config{}, threeTechArticles)
	cause := errors.New("connection refused")
	h.ledger.hasSentErr = cause

	outcome, err := h.svc.DispatchOne(context.Background(), subscriber(1, "user@example.com", "Technology"), digestDay)

	assert.Equal(t, dispatch.OutcomeError, outcome)
	assert.ErrorIs(t, err, cause)
	assert.Zero(t, h.aggregator.calls)
	assert.Empty(t, h.mailer.sent)
}

func TestDispatchOne_SentButNotRecorded(t *testing.T) {
	h := newHarness(t, dispatch.Config{}, threeTechArticles)
	cause := errors.New("disk full")
	h.ledger.recordErr = cause

	outcome, err := h.svc.DispatchOne(context.Background(), subscriber(1, "user@example.com", "Technology"), digestDay)

	assert.Equal(t, dispatch.OutcomeError, outcome)
	assert.ErrorIs(t, err, cause)
	assert.Len(t, h.mailer.sent, 1)
}

func TestDispatchOne_RenderError(t *testing.T) {
	h := newHarness(t, dispatch.Config{}, threeTechArticles)
	ctx, cancel := context.WithCancel(context.Background())
	h.aggregator.fn = func([]string) ([]entity.SummarizedArticle, error) {
		cancel()
		return techArticles(1), nil
	}

	outcome, err := h.svc.DispatchOne(ctx, subscriber(1, "user@example.com", "Technology"), digestDay)

	assert.Equal(t, dispatch.OutcomeError, outcome)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, h.mailer.sent)
	assert.Empty(t, h.ledger.records)
}

/* ───────────── BatchResult ───────────── */

func TestBatchResult_String(t *testing.T) {
	r := dispatch.BatchResult{Outcomes: map[dispatch.Outcome]int{
		dispatch.OutcomeError:       1,
		dispatch.OutcomeSent:        3,
		dispatch.OutcomeAlreadySent: 2,
	}}
	assert.Equal(t, "sent=3 already_sent=2 error=1", r.String())
	assert.Equal(t, "no subscribers", dispatch.BatchResult{}.String())
}
