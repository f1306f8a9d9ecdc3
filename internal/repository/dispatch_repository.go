package repository

import (
	"context"
	"errors"
	"time"

	"daily-digest/internal/domain/entity"
)

// ErrAlreadySent is returned by RecordAttempt when a sent record already exists
// for the same subscriber and digest date.
var ErrAlreadySent = errors.New("digest already sent for this date")

// DispatchAttempt is the input for one ledger append.
type DispatchAttempt struct {
	SubscriberID int64
	DigestDate   time.Time
	Subject      string
	Status       entity.DispatchStatus
	Provider     string
	TransportID  string
	ErrorMessage string
}

// DispatchRepository is the idempotency ledger. It is append-only.
//
// RecordAttempt with status sent claims the (subscriber, date) slot atomically:
// a second sent record for the same slot fails with ErrAlreadySent.
type DispatchRepository interface {
	HasSentToday(ctx context.Context, subscriberID int64, date time.Time) (bool, error)
	RecordAttempt(ctx context.Context, attempt DispatchAttempt) (*entity.DispatchRecord, error)
	CountAttempts(ctx context.Context, subscriberID int64, date time.Time, status entity.DispatchStatus) (int, error)
	ListByDate(ctx context.Context, date time.Time) ([]*entity.DispatchRecord, error)
	Search(ctx context.Context, filter DispatchFilter) ([]*entity.DispatchRecord, error)
}

// DispatchFilter narrows a ledger search. Zero fields match everything.
// Results are newest first.
type DispatchFilter struct {
	SubscriberID int64
	DigestDate   time.Time
	Status       entity.DispatchStatus
	Limit        int
}
