package entity

import "time"

// DispatchStatus is the outcome of one dispatch attempt.
type DispatchStatus string

const (
	DispatchStatusSent    DispatchStatus = "sent"
	DispatchStatusFailed  DispatchStatus = "failed"
	DispatchStatusSkipped DispatchStatus = "skipped"
)

// Valid reports whether s is a known status.
func (s DispatchStatus) Valid() bool {
	switch s {
	case DispatchStatusSent, DispatchStatusFailed, DispatchStatusSkipped:
		return true
	}
	return false
}

// DispatchRecord is one ledger entry. One record is written per attempt, not per success,
// and records are never updated or deleted by the pipeline.
type DispatchRecord struct {
	ID           int64
	SubscriberID int64
	DigestDate   time.Time
	Subject      string
	Status       DispatchStatus
	Provider     string
	TransportID  string
	ErrorMessage string
	CreatedAt    time.Time
}

// DigestDate truncates t to its calendar date in loc and returns it as midnight UTC,
// the form used for ledger keys.
func DigestDate(t time.Time, loc *time.Location) time.Time {
	if loc != nil {
		t = t.In(loc)
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
