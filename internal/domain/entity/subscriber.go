package entity

import (
	"strconv"
	"time"
)

// Default delivery preferences applied to new subscribers.
const (
	DefaultPreferredTime = "08:00"
	DefaultTimeZone      = "Asia/Kolkata"
)

// Subscriber is an opted-in digest recipient.
// Email is the identity and is always stored normalized (trimmed, lower-cased).
// Subscribers are never hard-deleted; unsubscribing clears Active.
type Subscriber struct {
	ID            int64
	Email         string
	Topics        []string
	PreferredTime string // "HH:MM" in the subscriber's local time
	TimeZone      string // IANA name
	Active        bool
	Verified      bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Eligible reports whether the subscriber may receive a digest.
func (s *Subscriber) Eligible() bool {
	return s.Active && s.Verified
}

// HasTopic reports whether topic is one of the subscriber's topics.
func (s *Subscriber) HasTopic(topic string) bool {
	for _, t := range s.Topics {
		if t == topic {
			return true
		}
	}
	return false
}

// Validate checks the subscriber's preference fields.
// It normalizes Email, Topics and PreferredTime in place.
func (s *Subscriber) Validate() error {
	email, err := NormalizeEmail(s.Email)
	if err != nil {
		return err
	}
	s.Email = email

	topics, err := NormalizeTopics(s.Topics)
	if err != nil {
		return err
	}
	s.Topics = topics

	if s.PreferredTime == "" {
		s.PreferredTime = DefaultPreferredTime
	}
	hhmm, err := NormalizePreferredTime(s.PreferredTime)
	if err != nil {
		return err
	}
	s.PreferredTime = hhmm

	if s.TimeZone == "" {
		s.TimeZone = DefaultTimeZone
	}
	if _, err := time.LoadLocation(s.TimeZone); err != nil {
		return &ValidationError{Field: "time_zone", Message: "unknown time zone " + s.TimeZone}
	}
	return nil
}

// Location resolves the subscriber's time zone. An unknown zone is a
// ConfigurationError: the subscriber is skipped until the record is fixed.
func (s *Subscriber) Location() (*time.Location, error) {
	tz := s.TimeZone
	if tz == "" {
		tz = DefaultTimeZone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, &ConfigurationError{Key: "time_zone", Message: "unknown time zone " + tz + " for subscriber " + strconv.FormatInt(s.ID, 10)}
	}
	return loc, nil
}

// LocalDate returns the subscriber's calendar date at instant now, in ledger form.
func (s *Subscriber) LocalDate(now time.Time) (time.Time, error) {
	loc, err := s.Location()
	if err != nil {
		return time.Time{}, err
	}
	return DigestDate(now, loc), nil
}
