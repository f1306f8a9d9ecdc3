// Package schedule decides when digests go out. IsDue evaluates a subscriber's
// delivery window and Scheduler polls the subscriber list, triggering a dispatch
// batch when at least one window is open.
package schedule

import (
	"time"

	"daily-digest/internal/domain/entity"
)

// clockLayout is the minute-resolution form preferred times are stored in.
const clockLayout = "15:04"

// IsDue reports whether now, seen in timezone, falls in the minute named by
// preferredTime ("HH:MM", 24h; "8:00" is accepted as "08:00").
// An unknown zone or malformed time returns a *entity.ConfigurationError.
func IsDue(preferredTime, timezone string, now time.Time) (bool, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return false, &entity.ConfigurationError{Key: "time_zone", Message: "unknown time zone " + timezone}
	}
	want, err := entity.NormalizePreferredTime(preferredTime)
	if err != nil {
		return false, &entity.ConfigurationError{Key: "preferred_time", Message: err.Error()}
	}
	return now.In(loc).Format(clockLayout) == want, nil
}
