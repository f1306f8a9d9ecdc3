package config

import (
	"fmt"
	"time"
)

// ValidatePositiveDuration rejects zero and negative durations.
//
//	if err := ValidatePositiveDuration(timeout); err != nil {
//	    return fmt.Errorf("invalid timeout: %w", err)
//	}
func ValidatePositiveDuration(d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("duration must be positive, got %v", d)
	}
	return nil
}

// ValidateDurationRange checks min <= d <= max.
func ValidateDurationRange(d, min, max time.Duration) error {
	switch {
	case min > max:
		return fmt.Errorf("invalid range: min (%v) cannot be greater than max (%v)", min, max)
	case d < min:
		return fmt.Errorf("duration %v is below minimum %v", d, min)
	case d > max:
		return fmt.Errorf("duration %v exceeds maximum %v", d, max)
	}
	return nil
}
