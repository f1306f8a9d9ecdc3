// Package dispatch delivers one digest per subscriber per day. It checks the
// idempotency ledger, aggregates and assembles the digest, sends it and records
// the attempt, isolating failures so one subscriber never blocks the rest of a
// batch.
package dispatch

import (
	"fmt"
	"strings"
	"time"
)

// Outcome is the terminal state of one subscriber's dispatch.
type Outcome string

const (
	// OutcomeAlreadySent means a sent record already existed for the date.
	OutcomeAlreadySent Outcome = "already_sent"
	// OutcomeSkipped means no article matched the subscriber's topics.
	OutcomeSkipped Outcome = "skipped"
	// OutcomeSkipLimited means the day's skip budget was exhausted before aggregating.
	OutcomeSkipLimited Outcome = "skip_limited"
	// OutcomeSent means the digest was delivered and recorded.
	OutcomeSent Outcome = "sent"
	// OutcomeSendFailed means the transport rejected the digest; a failed record was written.
	OutcomeSendFailed Outcome = "send_failed"
	// OutcomeError means processing stopped on an unexpected error or panic.
	OutcomeError Outcome = "error"
)

// BatchResult summarizes one RunBatch call.
type BatchResult struct {
	RunID     string
	Total     int
	Processed int
	Outcomes  map[Outcome]int
	Duration  time.Duration
	// Interrupted is set when the context was cancelled before every subscriber ran.
	Interrupted bool
}

// Count returns the number of subscribers that ended in outcome.
func (r BatchResult) Count(outcome Outcome) int {
	return r.Outcomes[outcome]
}

// String renders the non-zero outcome counts in a fixed order.
func (r BatchResult) String() string {
	var parts []string
	for _, o := range []Outcome{OutcomeSent, OutcomeAlreadySent, OutcomeSkipped, OutcomeSkipLimited, OutcomeSendFailed, OutcomeError} {
		if n := r.Outcomes[o]; n > 0 {
			parts = append(parts, fmt.Sprintf("%s=%d", o, n))
		}
	}
	if len(parts) == 0 {
		return "no subscribers"
	}
	return strings.Join(parts, " ")
}
