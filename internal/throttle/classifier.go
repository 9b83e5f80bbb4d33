// Package throttle classifies send outcomes and watches for sustained
// provider rate limiting across a dispatch run.
package throttle

import (
	"errors"

	"github.com/nexlead/nexlead-backend/internal/provider"
)

// Outcome is the classification of one send attempt.
type Outcome int

const (
	// Success: the provider accepted the message.
	Success Outcome = iota
	// RetryableThrottle: the provider rate-limited this send; worth one
	// retry after an extended wait.
	RetryableThrottle
	// PermanentRecipientFailure: the recipient is unreachable on this
	// channel; flag them do-not-contact so future campaigns skip them.
	PermanentRecipientFailure
	// TransientFailure: anything else; recorded as failed, no
	// recipient-level side effect.
	TransientFailure
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case RetryableThrottle:
		return "retryable_throttle"
	case PermanentRecipientFailure:
		return "permanent_recipient_failure"
	default:
		return "transient_failure"
	}
}

// DefaultBreakThreshold is how many consecutive throttles trip the breaker.
const DefaultBreakThreshold = 3

// Classifier classifies outcomes and counts consecutive throttles across
// recipients within one dispatch run. When the threshold is reached the
// account is being rate-limited globally, not just unlucky on one number,
// and the run should pause instead of burning through the recipient list.
type Classifier struct {
	threshold   int
	consecutive int
}

func NewClassifier(threshold int) *Classifier {
	if threshold <= 0 {
		threshold = DefaultBreakThreshold
	}
	return &Classifier{threshold: threshold}
}

// Classify maps a send error to an outcome and updates the consecutive
// throttle count. A nil error or any non-throttle outcome resets the count.
func (c *Classifier) Classify(err error) Outcome {
	if err == nil {
		c.consecutive = 0
		return Success
	}

	var sendErr *provider.SendError
	if errors.As(err, &sendErr) {
		switch sendErr.Code {
		case provider.CodeRateLimited:
			c.consecutive++
			return RetryableThrottle
		case provider.CodeRecipientUnreachable:
			c.consecutive = 0
			return PermanentRecipientFailure
		}
	}

	c.consecutive = 0
	return TransientFailure
}

// Tripped reports whether consecutive throttles reached the threshold.
func (c *Classifier) Tripped() bool {
	return c.consecutive >= c.threshold
}

// Consecutive returns the current consecutive throttle count.
func (c *Classifier) Consecutive() int {
	return c.consecutive
}

// Threshold returns the configured circuit-break threshold.
func (c *Classifier) Threshold() int {
	return c.threshold
}
