package retry

import (
	"math"
	"time"

	"github.com/raceshot/uploader/pkg/models"
)

// Policy decides whether a failed attempt should be retried and how long to
// wait first. It holds no state across calls; every decision is a pure
// function of the attempt's classification and number, so retry timing is
// exactly reproducible.
type Policy struct {
	// MaxRetries is the number of retries allowed after the first attempt.
	MaxRetries int
	// Factor is the exponential backoff base: attempt n waits Factor^(n-1)
	// units before the next attempt. No jitter is applied.
	Factor float64
	// Unit scales the backoff exponent into a duration. Zero means one
	// second, matching the wire-facing default.
	Unit time.Duration
}

// Decision is the outcome of consulting the policy after an attempt.
type Decision struct {
	Retry bool
	Wait  time.Duration
}

// GiveUp is the terminal decision.
var GiveUp = Decision{}

// Decide returns the decision for the given attempt (1-indexed). Success is
// terminal and never consults the policy; callers only pass failures.
func (p Policy) Decide(class models.Classification, attempt int) Decision {
	if !class.Retryable() {
		return GiveUp
	}
	if attempt > p.MaxRetries {
		return GiveUp
	}
	unit := p.Unit
	if unit == 0 {
		unit = time.Second
	}
	wait := time.Duration(math.Pow(p.Factor, float64(attempt-1)) * float64(unit))
	return Decision{Retry: true, Wait: wait}
}
