package poll

import (
	"context"
	"fmt"
	"time"
)

// Outcome reports how a polling loop ended.
type Outcome int

const (
	Found Outcome = iota
	Timeout
	Cancelled
)

// String returns a human-readable label for the outcome.
func (o Outcome) String() string {
	switch o {
	case Found:
		return "found"
	case Timeout:
		return "timeout"
	case Cancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("unknown(%d)", int(o))
	}
}

// Policy bounds a polling loop.
type Policy struct {
	Interval time.Duration
	Attempts int
	// WaitFirst sleeps one interval before the first check, for loops waiting
	// on something that was only just requested.
	WaitFirst bool
}

// CheckFunc inspects the polled resource. attempt is 1-based. Returning true
// ends the loop with Found; returning an error aborts it.
type CheckFunc func(ctx context.Context, attempt int) (bool, error)

// Until runs check up to p.Attempts times, p.Interval apart. Cancellation of
// ctx ends the loop immediately with Cancelled and ctx.Err(), without
// running the remaining attempts.
func Until(ctx context.Context, p Policy, check CheckFunc) (Outcome, error) {
	attempts := p.Attempts
	if attempts <= 0 {
		attempts = 1
	}

	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 || p.WaitFirst {
			if err := sleep(ctx, p.Interval); err != nil {
				return Cancelled, err
			}
		} else if err := ctx.Err(); err != nil {
			return Cancelled, err
		}

		done, err := check(ctx, attempt)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return Cancelled, ctxErr
			}
			return Timeout, err
		}
		if done {
			return Found, nil
		}
	}
	return Timeout, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
