// Package backoff provides the bounded exponential polling loop shared by the
// log watcher, the task controller and read-after-write retries.
package backoff

import (
	"context"
	"errors"
	"fmt"
	"time"

	cbackoff "github.com/cenkalti/backoff/v4"
)

// ErrInvalidPolicy is returned for a policy whose intervals cannot drive a
// polling loop.
var ErrInvalidPolicy = errors.New("backoff: invalid poll policy")

// Policy describes a bounded polling loop.
type Policy struct {
	// Initial is the first delay between checks.
	Initial time.Duration

	// Max caps the delay between checks.
	Max time.Duration

	// Timeout bounds the whole loop. Zero means no deadline besides ctx.
	Timeout time.Duration
}

// Validate reports whether the policy can drive Poll.
//
// Returns:
//   - error: ErrInvalidPolicy (wrapped) if Initial is not positive, Max is
//     below Initial or Timeout is negative
func (p Policy) Validate() error {
	switch {
	case p.Initial <= 0:
		return fmt.Errorf("%w: initial interval %v must be positive", ErrInvalidPolicy, p.Initial)
	case p.Max < p.Initial:
		return fmt.Errorf("%w: max interval %v is below initial interval %v", ErrInvalidPolicy, p.Max, p.Initial)
	case p.Timeout < 0:
		return fmt.Errorf("%w: timeout %v is negative", ErrInvalidPolicy, p.Timeout)
	}

	return nil
}

// Outcome is returned by a Poll check.
type Outcome int

const (
	// Retry asks Poll to check again after the next delay.
	Retry Outcome = iota
	// Stop ends the loop successfully.
	Stop
)

// ErrDeadline is returned by Poll when the policy timeout elapsed.
type ErrDeadline struct {
	// Attempts is the number of checks performed.
	Attempts int
}

func (e *ErrDeadline) Error() string {
	return "backoff: deadline exceeded"
}

var errRetry = errors.New("backoff: retry")

// Poll runs check until it reports Stop, returns an error, the policy timeout
// elapses, or ctx is done.
//
// The first check runs immediately and later ones follow an exponential
// schedule from Initial doubling up to Max. A check error ends the loop and is
// returned as-is. When the timeout elapses Poll returns *ErrDeadline; when ctx
// is done it returns ctx.Err().
func Poll(ctx context.Context, p Policy, check func(ctx context.Context) (Outcome, error)) error {
	if err := p.Validate(); err != nil {
		return err
	}

	// The timeout is a context deadline rather than MaxElapsedTime, which
	// gives up as soon as the next interval would cross it.
	pollCtx := ctx
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		pollCtx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}

	b := cbackoff.NewExponentialBackOff()
	b.InitialInterval = p.Initial
	b.MaxInterval = p.Max
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0

	attempts := 0
	err := cbackoff.Retry(func() error {
		attempts++
		outcome, err := check(pollCtx)
		switch {
		case err != nil:
			return cbackoff.Permanent(err)
		case outcome == Stop:
			return nil
		default:
			return errRetry
		}
	}, cbackoff.WithContext(b, pollCtx))

	if err != nil && ctx.Err() == nil && pollCtx.Err() != nil {
		return &ErrDeadline{Attempts: attempts}
	}

	return err
}
