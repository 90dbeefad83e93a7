// Package poll provides the bounded-wait primitives used in place of event
// subscriptions. The browser's performance log and page state are pull-only, so
// every "wait for X" is a predicate checked at a fixed interval until a deadline.
package poll

import (
	"context"
	"time"

	"github.com/sethvargo/go-retry"
)

// Default window used when Options leave fields zero.
const (
	DefaultTimeout  = 30 * time.Second
	DefaultInterval = 500 * time.Millisecond
)

// Options bounds a poll.
type Options struct {
	Timeout  time.Duration `yaml:"timeout"`
	Interval time.Duration `yaml:"interval"`
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.Interval <= 0 {
		o.Interval = DefaultInterval
	}
	return o
}

// Condition is checked once per tick. A non-nil error aborts the poll.
type Condition func(ctx context.Context) (bool, error)

// Until evaluates cond immediately and then once per interval until it reports true,
// returns an error, the timeout elapses, or ctx is done. The final evaluation happens
// at the deadline, so a false result is returned no later than one interval after the
// timeout. It reports false with a nil error when the window closed without success.
func Until(ctx context.Context, opts Options, cond Condition) (bool, error) {
	opts = opts.withDefaults()
	start := time.Now()

	timer := time.NewTimer(0)
	defer timer.Stop()
	<-timer.C

	for {
		ok, err := cond(ctx)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}

		remaining := opts.Timeout - time.Since(start)
		if remaining <= 0 {
			return false, nil
		}
		wait := opts.Interval
		if remaining < wait {
			wait = remaining
		}

		timer.Reset(wait)
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-timer.C:
		}
	}
}

// Retry runs fn up to attempts times with a constant backoff between failures and
// returns the last error once attempts are exhausted. onRetry, when set, is called
// before each sleep with the 1-based attempt that just failed.
func Retry(ctx context.Context, attempts int, backoff time.Duration, fn func(ctx context.Context) error, onRetry func(attempt int, err error)) error {
	if attempts < 1 {
		attempts = 1
	}
	if backoff <= 0 {
		// go-retry rejects a zero constant backoff
		backoff = time.Nanosecond
	}
	b := retry.WithMaxRetries(uint64(attempts-1), retry.NewConstant(backoff))

	attempt := 0
	return retry.Do(ctx, b, func(ctx context.Context) error {
		attempt++
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if onRetry != nil && attempt < attempts {
			onRetry(attempt, err)
		}
		return retry.RetryableError(err)
	})
}
