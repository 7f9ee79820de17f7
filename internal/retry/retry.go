package retry

import (
	"context"
	"log/slog"
	"reflect"
	"strings"
	"time"

	"github.com/cdcgov/data-exchange-processing-status/report-sink/internal/metrics"
	"github.com/cdcgov/data-exchange-processing-status/report-sink/internal/sinkerrors"
	"github.com/cdcgov/data-exchange-processing-status/report-sink/internal/storage"
	"github.com/cdcgov/data-exchange-processing-status/report-sink/pkg/sloger"
) // .import

var logger *slog.Logger

func init() {
	type Empty struct{}
	pkgParts := strings.Split(reflect.TypeOf(Empty{}).PkgPath(), "/")
	// add package name to app logger
	logger = sloger.With("pkg", pkgParts[len(pkgParts)-1])
}

const (
	DefaultMaxAttempts = 100
	DefaultInterval    = 500 * time.Millisecond
)

// Controller retries store writes that come back throttled or transient.
// A zero Controller uses the defaults.
type Controller struct {
	MaxAttempts int
	// Interval is waited after a transient failure, and after a throttle
	// that did not say how long to wait.
	Interval time.Duration
	// Sleep is swapped out by tests.
	Sleep func(ctx context.Context, d time.Duration) error
}

func New(maxAttempts int, interval time.Duration) *Controller {
	return &Controller{MaxAttempts: maxAttempts, Interval: interval}
}

func (c *Controller) maxAttempts() int {
	if c == nil || c.MaxAttempts <= 0 {
		return DefaultMaxAttempts
	}
	return c.MaxAttempts
}

func (c *Controller) interval() time.Duration {
	if c == nil || c.Interval <= 0 {
		return DefaultInterval
	}
	return c.Interval
}

func (c *Controller) sleep(ctx context.Context, d time.Duration) error {
	if c != nil && c.Sleep != nil {
		return c.Sleep(ctx, d)
	}
	return Sleep(ctx, d)
}

// Do runs fn until it succeeds, fails fatally, runs out of attempts or ctx is
// done. Every failure is returned as a *sinkerrors.BadStateError naming op.
func (c *Controller) Do(ctx context.Context, op string, fn func(ctx context.Context) storage.WriteResult) error {
	max := c.maxAttempts()
	var last error
	for attempt := 1; attempt <= max; attempt++ {
		if err := ctx.Err(); err != nil {
			return &sinkerrors.BadStateError{Op: op, Attempts: attempt - 1, Err: err}
		}

		res := fn(ctx)
		var wait time.Duration
		switch res.Outcome {
		case storage.Success:
			return nil
		case storage.Fatal:
			return sinkerrors.BadState(op, res.Err)
		case storage.Throttled:
			wait = res.RetryAfter
			if wait <= 0 {
				wait = c.interval()
			}
		case storage.Transient:
			wait = c.interval()
		}
		last = res.Err
		metrics.StoreRetries.WithLabelValues(op, res.Outcome.String()).Inc()

		if attempt == max {
			break
		}
		sloger.GetLogger(ctx).Debug("retrying store operation", "op", op, "attempt", attempt, "outcome", res.Outcome.String(), "wait", wait, "reason", res.Err)
		if err := c.sleep(ctx, wait); err != nil {
			return &sinkerrors.BadStateError{Op: op, Attempts: attempt, Err: err}
		}
	}
	logger.Error("store operation exhausted retries", "op", op, "attempts", max, "lastError", last)
	return &sinkerrors.BadStateError{Op: op, Attempts: max}
} // .Do

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
