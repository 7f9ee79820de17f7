package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cdcgov/data-exchange-processing-status/report-sink/internal/sinkerrors"
	"github.com/cdcgov/data-exchange-processing-status/report-sink/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	waits []time.Duration
}

func (r *recorder) sleep(_ context.Context, d time.Duration) error {
	r.waits = append(r.waits, d)
	return nil
}

func TestAlwaysThrottledGivesUpAfterMaxAttempts(t *testing.T) {
	rec := &recorder{}
	c := &Controller{MaxAttempts: 100, Sleep: rec.sleep}
	calls := 0

	err := c.Do(context.Background(), "create report", func(context.Context) storage.WriteResult {
		calls++
		return storage.ThrottledResult(0, errors.New("429"))
	})

	require.Error(t, err)
	assert.True(t, errors.Is(err, sinkerrors.ErrBadState))
	assert.Equal(t, "failed to create report after 100 attempts", err.Error())
	assert.Equal(t, 100, calls)
	assert.Len(t, rec.waits, 99)
	assert.Equal(t, DefaultInterval, rec.waits[0])
}

func TestThrottleHonorsRetryAfter(t *testing.T) {
	rec := &recorder{}
	c := &Controller{MaxAttempts: 5, Interval: time.Second, Sleep: rec.sleep}
	calls := 0

	err := c.Do(context.Background(), "delete report", func(context.Context) storage.WriteResult {
		calls++
		switch calls {
		case 1:
			return storage.ThrottledResult(42*time.Millisecond, nil)
		case 2:
			return storage.TransientResult(errors.New("connection reset"))
		}
		return storage.Succeeded()
	})

	require.NoError(t, err)
	assert.Equal(t, []time.Duration{42 * time.Millisecond, time.Second}, rec.waits)
}

func TestFatalIsNotRetried(t *testing.T) {
	rec := &recorder{}
	c := &Controller{Sleep: rec.sleep}
	calls := 0
	cause := errors.New("conflict")

	err := c.Do(context.Background(), "create report", func(context.Context) storage.WriteResult {
		calls++
		return storage.FatalResult(cause)
	})

	assert.Equal(t, 1, calls)
	assert.Empty(t, rec.waits)
	assert.True(t, errors.Is(err, sinkerrors.ErrBadState))
	assert.True(t, errors.Is(err, cause))
}

func TestCancelledContextStopsRetrying(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{MaxAttempts: 10, Sleep: func(context.Context, time.Duration) error {
		cancel()
		return context.Canceled
	}}

	err := c.Do(ctx, "create report", func(context.Context) storage.WriteResult {
		return storage.TransientResult(errors.New("timeout"))
	})

	assert.True(t, errors.Is(err, sinkerrors.ErrBadState))
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestSleepReturnsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	err := Sleep(ctx, time.Hour)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second)
}
