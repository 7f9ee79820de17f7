package event

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/cdcgov/data-exchange-processing-status/report-sink/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrackers(t *testing.T) {
	mr := miniredis.RunT(t)
	rt, err := NewRedisTracker("redis://" + mr.Addr())
	require.NoError(t, err)
	defer rt.Close()

	trackers := map[string]DeliveryTracker{
		"memory": NewMemoryTracker(),
		"redis":  rt,
	}
	for name, tr := range trackers {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for want := 1; want <= 3; want++ {
				got, err := tr.Attempt(ctx, "topic/0/42")
				require.NoError(t, err)
				assert.Equal(t, want, got)
			}
			require.NoError(t, tr.Forget(ctx, "topic/0/42"))
			got, err := tr.Attempt(ctx, "topic/0/42")
			require.NoError(t, err)
			assert.Equal(t, 1, got)
		})
	}
}

func TestRedisTrackerExpiresCounts(t *testing.T) {
	mr := miniredis.RunT(t)
	rt, err := NewRedisTracker("redis://" + mr.Addr())
	require.NoError(t, err)
	rt.TTL = time.Minute
	ctx := context.Background()

	_, err = rt.Attempt(ctx, "m1")
	require.NoError(t, err)
	mr.FastForward(2 * time.Minute)

	got, err := rt.Attempt(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, 1, got)
	assert.Equal(t, models.STATUS_UP, rt.Health(ctx).Status)

	mr.Close()
	assert.Equal(t, models.STATUS_DOWN, rt.Health(ctx).Status)
}
