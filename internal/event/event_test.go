package event

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cdcgov/data-exchange-processing-status/report-sink/internal/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvelopeSettlesOnce(t *testing.T) {
	var acks, nacks int
	acked := testutil.ToFloat64(metrics.EventsCounter.WithLabelValues("TEST", "ack"))
	env := NewEnvelope([]byte("{}"), "TEST", "1", 0,
		func(context.Context) error { acks++; return nil },
		func(context.Context) error { nacks++; return nil },
	)
	assert.Equal(t, 1, env.DeliveryCount)

	require.NoError(t, env.Ack(context.Background()))
	require.NoError(t, env.Nack(context.Background()))
	require.NoError(t, env.Ack(context.Background()))
	assert.Equal(t, 1, acks)
	assert.Equal(t, 0, nacks)
	assert.Equal(t, acked+1, testutil.ToFloat64(metrics.EventsCounter.WithLabelValues("TEST", "ack")))
}

func TestMemoryBusRedelivery(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	bus := NewMemoryBus(4)
	bus.Settled = make(chan Settlement, 8)
	id, err := bus.Send(ctx, []byte(`{"upload_id":"u1"}`))
	require.NoError(t, err)

	go bus.Listen(ctx, func(ctx context.Context, env *RawEnvelope) {
		if env.DeliveryCount < 3 {
			env.Nack(ctx)
			return
		}
		env.Ack(ctx)
	})

	var got []Settlement
	for len(got) < 3 {
		select {
		case s := <-bus.Settled:
			got = append(got, s)
		case <-ctx.Done():
			t.Fatalf("timed out waiting for settlements, got %+v", got)
		}
	}
	assert.Equal(t, []Settlement{
		{MessageID: id, DeliveryCount: 1},
		{MessageID: id, DeliveryCount: 2},
		{MessageID: id, Acked: true, DeliveryCount: 3},
	}, got)
}

func TestDirListener(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.json"), []byte(`{"n":1}`), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.json"), []byte(`{"n":2}`), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ignored.txt"), []byte(`x`), 0644))

	dl := NewDirListener(dir, nil)
	n, err := dl.Length(ctx)
	require.NoError(t, err)
	assert.Equal(t, float64(2), n)

	counts := map[string][]int{}
	handle := func(ctx context.Context, env *RawEnvelope) {
		counts[env.MessageID] = append(counts[env.MessageID], env.DeliveryCount)
		if env.MessageID == "a.json" || env.DeliveryCount > 1 {
			env.Ack(ctx)
			return
		}
		env.Nack(ctx)
	}

	require.NoError(t, dl.poll(ctx, handle))
	require.NoError(t, dl.poll(ctx, handle))
	require.NoError(t, dl.poll(ctx, handle))

	assert.Equal(t, []int{1}, counts["a.json"])
	assert.Equal(t, []int{1, 2}, counts["b.json"])

	_, err = os.Stat(filepath.Join(dir, "a.json"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(dir, "b.json"))
	assert.True(t, os.IsNotExist(err))

	n, err = dl.Length(ctx)
	require.NoError(t, err)
	assert.Equal(t, float64(0), n)
}

func TestDirListenerSkipsInFlight(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.json"), []byte(`{}`), 0644))

	dl := NewDirListener(dir, nil)
	var held []*RawEnvelope
	hold := func(_ context.Context, env *RawEnvelope) {
		held = append(held, env)
	}
	require.NoError(t, dl.poll(ctx, hold))
	require.NoError(t, dl.poll(ctx, hold))
	require.Len(t, held, 1)

	require.NoError(t, held[0].Nack(ctx))
	require.NoError(t, dl.poll(ctx, hold))
	require.Len(t, held, 2)
	assert.Equal(t, 2, held[1].DeliveryCount)
}

func TestReportValidatedEncoding(t *testing.T) {
	body := []byte(`{"upload_id":"u1","content":{"a":1}}`)
	ev := NewReportValidated("r1", "u1", body)
	b, err := json.Marshal(ev)
	require.NoError(t, err)
	assert.JSONEq(t, string(body), string(b))

	var decoded ReportValidated
	require.NoError(t, json.Unmarshal(b, &decoded))
	assert.Equal(t, "u1", decoded.GetUploadID())
}

func TestPublishers(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	mem := &MemoryPublisher[*ReportValidated]{}
	pubs := Publishers[*ReportValidated]{mem, &FilePublisher[*ReportValidated]{Dir: dir}}

	ev := NewReportValidated("r1", "u1", []byte(`{"upload_id":"u1"}`))
	require.NoError(t, pubs.Publish(ctx, ev))
	require.NoError(t, pubs.Publish(ctx, ev))

	assert.Len(t, mem.Events(), 2)
	b, err := os.ReadFile(filepath.Join(dir, "r1"+TypeSeparator+ReportValidatedEventType))
	require.NoError(t, err)
	assert.Equal(t, "{\"upload_id\":\"u1\"}\n{\"upload_id\":\"u1\"}\n", string(b))

	assert.Equal(t, "UP", pubs.Health(ctx).Status)
	assert.NoError(t, pubs.Close())
}
