package event

import (
	"context"
	"strconv"
	"sync/atomic"

	"github.com/cdcgov/data-exchange-processing-status/report-sink/internal/models"
)

type memoryMessage struct {
	id            string
	body          []byte
	deliveryCount int
}

// Settlement records how a memory bus message was settled.
type Settlement struct {
	MessageID     string
	Acked         bool
	DeliveryCount int
}

// MemoryBus is an in-process transport. Nacked messages are put back on the
// bus with their delivery count incremented.
type MemoryBus struct {
	ch chan memoryMessage
	// Settled, when set, receives every ack and nack.
	Settled chan Settlement

	seq    atomic.Int64
	closed atomic.Bool
}

func NewMemoryBus(size int) *MemoryBus {
	return &MemoryBus{ch: make(chan memoryMessage, size)}
}

// Send puts body on the bus and returns the message id it was given.
func (mb *MemoryBus) Send(ctx context.Context, body []byte) (string, error) {
	id := strconv.FormatInt(mb.seq.Add(1), 10)
	select {
	case mb.ch <- memoryMessage{id: id, body: body, deliveryCount: 1}:
		return id, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (mb *MemoryBus) Listen(ctx context.Context, handle Handler) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case m := <-mb.ch:
			handle(ctx, mb.envelope(m))
		}
	}
}

func (mb *MemoryBus) envelope(m memoryMessage) *RawEnvelope {
	return NewEnvelope(m.body, models.SourceLocal, m.id, m.deliveryCount,
		func(context.Context) error {
			mb.settle(Settlement{MessageID: m.id, Acked: true, DeliveryCount: m.deliveryCount})
			return nil
		},
		func(context.Context) error {
			mb.settle(Settlement{MessageID: m.id, DeliveryCount: m.deliveryCount})
			if mb.closed.Load() {
				return nil
			}
			m.deliveryCount++
			// requeue off the handler goroutine so a full bus cannot block it
			go func() {
				mb.ch <- m
			}()
			return nil
		},
	)
}

func (mb *MemoryBus) settle(s Settlement) {
	if mb.Settled != nil {
		mb.Settled <- s
	}
}

func (mb *MemoryBus) Length(_ context.Context) (float64, error) {
	return float64(len(mb.ch)), nil
}

func (mb *MemoryBus) Close() error {
	mb.closed.Store(true)
	return nil
}

func (mb *MemoryBus) Health(_ context.Context) models.ServiceHealthResp {
	return models.HealthyResp("Memory Listener")
}
