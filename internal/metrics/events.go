package metrics

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var EventsCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "dex_report_sink_messages_total",
	Help: "Number of transport messages settled, by source and ack or nack",
}, []string{"source", "op"})

var CurrentMessages = prometheus.NewGaugeVec(prometheus.GaugeOpts{
	Name: "dex_report_sink_queue_messages",
	Help: "Current number of messages waiting in a transport queue",
}, []string{"queue"})

// Countable is implemented by listeners that can report their backlog.
type Countable interface {
	Length(ctx context.Context) (float64, error)
}

type QueuePoller struct {
	mu       sync.Mutex
	queueMap map[string]Countable
	t        *time.Ticker
}

var DefaultPoller = QueuePoller{
	queueMap: make(map[string]Countable),
}

func (qp *QueuePoller) Start(ctx context.Context, interval time.Duration) {
	qp.mu.Lock()
	defer qp.mu.Unlock()
	if qp.t != nil {
		return
	}
	qp.t = time.NewTicker(interval)
	ticker := qp.t

	go func() {
		defer func() {
			ticker.Stop()
			qp.mu.Lock()
			qp.t = nil
			qp.mu.Unlock()
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				qp.poll(ctx)
			}
		}
	}()
}

func (qp *QueuePoller) poll(ctx context.Context) {
	qp.mu.Lock()
	queues := make(map[string]Countable, len(qp.queueMap))
	for k, v := range qp.queueMap {
		queues[k] = v
	}
	qp.mu.Unlock()

	for q, c := range queues {
		l, err := c.Length(ctx)
		if err != nil {
			slog.Warn("failed to get queue length", "queue", q, "reason", err)
			continue
		}
		CurrentMessages.With(prometheus.Labels{"queue": q}).Set(l)
	}
}

// RegisterQueue adds q to the default poller if it can report its length.
func RegisterQueue(name string, q any) {
	c, ok := q.(Countable)
	if !ok {
		slog.Debug("queue does not report its length", "queue", name)
		return
	}
	DefaultPoller.mu.Lock()
	DefaultPoller.queueMap[name] = c
	DefaultPoller.mu.Unlock()
}
