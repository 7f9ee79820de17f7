package processor

import (
	"context"
	"sync"
	"time"

	"github.com/cdcgov/data-exchange-processing-status/report-sink/internal/event"
	"golang.org/x/sync/semaphore"
)

const (
	DefaultWorkers        = 8
	DefaultMessageTimeout = 2 * time.Minute
)

// Pool bounds how many messages of one listener are handled at once. Each
// message runs in its own goroutine under its own time budget.
type Pool struct {
	Handler event.Handler
	Timeout time.Duration

	sem *semaphore.Weighted
	wg  sync.WaitGroup
}

func NewPool(h event.Handler, workers int, timeout time.Duration) *Pool {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if timeout <= 0 {
		timeout = DefaultMessageTimeout
	}
	return &Pool{
		Handler: h,
		Timeout: timeout,
		sem:     semaphore.NewWeighted(int64(workers)),
	}
}

// Handle blocks until a worker is free and then hands env to it. It matches
// event.Handler so a pool can be given straight to a listener.
func (p *Pool) Handle(ctx context.Context, env *event.RawEnvelope) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		// shutting down; give the message back
		if err := env.Nack(context.WithoutCancel(ctx)); err != nil {
			logger.Error("failed to nack message on shutdown", "messageId", env.MessageID, "error", err)
		}
		return
	}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer p.sem.Release(1)

		msgCtx, cancel := context.WithTimeout(ctx, p.Timeout)
		defer cancel()
		p.Handler(msgCtx, env)
	}()
}

// Wait blocks until every message handed to the pool has been settled.
func (p *Pool) Wait() {
	p.wg.Wait()
}

// Run feeds l into the pool until ctx is done, then waits for in-flight
// messages.
func (p *Pool) Run(ctx context.Context, l event.Listener) error {
	err := l.Listen(ctx, p.Handle)
	p.Wait()
	return err
}
