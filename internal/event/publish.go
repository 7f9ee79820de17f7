package event

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/cdcgov/data-exchange-processing-status/report-sink/internal/health"
	"github.com/cdcgov/data-exchange-processing-status/report-sink/internal/models"
)

type Publisher[T Identifiable] interface {
	health.Checkable
	io.Closer
	Publish(ctx context.Context, event T) error
}

// Publishers fans an event out to every configured publisher.
type Publishers[T Identifiable] []Publisher[T]

func (p Publishers[T]) Publish(ctx context.Context, event T) error {
	var errs error
	for _, pub := range p {
		if err := pub.Publish(ctx, event); err != nil {
			errs = errors.Join(errs, err)
		}
	}
	return errs
}

func (p Publishers[T]) Close() error {
	var errs error
	for _, pub := range p {
		errs = errors.Join(errs, pub.Close())
	}
	return errs
}

func (p Publishers[T]) Health(ctx context.Context) (rsp models.ServiceHealthResp) {
	rsp = models.HealthyResp("Event Publishers")
	for _, pub := range p {
		if r := pub.Health(ctx); r.Status != models.STATUS_UP {
			return r
		}
	}
	return rsp
}

// MemoryPublisher keeps published events in memory. It backs tests and the
// local run mode.
type MemoryPublisher[T Identifiable] struct {
	mu     sync.Mutex
	events []T
	Chan   chan T
}

func (mp *MemoryPublisher[T]) Publish(_ context.Context, event T) error {
	mp.mu.Lock()
	mp.events = append(mp.events, event)
	mp.mu.Unlock()
	if mp.Chan != nil {
		go func() {
			mp.Chan <- event
		}()
	}
	return nil
}

func (mp *MemoryPublisher[T]) Events() []T {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	return append([]T(nil), mp.events...)
}

func (mp *MemoryPublisher[T]) Close() error {
	logger.Info("closing in-memory publisher")
	return nil
}

func (mp *MemoryPublisher[T]) Health(_ context.Context) models.ServiceHealthResp {
	return models.HealthyResp("Memory Publisher")
}

const TypeSeparator = "_"

// FilePublisher appends each event as a JSON line to a file named after the
// event id and type.
type FilePublisher[T Identifiable] struct {
	Dir string
}

func (fp *FilePublisher[T]) Publish(_ context.Context, event T) error {
	err := os.MkdirAll(fp.Dir, 0750)
	if err != nil && !os.IsExist(err) {
		return err
	}

	filename := filepath.Join(fp.Dir, event.Identifier()+TypeSeparator+event.Type())
	f, err := os.OpenFile(filename, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	// write event to file.
	return json.NewEncoder(f).Encode(event)
}

func (fp *FilePublisher[T]) Close() error {
	return nil
}

func (fp *FilePublisher[T]) Health(_ context.Context) models.ServiceHealthResp {
	rsp := models.HealthyResp("File Publisher")
	if err := os.MkdirAll(fp.Dir, 0750); err != nil && !os.IsExist(err) {
		return rsp.BuildErrorResponse(err)
	}
	return rsp
}
