package cli

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/cdcgov/data-exchange-processing-status/report-sink/internal/appconfig"
	"github.com/cdcgov/data-exchange-processing-status/report-sink/internal/deadletter"
	"github.com/cdcgov/data-exchange-processing-status/report-sink/internal/event"
	"github.com/cdcgov/data-exchange-processing-status/report-sink/internal/health"
	"github.com/cdcgov/data-exchange-processing-status/report-sink/internal/processor"
	"github.com/cdcgov/data-exchange-processing-status/report-sink/internal/reconcile"
	"github.com/cdcgov/data-exchange-processing-status/report-sink/internal/reportquery"
	"github.com/cdcgov/data-exchange-processing-status/report-sink/internal/retry"
	"github.com/cdcgov/data-exchange-processing-status/report-sink/internal/storage"
	"github.com/cdcgov/data-exchange-processing-status/report-sink/internal/validation"
)

// Sink is the running report sink: the listener feeding the worker pool and
// the http handler for the operational and read routes.
type Sink struct {
	Handler    http.Handler
	Listener   event.Listener
	Pool       *processor.Pool
	Processor  *processor.Processor
	Store      storage.Store
	Publishers event.Publishers[*event.ReportValidated]

	closers []io.Closer
}

// Run consumes until ctx is done and in-flight messages are settled.
func (s *Sink) Run(ctx context.Context) error {
	return s.Pool.Run(ctx, s.Listener)
}

func (s *Sink) Close() error {
	var errs []error
	for _, c := range s.closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

// Serve wires the sink from appConfig. Nothing is consumed until Run is
// called.
func Serve(ctx context.Context, appConfig appconfig.AppConfig) (*Sink, error) {
	setupMetrics(ctx, appConfig.Metrics.PollInterval)

	store, err := GetDataStore(ctx, appConfig)
	if err != nil {
		logger.Error("error starting app, error configuring storage", "error", err)
		return nil, err
	}

	loader, err := NewSchemaLoader(ctx, appConfig)
	if err != nil {
		logger.Error("error starting app, error configuring schema loader", "error", err)
		return nil, err
	}
	gate := validation.NewGate(validation.Config{Disabled: appConfig.DisableValidation}, loader)
	health.Register(gate)

	publishers, err := NewEventPublisher[*event.ReportValidated](ctx, appConfig, nil)
	if err != nil {
		logger.Error("error starting app, error configuring publishers", "error", err)
		return nil, err
	}

	tracker, err := NewDeliveryTracker(appConfig)
	if err != nil {
		publishers.Close()
		return nil, err
	}

	listener, err := NewListener(ctx, appConfig, tracker)
	if err != nil {
		logger.Error("error starting app, error configuring listener", "error", err)
		publishers.Close()
		return nil, err
	}

	r := retry.New(appConfig.RetryMaxAttempts, appConfig.RetryInterval)
	proc := &processor.Processor{
		Gate:             gate,
		Engine:           reconcile.New(store.Reports, r, appConfig.MaxReplaceMatches),
		DeadLetters:      deadletter.New(store.DeadLetters, r),
		Publishers:       publishers,
		Forward:          appConfig.ForwardValidatedReports,
		MaxMessageBytes:  int(appConfig.MaxMessageBytes),
		MaxDeliveryCount: appConfig.MaxDeliveryCount,
	}

	s := &Sink{
		Handler:    NewRouter(&reportquery.Service{Store: store}),
		Listener:   listener,
		Pool:       processor.NewPool(TracingProcessor(proc.Handle), appConfig.Workers, appConfig.MessageTimeout),
		Processor:  proc,
		Store:      store,
		Publishers: publishers,
		closers:    []io.Closer{listener, publishers},
	}
	if c, ok := tracker.(io.Closer); ok {
		s.closers = append(s.closers, c)
	}
	return s, nil
} // .Serve
