package cli

import (
	"context"
	"errors"
	"time"

	"github.com/cdcgov/data-exchange-processing-status/report-sink/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
) // .import

func setupMetrics(ctx context.Context, pollInterval time.Duration, m ...prometheus.Collector) {
	register(metrics.DefaultMetrics...)
	register(m...)

	metrics.DefaultPoller.Start(ctx, pollInterval)
} // setupMetrics

func register(m ...prometheus.Collector) {
	for _, c := range m {
		err := metrics.RegisterMetrics(c)
		var are prometheus.AlreadyRegisteredError
		if err != nil && !errors.As(err, &are) {
			logger.Error("failed to register metric", "error", err)
		}
	}
}
