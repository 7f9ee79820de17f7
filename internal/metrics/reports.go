package metrics

import "github.com/prometheus/client_golang/prometheus"

// result label values for ReportsTotal
const (
	ResultCreated      = "created"
	ResultReplaced     = "replaced"
	ResultSkipped      = "skipped"
	ResultDeadLettered = "dead_lettered"
	ResultRedelivered  = "redelivered"
	ResultForwarded    = "forwarded"
)

var ReportsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "dex_report_sink_reports_total",
	Help: "Number of report messages handled, partitioned by source and result",
}, []string{"source", "result"})

var ActiveMessages = prometheus.NewGauge(prometheus.GaugeOpts{
	Name: "dex_report_sink_active_messages",
	Help: "Number of messages currently being processed by the worker pool",
})

var StoreRetries = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "dex_report_sink_store_retries_total",
	Help: "Number of store write attempts that were retried, partitioned by operation and outcome",
}, []string{"op", "outcome"})

var ProcessingSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "dex_report_sink_processing_seconds",
	Help:    "Time from receipt to ack or nack of a message",
	Buckets: prometheus.DefBuckets,
}, []string{"source"})

var DefaultMetrics = []prometheus.Collector{
	OpenConnections,
	HttpReqs,
	EventsCounter,
	CurrentMessages,
	ReportsTotal,
	ActiveMessages,
	StoreRetries,
	ProcessingSeconds,
}

func RegisterMetrics(metrics ...prometheus.Collector) error {
	if metrics == nil {
		metrics = DefaultMetrics
	}
	for _, m := range metrics {
		if err := prometheus.Register(m); err != nil {
			return err
		}
	}
	return nil
}
