package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Broker BrokerMetrics
	Outbox OutboxMetrics
	API    APIMetrics
	Repo   RepoMetrics
}

type BrokerMetrics struct {
	PublishLatencySeconds *prometheus.HistogramVec
	PublishTotal          *prometheus.CounterVec
	ReconnectsTotal       prometheus.Counter
	Connected             prometheus.Gauge
}

type OutboxMetrics struct {
	RelayBatchSize     prometheus.Histogram
	TransitionsTotal   *prometheus.CounterVec
	RequeuedTotal      prometheus.Counter
	GaveUpEntries      prometheus.Gauge
	PurgedTotal        prometheus.Counter
}

type APIMetrics struct {
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

type RepoMetrics struct {
	RequestsTotal   *prometheus.CounterVec
	DurationSeconds *prometheus.HistogramVec
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		Broker: BrokerMetrics{
			PublishLatencySeconds: f.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "communities",
				Subsystem: "broker",
				Name:      "publish_latency_seconds",
				Help:      "Latency per single publish attempt.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"exchange", "result"}), // ok|error

			PublishTotal: f.NewCounterVec(prometheus.CounterOpts{
				Namespace: "communities",
				Subsystem: "broker",
				Name:      "publish_total",
				Help:      "Total publish operations by result.",
			}, []string{"exchange", "result"}), // success|transient|permanent|canceled

			ReconnectsTotal: f.NewCounter(prometheus.CounterOpts{
				Namespace: "communities",
				Subsystem: "broker",
				Name:      "reconnects_total",
				Help:      "Successful RabbitMQ reconnects.",
			}),

			Connected: f.NewGauge(prometheus.GaugeOpts{
				Namespace: "communities",
				Subsystem: "broker",
				Name:      "connected",
				Help:      "1 when the RabbitMQ connection is up, 0 otherwise.",
			}),
		},

		Outbox: OutboxMetrics{
			RelayBatchSize: f.NewHistogram(prometheus.HistogramOpts{
				Namespace: "communities",
				Subsystem: "outbox",
				Name:      "relay_batch_size",
				Help:      "Number of entries reserved per relay iteration.",
				Buckets:   []float64{0, 1, 5, 10, 25, 50, 100, 250},
			}),

			TransitionsTotal: f.NewCounterVec(prometheus.CounterOpts{
				Namespace: "communities",
				Subsystem: "outbox",
				Name:      "transitions_total",
				Help:      "Outbox status transitions applied by the relay.",
			}, []string{"to"}), // sent|failed

			RequeuedTotal: f.NewCounter(prometheus.CounterOpts{
				Namespace: "communities",
				Subsystem: "outbox",
				Name:      "requeued_total",
				Help:      "FAILED entries put back to PENDING by the sweep.",
			}),

			GaveUpEntries: f.NewGauge(prometheus.GaugeOpts{
				Namespace: "communities",
				Subsystem: "outbox",
				Name:      "gave_up_entries",
				Help:      "FAILED entries at or above the attempt ceiling awaiting an operator.",
			}),

			PurgedTotal: f.NewCounter(prometheus.CounterOpts{
				Namespace: "communities",
				Subsystem: "outbox",
				Name:      "purged_total",
				Help:      "SENT entries removed by the retention purge.",
			}),
		},

		API: APIMetrics{
			HTTPRequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
				Namespace: "communities",
				Subsystem: "api",
				Name:      "http_requests_total",
				Help:      "Total HTTP requests by method, path and status.",
			}, []string{"method", "path", "status"}),

			HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "communities",
				Subsystem: "api",
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latency.",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			}, []string{"method", "path", "status"}),
		},

		Repo: RepoMetrics{
			RequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
				Namespace: "communities",
				Subsystem: "db",
				Name:      "requests_total",
				Help:      "Total DB requests by operation and result.",
			}, []string{"op", "result"}),

			DurationSeconds: f.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "communities",
				Subsystem: "db",
				Name:      "request_duration_seconds",
				Help:      "DB request duration in seconds.",
				// DB обычно быстрее/короче HTTP, но хвосты бывают.
				Buckets: []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			}, []string{"op", "result"}),
		},
	}
}
