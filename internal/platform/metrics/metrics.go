// Package metrics registers the service's Prometheus collectors on a
// dedicated registry and exposes them through an Echo handler.
package metrics

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service's collectors.
type Metrics struct {
	registry *prometheus.Registry

	MessagesReceived     prometheus.Counter
	MessagesUnrecognized prometheus.Counter
	TestResultsReceived  prometheus.Counter
	FeedReconnects       prometheus.Counter

	Predictions         prometheus.Counter
	PositivePredictions prometheus.Counter
	ClassifierErrors    prometheus.Counter

	PagesSent       prometheus.Counter
	PageRetries     prometheus.Counter
	AlertsExhausted prometheus.Counter
	AlertsRejected  prometheus.Counter

	AlertLatency    prometheus.Histogram
	BloodTestValues prometheus.Histogram
}

// New creates the collectors on a fresh registry together with the Go
// runtime and process collectors.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		MessagesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "messages_received_total",
			Help: "Number of HL7 messages received from the feed.",
		}),
		MessagesUnrecognized: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "messages_unrecognized_total",
			Help: "Number of messages that could not be decoded into a clinical event.",
		}),
		TestResultsReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "test_results_received_total",
			Help: "Number of lab result events applied to the store.",
		}),
		FeedReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "feed_reconnects_total",
			Help: "Number of times the MLLP feed connection was re-established.",
		}),
		Predictions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "predictions_total",
			Help: "Number of lab results scored by the classifier.",
		}),
		PositivePredictions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "positive_predictions_total",
			Help: "Number of positive risk decisions.",
		}),
		ClassifierErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "classifier_errors_total",
			Help: "Number of classifier calls that failed; each is treated as no-alert.",
		}),
		PagesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pages_sent_total",
			Help: "Number of page requests issued to the alerting channel.",
		}),
		PageRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "page_retries_total",
			Help: "Number of page requests that were retries of a failed attempt.",
		}),
		AlertsExhausted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "alerts_exhausted_total",
			Help: "Number of alert sequences that exhausted all delivery attempts.",
		}),
		AlertsRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "alerts_rejected_total",
			Help: "Number of alert sequences terminated by a channel rejection.",
		}),
		AlertLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "alert_latency_seconds",
			Help:    "Latency from lab result receipt to terminal alert state.",
			Buckets: prometheus.DefBuckets,
		}),
		BloodTestValues: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "blood_test_value",
			Help:    "Distribution of live creatinine result values.",
			Buckets: prometheus.LinearBuckets(50, 10, 10),
		}),
	}

	registry.MustRegister(
		m.MessagesReceived,
		m.MessagesUnrecognized,
		m.TestResultsReceived,
		m.FeedReconnects,
		m.Predictions,
		m.PositivePredictions,
		m.ClassifierErrors,
		m.PagesSent,
		m.PageRetries,
		m.AlertsExhausted,
		m.AlertsRejected,
		m.AlertLatency,
		m.BloodTestValues,
	)

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// Registry returns the underlying Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an Echo handler serving the text exposition format.
func (m *Metrics) Handler() echo.HandlerFunc {
	h := promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
	return echo.WrapHandler(h)
}
