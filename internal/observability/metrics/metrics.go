package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "safewatch_"

	// IngestResultSuccess labels a successful ingest.
	IngestResultSuccess = "success"
	// IngestResultError labels a failed ingest.
	IngestResultError = "error"
)

var (
	registerOnce sync.Once

	ingestRequests *prometheus.CounterVec
	ingestErrors   *prometheus.CounterVec
	ingestLatency  *prometheus.HistogramVec

	derivedEvents *prometheus.CounterVec

	queryRequests *prometheus.CounterVec
	queryLatency  *prometheus.HistogramVec

	mqttDropped *prometheus.CounterVec
)

// Init registers observability metrics. Safe to call more than once.
func Init() {
	registerOnce.Do(func() {
		ingestRequests = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "ingest_requests_total",
				Help: "Total ingest requests by result",
			},
			[]string{"result"},
		)
		ingestErrors = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "ingest_errors_total",
				Help: "Total ingest errors by reason",
			},
			[]string{"reason"},
		)
		ingestLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "ingest_latency_seconds",
				Help:    "Ingest latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)

		derivedEvents = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "derived_events_total",
				Help: "Total derived event log entries by type",
			},
			[]string{"type"},
		)

		queryRequests = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "query_requests_total",
				Help: "Total query requests by surface and result",
			},
			[]string{"surface", "result"},
		)
		queryLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "query_latency_seconds",
				Help:    "Query latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"surface"},
		)

		mqttDropped = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "mqtt_dropped_total",
				Help: "Total MQTT messages dropped by reason",
			},
			[]string{"reason"},
		)

		prometheus.MustRegister(
			ingestRequests,
			ingestErrors,
			ingestLatency,
			derivedEvents,
			queryRequests,
			queryLatency,
			mqttDropped,
		)
	})
}

// ObserveIngest records one ingest request.
func ObserveIngest(result string, elapsed time.Duration) {
	if ingestRequests == nil {
		return
	}
	ingestRequests.WithLabelValues(result).Inc()
	ingestLatency.WithLabelValues(result).Observe(elapsed.Seconds())
}

// IncIngestError counts an ingest error by reason.
func IncIngestError(reason string) {
	if ingestErrors == nil {
		return
	}
	ingestErrors.WithLabelValues(reason).Inc()
}

// IncDerivedEvent counts a derived event by type.
func IncDerivedEvent(eventType string) {
	if derivedEvents == nil {
		return
	}
	derivedEvents.WithLabelValues(eventType).Inc()
}

// ObserveQuery records one query request.
func ObserveQuery(surface, result string, elapsed time.Duration) {
	if queryRequests == nil {
		return
	}
	queryRequests.WithLabelValues(surface, result).Inc()
	queryLatency.WithLabelValues(surface).Observe(elapsed.Seconds())
}

// IncMQTTDropped counts a dropped MQTT message by reason.
func IncMQTTDropped(reason string) {
	if mqttDropped == nil {
		return
	}
	mqttDropped.WithLabelValues(reason).Inc()
}
