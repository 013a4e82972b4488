// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDuration tracks HTTP request duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	// RequestsTotal tracks total HTTP requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// LLMStreamDuration tracks LLM streaming response duration.
	LLMStreamDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "llm_stream_duration_seconds",
			Help:    "LLM streaming response duration",
			Buckets: []float64{.25, .5, 1, 2, 5, 10, 20, 30, 60},
		},
		[]string{"provider", "outcome"},
	)

	// LLMChunksTotal tracks streamed text fragments.
	LLMChunksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llm_stream_chunks_total",
			Help: "Total text fragments received from LLM streams",
		},
		[]string{"provider"},
	)

	// LLMTokensTotal tracks total LLM tokens processed.
	LLMTokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llm_tokens_total",
			Help: "Total LLM tokens processed",
		},
		[]string{"provider", "direction"},
	)

	// ChatSubmitsTotal tracks submit attempts by outcome.
	ChatSubmitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_submits_total",
			Help: "Chat submit attempts by outcome",
		},
		[]string{"outcome"},
	)

	// ChatSessionsActive tracks live chat sessions.
	ChatSessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chat_sessions_active",
			Help: "Number of live chat sessions",
		},
	)

	// SubscribersActive tracks connected transcript subscribers.
	SubscribersActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "chat_subscribers_active",
			Help: "Number of connected transcript subscribers",
		},
		[]string{"transport"},
	)

	// SubscribersDropped tracks subscribers dropped for falling behind.
	SubscribersDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_subscribers_dropped_total",
			Help: "Subscribers disconnected because their queue was full",
		},
	)

	// CatalogProducts tracks the number of products currently loaded.
	CatalogProducts = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "catalog_products",
			Help: "Number of products in the catalog",
		},
	)

	// CatalogReloadsTotal tracks catalog reloads by result.
	CatalogReloadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_reloads_total",
			Help: "Catalog reload attempts by result",
		},
		[]string{"result"},
	)

	// AggregationsTotal tracks product aggregations by caller.
	AggregationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_aggregations_total",
			Help: "Product price aggregations computed",
		},
		[]string{"operation"},
	)

	// EventsSkippedTotal tracks session events the forwarder missed after
	// falling behind.
	EventsSkippedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_events_skipped_total",
			Help: "Session events not published because the forwarder fell behind",
		},
	)

	// EventsPublishedTotal tracks session events forwarded to NATS.
	EventsPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_events_published_total",
			Help: "Session events published to the event bus",
		},
		[]string{"type", "result"},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordLLMStream records metrics for a finished LLM stream.
func RecordLLMStream(provider, outcome string, duration float64, tokensIn, tokensOut int) {
	LLMStreamDuration.WithLabelValues(provider, outcome).Observe(duration)
	LLMTokensTotal.WithLabelValues(provider, "in").Add(float64(tokensIn))
	LLMTokensTotal.WithLabelValues(provider, "out").Add(float64(tokensOut))
}

// RecordChunk counts one streamed fragment.
func RecordChunk(provider string) {
	LLMChunksTotal.WithLabelValues(provider).Inc()
}

// RecordSubmit counts a submit attempt.
func RecordSubmit(outcome string) {
	ChatSubmitsTotal.WithLabelValues(outcome).Inc()
}

// IncrementSubscribers increments the subscriber gauge for transport.
func IncrementSubscribers(transport string) {
	SubscribersActive.WithLabelValues(transport).Inc()
}

// DecrementSubscribers decrements the subscriber gauge for transport.
func DecrementSubscribers(transport string) {
	SubscribersActive.WithLabelValues(transport).Dec()
}

// RecordCatalogReload records a catalog load and the resulting size.
func RecordCatalogReload(ok bool, products int) {
	if !ok {
		CatalogReloadsTotal.WithLabelValues("error").Inc()
		return
	}
	CatalogReloadsTotal.WithLabelValues("ok").Inc()
	CatalogProducts.Set(float64(products))
}

// RecordAggregations counts n product aggregations for operation.
func RecordAggregations(operation string, n int) {
	AggregationsTotal.WithLabelValues(operation).Add(float64(n))
}

// RecordEventPublished counts a session event sent to the event bus.
func RecordEventPublished(kind string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	EventsPublishedTotal.WithLabelValues(kind, result).Inc()
}
