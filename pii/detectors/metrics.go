package pii

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	metricsNamespace = "yaak"
	metricsSubsystem = "guard"
)

// Reasons a backend item or payload produced no match.
const (
	reasonMalformedPayload = "malformed_payload"
	reasonMalformedItem    = "malformed_item"
	reasonMissingField     = "missing_field"
	reasonSpanNotFound     = "span_not_found"
	reasonOutOfRange       = "offsets_out_of_range"
)

var (
	detectRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: metricsSubsystem,
		Name:      "detect_requests_total",
		Help:      "Detect calls by provider and outcome.",
	}, []string{"provider", "status"})

	detectDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Subsystem: metricsSubsystem,
		Name:      "detect_duration_seconds",
		Help:      "Wall time of Detect calls including the backend round trip.",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
	}, []string{"provider"})

	matchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: metricsSubsystem,
		Name:      "matches_total",
		Help:      "Normalized matches returned by provider and canonical type.",
	}, []string{"provider", "type"})

	droppedItems = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: metricsSubsystem,
		Name:      "dropped_items_total",
		Help:      "Backend items or payloads that did not yield a match.",
	}, []string{"parser", "reason"})
)

// dropItem records a backend item the parser could not turn into a match.
func dropItem(parser, reason string, attrs ...any) {
	droppedItems.WithLabelValues(parser, reason).Inc()
	slog.Debug("guard: dropped backend item",
		append([]any{"parser", parser, "reason", reason}, attrs...)...)
}
