package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// StatesProcessed counts processed notification state records by variant and result (ok|error|skipped).
	StatesProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "roomnotify_state_processed_total",
			Help: "Total number of processed room notification states",
		},
		[]string{"variant", "result"},
	)

	// UpdatesApplied counts notification updates written to the store by kind (new|change|remove).
	UpdatesApplied = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "roomnotify_updates_applied_total",
			Help: "Total number of notification updates applied",
		},
		[]string{"kind"},
	)

	// ProcessDuration measures how long processing one room takes.
	ProcessDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "roomnotify_process_duration_seconds",
			Help:    "Room notification processing latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"variant"},
	)

	// ExternalDelivered counts queued updates handed to the external sink.
	ExternalDelivered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "roomnotify_external_delivered_total",
			Help: "Total number of notification updates delivered externally",
		},
		[]string{"result"},
	)

	// StreamClients tracks connected websocket stream clients.
	StreamClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "roomnotify_stream_clients",
			Help: "Number of connected notification stream clients",
		},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "roomnotify_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
