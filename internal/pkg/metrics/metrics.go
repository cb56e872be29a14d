package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CapturesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "modr_captures_total",
		Help: "Capture attempts by outcome (stored, skipped, invalid, failed, panic)",
	}, []string{"result"})

	CaptureSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "modr_capture_seconds",
		Help:    "Time spent in the capture transaction",
		Buckets: prometheus.DefBuckets,
	})

	EventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "modr_events_total",
		Help: "Notification events published by topic",
	}, []string{"topic"})

	Subscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "modr_subscribers",
		Help: "Currently connected realtime subscribers",
	})

	LatencyBucket = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "modr_http_latency_seconds",
		Help:    "Request latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})

	CleanupDeleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "modr_cleanup_deleted_total",
		Help: "Requests removed by cleanup operations",
	}, []string{"reason"})
)
