package session

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Streaming metrics, registered once at package init.
var (
	metricActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "streaming_active_sessions",
		Help: "Number of live streaming sessions",
	})

	metricTranslationsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "streaming_translations_started_total",
		Help: "Total accepted translation start requests",
	})

	metricBatchesDispatched = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streaming_batches_dispatched_total",
		Help: "Batch dispatches by outcome",
	}, []string{"outcome"}) // ok, timeout, error

	metricBatchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "streaming_batch_duration_seconds",
		Help:    "Wall time of a batch dispatch through the pipeline",
		Buckets: prometheus.DefBuckets,
	})

	metricPartialResults = promauto.NewCounter(prometheus.CounterOpts{
		Name: "streaming_partial_results_total",
		Help: "Partial results delivered to clients",
	})

	metricFramesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "streaming_frames_dropped_total",
		Help: "Frames dropped because the session buffer was full",
	})

	metricSessionCloses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streaming_session_closes_total",
		Help: "Session closes by websocket close code",
	}, []string{"code"})
)
