package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	FramesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "spotter",
		Name:      "frames_processed_total",
		Help:      "Total number of frames processed",
	}, []string{"stream_id"})

	FramesIngested = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "spotter",
		Name:      "frames_ingested_total",
		Help:      "Total number of frames extracted and queued by the ingestor",
	}, []string{"stream_id"})

	FramesDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "spotter",
		Name:      "frames_dropped_total",
		Help:      "Frames dropped before entering the pipeline, by reason",
	}, []string{"stream_id", "reason"})

	ObjectsFused = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "spotter",
		Name:      "objects_fused_total",
		Help:      "Total number of detections surviving per-frame fusion",
	}, []string{"stream_id"})

	VerificationOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "spotter",
		Name:      "verification_outcomes_total",
		Help:      "Verification scorer outcomes (accept, reject, pass_through)",
	}, []string{"outcome"})

	ActiveTracks = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "spotter",
		Name:      "active_tracks",
		Help:      "Number of live tracks per stream",
	}, []string{"stream_id"})

	PipelineFPS = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "spotter",
		Name:      "pipeline_fps",
		Help:      "Recent frame-processing rate per stream",
	}, []string{"stream_id"})

	InferenceDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "spotter",
		Name:      "inference_duration_seconds",
		Help:      "Duration of ML inference stages",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
	}, []string{"stage"})

	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "spotter",
		Name:      "queue_depth",
		Help:      "Number of pending frame tasks in queue",
	})

	ActiveStreams = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "spotter",
		Name:      "active_streams",
		Help:      "Number of currently active video streams",
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "spotter",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	WSConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "spotter",
		Name:      "ws_connections",
		Help:      "Number of active WebSocket connections",
	})
)
