package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Conversation metrics
	TurnsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "guidechat_turns_total",
			Help: "Finished conversation turns",
		},
		[]string{"outcome"}, // "answered", "failed" or "timed_out"
	)

	TurnErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "guidechat_turn_errors_total",
			Help: "Failed turns by transport error kind",
		},
		[]string{"kind"},
	)

	TurnDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "guidechat_turn_duration_seconds",
			Help:    "Time from submission to answer or error",
			Buckets: []float64{.25, .5, 1, 2.5, 5, 10, 20, 40, 80},
		},
	)

	MessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "guidechat_messages_total",
			Help: "Messages appended to the conversation",
		},
		[]string{"sender"},
	)

	TurnPending = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "guidechat_turn_pending",
			Help: "1 while a question is awaiting its answer",
		},
	)

	// Backend metrics
	BackendReady = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "guidechat_backend_ready",
			Help: "1 when the last status check reported a loaded knowledge base",
		},
	)

	KnowledgeBaseChunks = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "guidechat_knowledge_base_chunks",
			Help: "Chunk count reported by the last successful status check",
		},
	)

	StatusChecksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "guidechat_status_checks_total",
			Help: "Applied status checks",
		},
		[]string{"reason"}, // "ready", "backend_unreachable", "knowledge_base_unavailable"
	)

	// Sink metrics
	EventsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "guidechat_events_dropped_total",
			Help: "Render events dropped because a sink was full",
		},
		[]string{"sink"},
	)

	StreamSubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "guidechat_stream_subscribers",
			Help: "Open server-sent event streams",
		},
	)
)
