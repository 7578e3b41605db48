package render

import (
	"guidechat/internal/conversation"
	"guidechat/internal/metrics"
	"guidechat/internal/models"
)

// Metrics feeds conversation events into the Prometheus collectors.
type Metrics struct {
	conversation.NopRenderer
}

func (Metrics) MessageAppended(msg models.Message) {
	metrics.MessagesTotal.WithLabelValues(string(msg.Sender)).Inc()
}

func (Metrics) TurnStarted(conversation.Turn) {
	metrics.TurnPending.Set(1)
}

func (Metrics) TurnFinished(turn conversation.Turn) {
	metrics.TurnPending.Set(0)
	metrics.TurnsTotal.WithLabelValues(string(turn.Outcome)).Inc()
	metrics.TurnDuration.Observe(turn.Duration().Seconds())
	if turn.ErrorKind != "" {
		metrics.TurnErrorsTotal.WithLabelValues(string(turn.ErrorKind)).Inc()
	}
}

func (Metrics) StatusChanged(status models.SystemStatus) {
	reason := string(status.Reason)
	if status.Ready {
		reason = "ready"
		metrics.BackendReady.Set(1)
		metrics.KnowledgeBaseChunks.Set(float64(status.ChunkCount))
	} else {
		metrics.BackendReady.Set(0)
	}
	metrics.StatusChecksTotal.WithLabelValues(reason).Inc()
}
