// Package health turns the backend status report into a UI-facing SystemStatus.
package health

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"guidechat/internal/models"
	"guidechat/internal/transport"
)

// Checker is the transport capability the monitor needs.
type Checker interface {
	CheckHealth(ctx context.Context) (*transport.Health, error)
}

// Monitor evaluates backend readiness on demand. It never schedules re-checks itself.
type Monitor struct {
	checker Checker
	logger  zerolog.Logger
	now     func() time.Time
}

func NewMonitor(checker Checker, logger zerolog.Logger) *Monitor {
	return &Monitor{
		checker: checker,
		logger:  logger.With().Str("component", "health").Logger(),
		now:     time.Now,
	}
}

// Evaluate performs exactly one status request. Every failure degrades to a
// not-ready status flagged as unreachable; nothing is returned as an error.
func (m *Monitor) Evaluate(ctx context.Context) models.SystemStatus {
	status := models.SystemStatus{CheckedAt: m.now()}

	h, err := m.checker.CheckHealth(ctx)
	if err != nil {
		m.logger.Warn().Err(err).Msg("status check failed")
		status.Reason = models.ReasonBackendUnreachable
		return status
	}

	status.Ready = h.Ready
	if h.Ready {
		status.ChunkCount = h.ChunkCount
	} else {
		status.Reason = models.ReasonKnowledgeBaseUnavailable
	}
	m.logger.Info().
		Bool("ready", status.Ready).
		Int("chunks", h.ChunkCount).
		Msg("status check completed")
	return status
}
