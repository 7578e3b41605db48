package render

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"guidechat/internal/conversation"
	"guidechat/internal/models"
)

// EventPublisher is satisfied by redis.Client.
type EventPublisher interface {
	Publish(ctx context.Context, payload []byte) error
}

// Publisher mirrors render events onto a pub/sub channel as JSON Events.
type Publisher struct {
	encoder
	q *queue
}

func NewPublisher(pub EventPublisher, buffer, previewLen int, logger zerolog.Logger) *Publisher {
	logger = logger.With().Str("component", "publisher").Logger()
	handle := func(ctx context.Context, ev Event) error {
		payload, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("encode %s event: %w", ev.Name, err)
		}
		return pub.Publish(ctx, payload)
	}
	return &Publisher{
		encoder: encoder{previewLen: previewLen},
		q:       newQueue("redis", buffer, logger, handle),
	}
}

// Close flushes pending events.
func (p *Publisher) Close() { p.q.close() }

func (p *Publisher) MessageAppended(msg models.Message) { p.q.push(p.message(msg)) }

func (p *Publisher) TurnStarted(turn conversation.Turn) { p.q.push(p.turnStarted(turn)) }

func (p *Publisher) TurnFinished(turn conversation.Turn) { p.q.push(p.turnFinished(turn)) }

func (p *Publisher) StatusChanged(status models.SystemStatus) { p.q.push(p.status(status)) }

func (p *Publisher) DraftChanged(text string) { p.q.push(p.draft(text)) }
