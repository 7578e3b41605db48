package render

import (
	"sync"

	"github.com/rs/zerolog"

	"guidechat/internal/conversation"
	"guidechat/internal/metrics"
	"guidechat/internal/models"
)

// Broadcaster fans events out to any number of subscribers, typically SSE
// streams. A subscriber that falls behind loses events instead of blocking
// the conversation.
type Broadcaster struct {
	encoder
	mu     sync.Mutex
	subs   map[int]chan Event
	nextID int
	buffer int
	logger zerolog.Logger
}

func NewBroadcaster(buffer, previewLen int, logger zerolog.Logger) *Broadcaster {
	if buffer <= 0 {
		buffer = 64
	}
	return &Broadcaster{
		encoder: encoder{previewLen: previewLen},
		subs:    make(map[int]chan Event),
		buffer:  buffer,
		logger:  logger.With().Str("component", "broadcaster").Logger(),
	}
}

// Subscribe registers a new listener. The returned cancel func unregisters
// it and closes the channel; it is safe to call more than once.
func (b *Broadcaster) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, b.buffer)
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.mu.Unlock()
	metrics.StreamSubscribers.Inc()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
			metrics.StreamSubscribers.Dec()
		})
	}
}

// Subscribers reports the number of registered listeners.
func (b *Broadcaster) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

func (b *Broadcaster) publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			metrics.EventsDropped.WithLabelValues("sse").Inc()
			b.logger.Warn().Int("subscriber", id).Str("event", ev.Name).Msg("subscriber lagging, event dropped")
		}
	}
}

func (b *Broadcaster) MessageAppended(msg models.Message) { b.publish(b.message(msg)) }

func (b *Broadcaster) TurnStarted(turn conversation.Turn) { b.publish(b.turnStarted(turn)) }

func (b *Broadcaster) TurnFinished(turn conversation.Turn) { b.publish(b.turnFinished(turn)) }

func (b *Broadcaster) StatusChanged(status models.SystemStatus) { b.publish(b.status(status)) }

func (b *Broadcaster) DraftChanged(text string) { b.publish(b.draft(text)) }
