package render

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"guidechat/internal/metrics"
)

const sinkTimeout = 5 * time.Second

// queue hands events to one background goroutine so sinks doing I/O never
// stall the controller loop. Events pushed while the queue is full are dropped.
type queue struct {
	name   string
	handle func(ctx context.Context, ev Event) error
	logger zerolog.Logger

	mu     sync.RWMutex
	closed bool
	events chan Event
	wg     sync.WaitGroup
}

func newQueue(name string, size int, logger zerolog.Logger, handle func(context.Context, Event) error) *queue {
	if size <= 0 {
		size = 64
	}
	q := &queue{
		name:   name,
		handle: handle,
		logger: logger,
		events: make(chan Event, size),
	}
	q.wg.Add(1)
	go q.loop()
	return q
}

func (q *queue) loop() {
	defer q.wg.Done()
	for ev := range q.events {
		ctx, cancel := context.WithTimeout(context.Background(), sinkTimeout)
		if err := q.handle(ctx, ev); err != nil {
			q.logger.Warn().Err(err).Str("sink", q.name).Str("event", ev.Name).Msg("sink write failed")
		}
		cancel()
	}
}

func (q *queue) push(ev Event) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return
	}
	select {
	case q.events <- ev:
	default:
		metrics.EventsDropped.WithLabelValues(q.name).Inc()
		q.logger.Warn().Str("sink", q.name).Str("event", ev.Name).Msg("sink queue full, event dropped")
	}
}

// close stops accepting events and waits until queued ones are handled.
func (q *queue) close() {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.events)
	}
	q.mu.Unlock()
	q.wg.Wait()
}
