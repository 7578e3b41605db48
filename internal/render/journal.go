package render

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"guidechat/internal/conversation"
	"guidechat/internal/models"
	"guidechat/internal/storage"
)

// TurnRecorder is satisfied by storage.TurnStore.
type TurnRecorder interface {
	RecordTurn(ctx context.Context, rec storage.TurnRecord) error
}

// Journal records the outcome of each finished turn. Question and answer
// text never reach the recorder.
type Journal struct {
	conversation.NopRenderer
	q *queue

	// source count of the last bot message, consumed by TurnFinished
	lastSources int
}

func NewJournal(rec TurnRecorder, logger zerolog.Logger) *Journal {
	logger = logger.With().Str("component", "journal").Logger()
	handle := func(ctx context.Context, ev Event) error {
		record, ok := ev.Data.(storage.TurnRecord)
		if !ok {
			return fmt.Errorf("unexpected journal payload %T", ev.Data)
		}
		return rec.RecordTurn(ctx, record)
	}
	return &Journal{q: newQueue("journal", 0, logger, handle)}
}

// Close flushes pending records.
func (j *Journal) Close() { j.q.close() }

func (j *Journal) MessageAppended(msg models.Message) {
	if msg.Sender == models.SenderBot {
		j.lastSources = len(msg.Sources)
	}
}

func (j *Journal) TurnStarted(conversation.Turn) {
	j.lastSources = 0
}

func (j *Journal) TurnFinished(turn conversation.Turn) {
	j.q.push(Event{Name: EventTurnFinished, Data: storage.TurnRecord{
		TurnID:      turn.ID,
		Outcome:     string(turn.Outcome),
		ErrorKind:   string(turn.ErrorKind),
		SourceCount: j.lastSources,
		Duration:    turn.Duration(),
		StartedAt:   turn.StartedAt,
		FinishedAt:  turn.FinishedAt,
	}})
	j.lastSources = 0
}
