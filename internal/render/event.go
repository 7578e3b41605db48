package render

import (
	"time"

	"guidechat/internal/conversation"
	"guidechat/internal/models"
)

// Event names shared by the SSE stream and the Redis channel.
const (
	EventMessage      = "message"
	EventTurnStarted  = "turn_started"
	EventTurnFinished = "turn_finished"
	EventStatus       = "status"
	EventDraft        = "draft"
)

// Event is one serialized render event.
type Event struct {
	Name string `json:"event"`
	Data any    `json:"data"`
}

type SourcePayload struct {
	Text      string `json:"text"`
	Preview   string `json:"preview"`
	Page      int    `json:"page,omitempty"`
	Truncated bool   `json:"truncated,omitempty"`
}

type MessagePayload struct {
	ID        int64           `json:"id"`
	Sender    models.Sender   `json:"sender"`
	Label     string          `json:"label"`
	Text      string          `json:"text"`
	Sources   []SourcePayload `json:"sources,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

type TurnPayload struct {
	ID         string `json:"id"`
	Pending    bool   `json:"pending"`
	Outcome    string `json:"outcome,omitempty"`
	ErrorKind  string `json:"error_kind,omitempty"`
	DurationMS int64  `json:"duration_ms,omitempty"`
}

type StatusPayload struct {
	Online     bool   `json:"online"`
	ChunkCount int    `json:"chunk_count"`
	Reason     string `json:"reason,omitempty"`
	Text       string `json:"text"`
}

type DraftPayload struct {
	Text string `json:"text"`
}

// NewMessagePayload converts msg into its wire form, with source previews cut at previewLen.
func NewMessagePayload(msg models.Message, previewLen int) MessagePayload {
	payload := MessagePayload{
		ID:        msg.ID,
		Sender:    msg.Sender,
		Label:     SenderLabel(msg.Sender),
		Text:      msg.Text,
		CreatedAt: msg.CreatedAt,
	}
	for _, src := range msg.Sources {
		preview := Preview(src.Text, previewLen)
		payload.Sources = append(payload.Sources, SourcePayload{
			Text:      src.Text,
			Preview:   preview,
			Page:      src.Page,
			Truncated: preview != src.Text,
		})
	}
	return payload
}

func NewTurnPayload(turn conversation.Turn) TurnPayload {
	return TurnPayload{
		ID:         turn.ID,
		Pending:    turn.FinishedAt.IsZero(),
		Outcome:    string(turn.Outcome),
		ErrorKind:  string(turn.ErrorKind),
		DurationMS: turn.Duration().Milliseconds(),
	}
}

func NewStatusPayload(status models.SystemStatus) StatusPayload {
	return StatusPayload{
		Online:     status.Ready,
		ChunkCount: status.ChunkCount,
		Reason:     string(status.Reason),
		Text:       StatusText(status),
	}
}

// encoder turns renderer callbacks into Events.
type encoder struct {
	previewLen int
}

func (e encoder) message(msg models.Message) Event {
	return Event{Name: EventMessage, Data: NewMessagePayload(msg, e.previewLen)}
}

func (e encoder) turnStarted(turn conversation.Turn) Event {
	return Event{Name: EventTurnStarted, Data: NewTurnPayload(turn)}
}

func (e encoder) turnFinished(turn conversation.Turn) Event {
	return Event{Name: EventTurnFinished, Data: NewTurnPayload(turn)}
}

func (e encoder) status(status models.SystemStatus) Event {
	return Event{Name: EventStatus, Data: NewStatusPayload(status)}
}

func (e encoder) draft(text string) Event {
	return Event{Name: EventDraft, Data: DraftPayload{Text: text}}
}
