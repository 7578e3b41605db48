package render

import (
	"guidechat/internal/conversation"
	"guidechat/internal/models"
)

// Multi forwards every event to each renderer in order.
type Multi []conversation.Renderer

// NewMulti drops nil renderers.
func NewMulti(renderers ...conversation.Renderer) Multi {
	out := make(Multi, 0, len(renderers))
	for _, r := range renderers {
		if r != nil {
			out = append(out, r)
		}
	}
	return out
}

func (m Multi) MessageAppended(msg models.Message) {
	for _, r := range m {
		r.MessageAppended(msg.Clone())
	}
}

func (m Multi) TurnStarted(turn conversation.Turn) {
	for _, r := range m {
		r.TurnStarted(turn)
	}
}

func (m Multi) TurnFinished(turn conversation.Turn) {
	for _, r := range m {
		r.TurnFinished(turn)
	}
}

func (m Multi) StatusChanged(status models.SystemStatus) {
	for _, r := range m {
		r.StatusChanged(status)
	}
}

func (m Multi) DraftChanged(text string) {
	for _, r := range m {
		r.DraftChanged(text)
	}
}
