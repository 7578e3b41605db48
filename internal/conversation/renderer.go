package conversation

import "guidechat/internal/models"

// Renderer projects state transitions onto a display. The Controller calls
// it from its loop goroutine only, one event at a time. Implementations must
// not block for long and must not call back into the Controller synchronously.
type Renderer interface {
	MessageAppended(msg models.Message)
	TurnStarted(turn Turn)
	TurnFinished(turn Turn)
	StatusChanged(status models.SystemStatus)
	DraftChanged(text string)
}

// NopRenderer discards every event.
type NopRenderer struct{}

func (NopRenderer) MessageAppended(models.Message) {}

func (NopRenderer) TurnStarted(Turn) {}

func (NopRenderer) TurnFinished(Turn) {}

func (NopRenderer) StatusChanged(models.SystemStatus) {}

func (NopRenderer) DraftChanged(string) {}
