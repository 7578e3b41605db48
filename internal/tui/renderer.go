package tui

import (
	tea "github.com/charmbracelet/bubbletea"

	"guidechat/internal/conversation"
	"guidechat/internal/models"
)

type (
	messageMsg      struct{ msg models.Message }
	turnStartedMsg  struct{ turn conversation.Turn }
	turnFinishedMsg struct{ turn conversation.Turn }
	statusMsg       struct{ status models.SystemStatus }
	draftMsg        struct{ text string }
)

// Renderer forwards conversation events into a running Bubble Tea program.
// Events sent before Attach are dropped.
type Renderer struct {
	send func(tea.Msg)
}

func NewRenderer() *Renderer {
	return &Renderer{}
}

// Attach delivers events through p.Send. It must be called before the
// controller starts running. Send blocks until the program reads the event,
// so the Model never calls the controller from Update.
func (r *Renderer) Attach(p *tea.Program) {
	r.send = p.Send
}

func (r *Renderer) emit(msg tea.Msg) {
	if r.send != nil {
		r.send(msg)
	}
}

func (r *Renderer) MessageAppended(msg models.Message) { r.emit(messageMsg{msg: msg}) }

func (r *Renderer) TurnStarted(turn conversation.Turn) { r.emit(turnStartedMsg{turn: turn}) }

func (r *Renderer) TurnFinished(turn conversation.Turn) { r.emit(turnFinishedMsg{turn: turn}) }

func (r *Renderer) StatusChanged(status models.SystemStatus) { r.emit(statusMsg{status: status}) }

func (r *Renderer) DraftChanged(text string) { r.emit(draftMsg{text: text}) }
