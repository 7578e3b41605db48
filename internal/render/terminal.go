package render

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"guidechat/internal/conversation"
	"guidechat/internal/models"
)

// Terminal renders the conversation as plain lines for the REPL.
// Backend text is sanitized before it reaches the terminal.
type Terminal struct {
	mu         sync.Mutex
	out        io.Writer
	previewLen int
	prompt     string
}

func NewTerminal(out io.Writer, previewLen int) *Terminal {
	return &Terminal{out: out, previewLen: previewLen, prompt: "> "}
}

// Prompt prints the input prompt.
func (t *Terminal) Prompt() {
	t.write(t.prompt)
}

// Hint prints a local notice followed by the prompt.
func (t *Terminal) Hint(text string) {
	t.write(HintStyle.Render(text) + "\n")
	t.Prompt()
}

func (t *Terminal) MessageAppended(msg models.Message) {
	if msg.Sender == models.SenderUser {
		// the user's own line is already on screen
		return
	}
	var b strings.Builder
	b.WriteString(Label(msg.Sender))
	b.WriteString(" ")
	b.WriteString(Sanitize(msg.Text))
	b.WriteString("\n")
	if len(msg.Sources) > 0 {
		b.WriteString("  ")
		b.WriteString(SourceHeadStyle.Render("Related sources:"))
		b.WriteString("\n")
		for _, src := range msg.Sources {
			b.WriteString("  - ")
			b.WriteString(SourceStyle.Render(SourceLine(src, t.previewLen)))
			b.WriteString("\n")
		}
	}
	t.write(b.String())
}

func (t *Terminal) TurnStarted(conversation.Turn) {
	t.write(HintStyle.Render("Assistant is thinking...") + "\n")
}

func (t *Terminal) TurnFinished(conversation.Turn) {
	t.write("\n")
	t.Prompt()
}

func (t *Terminal) StatusChanged(status models.SystemStatus) {
	line := Indicator(status.Ready) + "  " + StatusText(status)
	if !status.Ready {
		line += "\n" + HintStyle.Render("Input is disabled. Type /refresh to check again.")
	}
	t.write(line + "\n")
}

// DraftChanged echoes quick asks, which never went through the prompt.
func (t *Terminal) DraftChanged(text string) {
	if text == "" {
		return
	}
	t.write(fmt.Sprintf("%s%s\n", t.prompt, Sanitize(text)))
}

func (t *Terminal) write(s string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, _ = io.WriteString(t.out, s)
}
