package models

import "time"

// Sender identifies who produced a message.
type Sender string

const (
	SenderUser Sender = "user"
	SenderBot  Sender = "bot"
)

// SourceSnippet is a passage of retrieved context cited by a bot answer.
// Page is zero when the backend did not report one.
type SourceSnippet struct {
	Text string `json:"text"`
	Page int    `json:"page,omitempty"`
}

// Message is one display unit of the conversation. It is never mutated after creation.
type Message struct {
	ID        int64           `json:"id"`
	Sender    Sender          `json:"sender"`
	Text      string          `json:"text"`
	Sources   []SourceSnippet `json:"sources,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// Clone returns a copy that shares no slices with m.
func (m Message) Clone() Message {
	if len(m.Sources) > 0 {
		sources := make([]SourceSnippet, len(m.Sources))
		copy(sources, m.Sources)
		m.Sources = sources
	} else {
		m.Sources = nil
	}
	return m
}
