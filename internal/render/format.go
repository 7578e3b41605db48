// Package render projects conversation events onto displays and event sinks.
package render

import (
	"fmt"
	"strings"
	"unicode"

	"guidechat/internal/models"
)

// DefaultPreviewLength is the number of characters of a source shown before truncation.
const DefaultPreviewLength = 150

const ellipsis = "..."

// Preview shortens text to limit characters, appending an ellipsis when it cut anything.
func Preview(text string, limit int) string {
	if limit <= 0 {
		limit = DefaultPreviewLength
	}
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit]) + ellipsis
}

// SourceLine is the display form of one source: its preview plus the page when known.
func SourceLine(src models.SourceSnippet, limit int) string {
	line := Preview(Sanitize(src.Text), limit)
	if src.Page != 0 {
		line += fmt.Sprintf(" (page %d)", src.Page)
	}
	return line
}

// SenderLabel names the author of a message bubble.
func SenderLabel(sender models.Sender) string {
	if sender == models.SenderUser {
		return "You"
	}
	return "Assistant"
}

// StatusText describes a SystemStatus for the status bar.
func StatusText(status models.SystemStatus) string {
	switch {
	case status.Ready:
		return fmt.Sprintf("System ready (%d chunks loaded)", status.ChunkCount)
	case status.Reason == models.ReasonKnowledgeBaseUnavailable:
		return "Knowledge base could not be loaded"
	default:
		return "Cannot reach the server"
	}
}

// UnknownCommandHint answers a slash command that is neither a control command
// nor a quick ask in range.
func UnknownCommandHint(cmd string, quickAsks int) string {
	hint := fmt.Sprintf("Unknown command %s. Use /refresh or /quit", Sanitize(cmd))
	if quickAsks > 0 {
		hint += fmt.Sprintf(", or /1 to /%d for quick asks", quickAsks)
	}
	return hint + "."
}

// Sanitize drops control characters (escape sequences included) from
// untrusted text so it is shown literally. Newlines and tabs survive.
func Sanitize(text string) string {
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, text)
}
