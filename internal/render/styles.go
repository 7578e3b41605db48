package render

import (
	"github.com/charmbracelet/lipgloss"

	"guidechat/internal/models"
)

// Styles shared by the line-mode terminal and the interactive TUI.
var (
	UserLabelStyle  = lipgloss.NewStyle().Bold(true)
	BotLabelStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	ErrorStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	SourceHeadStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("13"))
	SourceStyle     = lipgloss.NewStyle().Faint(true)
	OnlineStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	OfflineStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	HintStyle       = lipgloss.NewStyle().Faint(true)
)

// Indicator is the online/offline dot of the status bar.
func Indicator(online bool) string {
	if online {
		return OnlineStyle.Render("● online")
	}
	return OfflineStyle.Render("● offline")
}

// Label renders the sender label of a message.
func Label(sender models.Sender) string {
	if sender == models.SenderUser {
		return UserLabelStyle.Render(SenderLabel(sender) + ":")
	}
	return BotLabelStyle.Render(SenderLabel(sender) + ":")
}
