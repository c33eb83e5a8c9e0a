package ui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/wifibear/rsn/pkg/rsn/rsna"
)

var (
	// Colors
	colorBear   = lipgloss.Color("#FF6B35")
	colorGreen  = lipgloss.Color("#00B894")
	colorRed    = lipgloss.Color("#D63031")
	colorYellow = lipgloss.Color("#FDCB6E")
	colorBlue   = lipgloss.Color("#0984E3")
	colorPurple = lipgloss.Color("#6C5CE7")
	colorCyan   = lipgloss.Color("#00CEC9")
	colorGray   = lipgloss.Color("#636E72")

	statusBarStyle = lipgloss.NewStyle().
			Foreground(colorGray).
			PaddingRight(1)

	// Table styles
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorCyan).
			PaddingLeft(2)

	// Peer colors
	apStyle  = lipgloss.NewStyle().Foreground(colorBear)
	staStyle = lipgloss.NewStyle().Foreground(colorPurple)

	// Step status
	successStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorGreen)

	failStyle = lipgloss.NewStyle().
			Foreground(colorRed)

	warnStyle = lipgloss.NewStyle().
			Foreground(colorYellow)

	progressStyle = lipgloss.NewStyle().
			Foreground(colorBlue)

	// Key bindings help
	keyStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorYellow)

	helpStyle = lipgloss.NewStyle().
			Foreground(colorGray)

	// Borders
	borderStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorGray)

	// Banner
	bannerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorBear)

	// Info text
	infoStyle = lipgloss.NewStyle().
			Foreground(colorCyan)

	dimStyle = lipgloss.NewStyle().
			Foreground(colorGray)
)

// PeerLabel returns the short styled name of a role.
func PeerLabel(r rsna.Role) string {
	switch r {
	case rsna.Authenticator:
		return apStyle.Render("AP ")
	case rsna.Supplicant:
		return staStyle.Render("STA")
	default:
		return dimStyle.Render("???")
	}
}

// Arrow renders the direction of a frame sent by r.
func Arrow(r rsna.Role) string {
	if r == rsna.Authenticator {
		return PeerLabel(rsna.Authenticator) + " -> " + PeerLabel(rsna.Supplicant)
	}
	return PeerLabel(rsna.Supplicant) + " -> " + PeerLabel(rsna.Authenticator)
}
