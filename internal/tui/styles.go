package tui

import "github.com/charmbracelet/lipgloss"

var (
	colorPrimary  = lipgloss.AdaptiveColor{Light: "#7C3AED", Dark: "#A78BFA"}
	colorMuted    = lipgloss.AdaptiveColor{Light: "#6B7280", Dark: "#9CA3AF"}
	colorCritical = lipgloss.AdaptiveColor{Light: "#DC2626", Dark: "#F87171"}
	colorHigh     = lipgloss.AdaptiveColor{Light: "#D97706", Dark: "#FBBF24"}
	colorMedium   = lipgloss.AdaptiveColor{Light: "#2563EB", Dark: "#60A5FA"}
	colorOK       = lipgloss.AdaptiveColor{Light: "#059669", Dark: "#34D399"}

	styleTitle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorPrimary).
			Padding(0, 1)

	styleStatusBar = lipgloss.NewStyle().
			Foreground(colorMuted).
			Padding(0, 1)

	styleSelected = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorPrimary)

	styleCompleted = lipgloss.NewStyle().
			Strikethrough(true).
			Foreground(colorMuted)

	styleMuted = lipgloss.NewStyle().Foreground(colorMuted)

	styleDueCritical = lipgloss.NewStyle().Foreground(colorCritical).Bold(true)
	styleDueHigh     = lipgloss.NewStyle().Foreground(colorHigh)
	styleDueMedium   = lipgloss.NewStyle().Foreground(colorMedium)

	styleDetailHeader = lipgloss.NewStyle().
				Bold(true).
				Foreground(colorPrimary).
				BorderStyle(lipgloss.NormalBorder()).
				BorderBottom(true).
				BorderForeground(colorMuted)

	styleCommentAuthor = lipgloss.NewStyle().Bold(true)
	styleCommentTime   = lipgloss.NewStyle().Foreground(colorMuted)

	styleToastInfo = lipgloss.NewStyle().
			Foreground(colorOK).
			Padding(0, 1)
	styleToastWarning = lipgloss.NewStyle().
				Foreground(colorHigh).
				Padding(0, 1)
	styleToastError = lipgloss.NewStyle().
			Foreground(colorCritical).
			Bold(true).
			Padding(0, 1)

	styleInputPrompt = lipgloss.NewStyle().Foreground(colorPrimary).Bold(true)
)
