package ui

import (
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/muurk/keytune/internal/session"
)

// Palette. Teal is the keytune accent; state colors reuse the status ones.
var (
	PrimaryColor = lipgloss.Color("#14B8A6")
	SuccessColor = lipgloss.Color("#4ADE80")
	ErrorColor   = lipgloss.Color("#F87171")
	WarningColor = lipgloss.Color("#FBBF24")
	MutedColor   = lipgloss.Color("#71717A")
	TextColor    = lipgloss.Color("#F4F4F5")
)

// Content is clamped to this width range regardless of the terminal.
const (
	MinTerminalWidth = 60
	MaxContentWidth  = 100
)

var (
	// Header: title ("EXPORT"), invocation, then aligned parameters.
	HeaderTitleStyle      = lipgloss.NewStyle().Foreground(PrimaryColor).Bold(true).PaddingLeft(2)
	HeaderCommandStyle    = lipgloss.NewStyle().Foreground(MutedColor).PaddingLeft(2)
	HeaderParamKeyStyle   = lipgloss.NewStyle().Foreground(MutedColor).PaddingLeft(2)
	HeaderParamValueStyle = lipgloss.NewStyle().Foreground(TextColor)

	ProgressLabelStyle = lipgloss.NewStyle().Foreground(TextColor).PaddingLeft(2)

	StepCompleteStyle = lipgloss.NewStyle().Foreground(SuccessColor)
	StepRunningStyle  = lipgloss.NewStyle().Foreground(WarningColor)
	StepPendingStyle  = lipgloss.NewStyle().Foreground(MutedColor)
	StepNoteStyle     = lipgloss.NewStyle().Foreground(MutedColor).Italic(true)

	SuccessTitleStyle = lipgloss.NewStyle().Foreground(SuccessColor).Bold(true)
	ErrorTitleStyle   = lipgloss.NewStyle().Foreground(ErrorColor).Bold(true)
	WarningTitleStyle = lipgloss.NewStyle().Foreground(WarningColor).Bold(true)
	ErrorMessageStyle = lipgloss.NewStyle().Foreground(ErrorColor)

	ResultKeyStyle   = lipgloss.NewStyle().Foreground(MutedColor).Width(16)
	ResultValueStyle = lipgloss.NewStyle().Foreground(TextColor)

	TroubleshootingTitleStyle = lipgloss.NewStyle().Foreground(MutedColor).Bold(true)
	TroubleshootingItemStyle  = lipgloss.NewStyle().Foreground(MutedColor)

	// Unified diff lines
	DiffAddStyle    = lipgloss.NewStyle().Foreground(SuccessColor)
	DiffRemoveStyle = lipgloss.NewStyle().Foreground(ErrorColor)
	DiffHunkStyle   = lipgloss.NewStyle().Foreground(PrimaryColor)
	DiffFileStyle   = lipgloss.NewStyle().Foreground(TextColor).Bold(true)
)

// Status markers
const (
	StepMarkerComplete = "✓"
	StepMarkerRunning  = "●"
	StepMarkerPending  = "·"
	SuccessMarker      = "✓"
	FailureMarker      = "✗"
	WarningMarker      = "⚠"
)

// StateColor returns the color used for a connection state.
func StateColor(state session.State) lipgloss.Color {
	switch state {
	case session.Initialized:
		return SuccessColor
	case session.Connecting, session.Connected, session.Initializing:
		return WarningColor
	case session.InitializationError:
		return ErrorColor
	default:
		return MutedColor
	}
}

// StateStyle renders a connection state name in its color.
func StateStyle(state session.State) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(StateColor(state)).Bold(true)
}

// GetTerminalWidth returns the clamped stdout width, or MinTerminalWidth
// when stdout is not a terminal.
func GetTerminalWidth() int {
	w, _ := GetTerminalSize()
	return w
}

// GetTerminalSize returns the clamped width and the height of stdout.
func GetTerminalSize() (int, int) {
	w, h, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil {
		return MinTerminalWidth, 24
	}
	return clampWidth(w), h
}

// IsTerminal reports whether stdout is an interactive terminal.
func IsTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

func clampWidth(width int) int {
	return min(max(width, MinTerminalWidth), MaxContentWidth)
}

// boxStyle is the double-bordered result box in the given color.
func boxStyle(width int, color lipgloss.Color) lipgloss.Style {
	return lipgloss.NewStyle().
		Border(lipgloss.DoubleBorder()).
		BorderForeground(color).
		Width(clampWidth(width)-2).
		Padding(0, 2)
}

// HeaderBorderStyle frames command headers.
func HeaderBorderStyle(width int) lipgloss.Style {
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(PrimaryColor).
		Width(clampWidth(width) - 2)
}

// TroubleshootingBoxStyle frames the tips inside a result box.
func TroubleshootingBoxStyle(width int) lipgloss.Style {
	inner := clampWidth(width) - 12
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(MutedColor).
		Width(inner).
		Padding(0, 1).
		MarginLeft(3)
}

// RenderHorizontalDivider draws char width times in the accent color.
func RenderHorizontalDivider(width int, char string) string {
	return lipgloss.NewStyle().Foreground(PrimaryColor).Render(strings.Repeat(char, max(width, 1)))
}
