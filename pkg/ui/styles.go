package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// ══════════════════════════════════════════════════════════════════════════════
// COLOR PALETTE - Adaptive colors for light and dark terminals
// ══════════════════════════════════════════════════════════════════════════════

var (
	ColorBg          = lipgloss.AdaptiveColor{Light: "#FFFFFF", Dark: "#282A36"}
	ColorBgSubtle    = lipgloss.AdaptiveColor{Light: "#E8E8E8", Dark: "#363949"}
	ColorBgHighlight = lipgloss.AdaptiveColor{Light: "#D0D0D0", Dark: "#44475A"}
	ColorText        = lipgloss.AdaptiveColor{Light: "#1A1A1A", Dark: "#F8F8F2"}
	ColorSubtext     = lipgloss.AdaptiveColor{Light: "#555555", Dark: "#BFBFBF"}
	ColorMuted       = lipgloss.AdaptiveColor{Light: "#666666", Dark: "#6272A4"}

	ColorPrimary = lipgloss.AdaptiveColor{Light: "#6B47D9", Dark: "#BD93F9"}
	ColorSuccess = lipgloss.AdaptiveColor{Light: "#007700", Dark: "#50FA7B"}
	ColorWarning = lipgloss.AdaptiveColor{Light: "#B06800", Dark: "#FFB86C"}
	ColorDanger  = lipgloss.AdaptiveColor{Light: "#CC0000", Dark: "#FF5555"}

	// Phase colors
	ColorPhaseReady   = lipgloss.AdaptiveColor{Light: "#555555", Dark: "#6272A4"}
	ColorPhaseWorking = lipgloss.AdaptiveColor{Light: "#CC0000", Dark: "#FF5555"}
	ColorPhaseBreak   = lipgloss.AdaptiveColor{Light: "#007700", Dark: "#50FA7B"}
	ColorPhaseFrozen  = lipgloss.AdaptiveColor{Light: "#B06800", Dark: "#FFB86C"}

	// Phase background colors (for badges)
	ColorPhaseReadyBg   = lipgloss.AdaptiveColor{Light: "#E2E3E5", Dark: "#2A2A3D"}
	ColorPhaseWorkingBg = lipgloss.AdaptiveColor{Light: "#F8D7DA", Dark: "#3D1A1A"}
	ColorPhaseBreakBg   = lipgloss.AdaptiveColor{Light: "#D4EDDA", Dark: "#1A3D2A"}
	ColorPhaseFrozenBg  = lipgloss.AdaptiveColor{Light: "#FFE8CC", Dark: "#3D2A1A"}
)

// Progress bar gradients per phase, hex pairs for bubbles/progress.
const (
	WorkGradientStart   = "#FF5555"
	WorkGradientEnd     = "#FFB86C"
	BreakGradientStart  = "#50FA7B"
	BreakGradientEnd    = "#8BE9FD"
	FrozenGradientStart = "#FFB86C"
	FrozenGradientEnd   = "#F1FA8C"
)

// ══════════════════════════════════════════════════════════════════════════════
// PANEL STYLES
// ══════════════════════════════════════════════════════════════════════════════

var (
	// PanelStyle frames the floating timer panel.
	PanelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorBgHighlight).
			Padding(0, 1)

	// ModalStyle frames the panic modal; louder border so it reads as
	// an interruption.
	ModalStyle = lipgloss.NewStyle().
			Border(lipgloss.DoubleBorder()).
			BorderForeground(ColorWarning).
			Padding(1, 2)

	// BlockedStyle frames the full-screen blocking overlay.
	BlockedStyle = lipgloss.NewStyle().
			Border(lipgloss.ThickBorder()).
			BorderForeground(ColorDanger).
			Padding(1, 3)

	// HelpStyle renders key hints.
	HelpStyle = lipgloss.NewStyle().Foreground(ColorMuted)

	// NoticeStyle renders transient status messages.
	NoticeStyle = lipgloss.NewStyle().Foreground(ColorWarning)

	// TimeStyle renders the countdown readout.
	TimeStyle = lipgloss.NewStyle().Bold(true).Foreground(ColorText)

	// TitleStyle renders the panel title line.
	TitleStyle = lipgloss.NewStyle().Bold(true).Foreground(ColorPrimary)
)

// RenderPhaseBadge returns a styled badge for the current timer phase.
func RenderPhaseBadge(phase string, frozen bool) string {
	var fg, bg lipgloss.AdaptiveColor
	var label string

	switch {
	case frozen:
		fg, bg, label = ColorPhaseFrozen, ColorPhaseFrozenBg, "PANIC"
	case phase == "WORKING":
		fg, bg, label = ColorPhaseWorking, ColorPhaseWorkingBg, "WORK"
	case phase == "BREAK":
		fg, bg, label = ColorPhaseBreak, ColorPhaseBreakBg, "BREAK"
	default:
		fg, bg, label = ColorPhaseReady, ColorPhaseReadyBg, "READY"
	}

	return lipgloss.NewStyle().
		Foreground(fg).
		Background(bg).
		Bold(true).
		Padding(0, 1).
		Render(label)
}

// RenderDivider renders a horizontal divider line.
func RenderDivider(width int) string {
	if width <= 0 {
		return ""
	}
	return lipgloss.NewStyle().
		Foreground(ColorBgHighlight).
		Render(strings.Repeat("─", width))
}
