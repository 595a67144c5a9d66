package ui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/vanderheijden86/issuescope/pkg/model"
)

// ══════════════════════════════════════════════════════════════════════════════
// COLOR PALETTE - Adaptive colors for light and dark terminals
// ══════════════════════════════════════════════════════════════════════════════

var (
	ColorText        = lipgloss.AdaptiveColor{Light: "#1A1A1A", Dark: "#F8F8F2"}
	ColorSubtext     = lipgloss.AdaptiveColor{Light: "#555555", Dark: "#BFBFBF"}
	ColorMuted       = lipgloss.AdaptiveColor{Light: "#666666", Dark: "#6272A4"}
	ColorBgHighlight = lipgloss.AdaptiveColor{Light: "#D0D0D0", Dark: "#44475A"}

	ColorPrimary = lipgloss.AdaptiveColor{Light: "#6B47D9", Dark: "#BD93F9"}
	ColorInfo    = lipgloss.AdaptiveColor{Light: "#006080", Dark: "#8BE9FD"}
	ColorSuccess = lipgloss.AdaptiveColor{Light: "#007700", Dark: "#50FA7B"}
	ColorWarning = lipgloss.AdaptiveColor{Light: "#B06800", Dark: "#FFB86C"}
	ColorDanger  = lipgloss.AdaptiveColor{Light: "#CC0000", Dark: "#FF5555"}

	// Severity colors
	ColorSevBlocker  = lipgloss.AdaptiveColor{Light: "#CC0000", Dark: "#FF5555"}
	ColorSevCritical = lipgloss.AdaptiveColor{Light: "#B06800", Dark: "#FFB86C"}
	ColorSevMajor    = lipgloss.AdaptiveColor{Light: "#808000", Dark: "#F1FA8C"}
	ColorSevMinor    = lipgloss.AdaptiveColor{Light: "#006080", Dark: "#8BE9FD"}
	ColorSevInfo     = lipgloss.AdaptiveColor{Light: "#555555", Dark: "#6272A4"}
)

// ══════════════════════════════════════════════════════════════════════════════
// PANEL STYLES
// ══════════════════════════════════════════════════════════════════════════════

var (
	PanelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorBgHighlight)

	FocusedPanelStyle = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(ColorPrimary)

	headerStyle   = lipgloss.NewStyle().Bold(true).Foreground(ColorPrimary)
	mutedStyle    = lipgloss.NewStyle().Foreground(ColorMuted)
	subtextStyle  = lipgloss.NewStyle().Foreground(ColorSubtext)
	selectedStyle = lipgloss.NewStyle().Background(ColorBgHighlight).Bold(true)
	checkStyle    = lipgloss.NewStyle().Foreground(ColorSuccess).Bold(true)
	errorStyle    = lipgloss.NewStyle().Foreground(ColorDanger).Bold(true)
	statusStyle   = lipgloss.NewStyle().Foreground(ColorInfo)
	locationStyle = lipgloss.NewStyle().Foreground(ColorWarning).Bold(true)
)

// severityStyle returns the foreground style of a severity badge.
func severityStyle(s model.Severity) lipgloss.Style {
	var fg lipgloss.AdaptiveColor
	switch s {
	case model.SeverityBlocker:
		fg = ColorSevBlocker
	case model.SeverityCritical:
		fg = ColorSevCritical
	case model.SeverityMajor:
		fg = ColorSevMajor
	case model.SeverityMinor:
		fg = ColorSevMinor
	default:
		fg = ColorSevInfo
	}
	return lipgloss.NewStyle().Foreground(fg).Bold(true)
}

// RenderSeverityBadge returns a fixed-width severity badge.
func RenderSeverityBadge(s model.Severity) string {
	label := "INFO"
	switch s {
	case model.SeverityBlocker:
		label = "BLKR"
	case model.SeverityCritical:
		label = "CRIT"
	case model.SeverityMajor:
		label = "MAJR"
	case model.SeverityMinor:
		label = "MINR"
	}
	return severityStyle(s).Render(label)
}

// typeIcon returns a one-cell marker for an issue type.
func typeIcon(t model.IssueType) string {
	switch t {
	case model.TypeBug:
		return "B"
	case model.TypeVulnerability:
		return "V"
	case model.TypeSecurityHotspot:
		return "H"
	}
	return "S"
}
