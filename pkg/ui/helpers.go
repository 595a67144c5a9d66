package ui

import (
	"fmt"
	"path"
	"strings"

	"github.com/mattn/go-runewidth"

	"github.com/vanderheijden86/issuescope/pkg/model"
)

// truncateRunesHelper truncates a string to max visual width (cells), adding suffix if needed.
// Uses go-runewidth to handle wide characters correctly.
func truncateRunesHelper(s string, maxWidth int, suffix string) string {
	if maxWidth <= 0 {
		return ""
	}
	if runewidth.StringWidth(s) <= maxWidth {
		return s
	}
	suffixWidth := runewidth.StringWidth(suffix)
	if suffixWidth > maxWidth {
		return runewidth.Truncate(suffix, maxWidth, "")
	}
	return runewidth.Truncate(s, maxWidth-suffixWidth, "") + suffix
}

// truncate truncates s to maxWidth cells.
func truncate(s string, maxWidth int) string {
	return truncateRunesHelper(s, maxWidth, "…")
}

// padRight pads s with spaces to width cells.
func padRight(s string, width int) string {
	w := runewidth.StringWidth(s)
	if w >= width {
		return s
	}
	return s + strings.Repeat(" ", width-w)
}

// shortFile returns the file name of a component key ("proj:src/a.go" -> "a.go").
func shortFile(component string) string {
	if i := strings.Index(component, ":"); i >= 0 {
		component = component[i+1:]
	}
	return path.Base(component)
}

// formatEffort renders minutes the way the web API does ("1d 2h 5min").
// A day is eight hours.
func formatEffort(minutes int) string {
	if minutes <= 0 {
		return "0min"
	}
	days := minutes / (8 * 60)
	minutes -= days * 8 * 60
	hours := minutes / 60
	minutes -= hours * 60

	var parts []string
	if days > 0 {
		parts = append(parts, fmt.Sprintf("%dd", days))
	}
	if hours > 0 {
		parts = append(parts, fmt.Sprintf("%dh", hours))
	}
	if minutes > 0 {
		parts = append(parts, fmt.Sprintf("%dmin", minutes))
	}
	return strings.Join(parts, " ")
}

// locationLabel renders a location as "file:line".
func locationLabel(loc model.Location) string {
	name := shortFile(loc.Component)
	if loc.TextRange == nil {
		return name
	}
	return fmt.Sprintf("%s:%d", name, loc.TextRange.StartLine)
}
