package ui

import (
	"fmt"
	"time"

	"github.com/mattn/go-runewidth"
)

// truncateWidth shortens s to at most maxWidth terminal cells, appending
// an ellipsis when anything was cut. Uses go-runewidth so wide
// characters count correctly.
func truncateWidth(s string, maxWidth int) string {
	if maxWidth <= 0 {
		return ""
	}
	if runewidth.StringWidth(s) <= maxWidth {
		return s
	}
	ellipsis := "…"
	if maxWidth <= runewidth.StringWidth(ellipsis) {
		return runewidth.Truncate(s, maxWidth, "")
	}
	return runewidth.Truncate(s, maxWidth-runewidth.StringWidth(ellipsis), "") + ellipsis
}

// formatClock formats a remaining duration as MM:SS, rolling over to
// H:MM:SS past the hour.
func formatClock(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int(d.Round(time.Second).Seconds())
	hours := total / 3600
	minutes := (total % 3600) / 60
	seconds := total % 60
	if hours > 0 {
		return fmt.Sprintf("%d:%02d:%02d", hours, minutes, seconds)
	}
	return fmt.Sprintf("%02d:%02d", minutes, seconds)
}
