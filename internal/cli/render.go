package cli

import (
	"fmt"
	"io"
	"math"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/yiblet/clipkeep/internal/history"
	"github.com/yiblet/clipkeep/internal/store"
)

var (
	headerStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	idStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	pinStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	sensitiveStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	mediaStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
)

// renderHistory prints the non-empty sections of h. A width of 0 disables
// truncation.
func renderHistory(w io.Writer, h history.History, now time.Time, width int, reveal bool) {
	if width == 0 {
		width = math.MaxInt32
	}

	sections := []struct {
		title string
		items []store.Item
	}{
		{"Pinned", h.Pinned},
		{"Recent", h.Recent},
		{"Other", h.Other},
	}

	first := true
	for _, s := range sections {
		if len(s.items) == 0 {
			continue
		}
		if !first {
			fmt.Fprintln(w)
		}
		first = false

		fmt.Fprintf(w, "%s (%d)\n", headerStyle.Render(s.title), len(s.items))
		for _, it := range s.items {
			fmt.Fprintf(w, "  %s  %-4s %s\n",
				idStyle.Render(fmt.Sprintf("%4d", it.ID())),
				formatAge(it.Age(now)),
				renderPreview(it, width, reveal))
		}
	}
}

func renderPreview(it store.Item, width int, reveal bool) string {
	var text string
	switch {
	case it.IsSensitive() && reveal && !it.Kind().IsMedia():
		text = history.Truncate(history.Sanitize(it.Text()), width)
	case it.IsSensitive():
		text = sensitiveStyle.Render(history.Preview(it, width))
	case it.Kind().IsMedia():
		text = mediaStyle.Render(history.Preview(it, width))
	default:
		text = history.Preview(it, width)
	}

	if it.IsPinned() {
		text = pinStyle.Render("*") + " " + text
	}
	return text
}

// formatAge renders d in its largest whole unit
func formatAge(d time.Duration) string {
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", max(int(d.Seconds()), 0))
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd", int(d.Hours()/24))
	}
}
