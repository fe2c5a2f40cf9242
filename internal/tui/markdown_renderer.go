package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/hylla/worktally/internal/domain"
)

// markdownRenderer renders markdown for terminal views and recreates the renderer when wrap width changes.
type markdownRenderer struct {
	width    int
	renderer *glamour.TermRenderer
}

// render converts markdown input into ANSI-styled terminal text with the requested wrap width.
func (r *markdownRenderer) render(markdown string, width int) string {
	markdown = strings.TrimSpace(markdown)
	if markdown == "" {
		return ""
	}

	wrapWidth := max(width, 24)
	if r.renderer == nil || r.width != wrapWidth {
		renderer, err := glamour.NewTermRenderer(
			glamour.WithStandardStyle("dark"),
			glamour.WithWordWrap(wrapWidth),
		)
		if err != nil {
			return markdown
		}
		r.renderer = renderer
		r.width = wrapWidth
	}

	rendered, err := r.renderer.Render(markdown)
	if err != nil {
		return markdown
	}
	return strings.TrimRight(rendered, "\n")
}

// trackableMarkdown builds the detail pane document for one trackable.
func trackableMarkdown(t domain.Trackable, now time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## %s\n\n", t.Title)
	fmt.Fprintf(&b, "`%s` · %s", t.ID, t.Kind)
	if t.AssigneeID != "" {
		fmt.Fprintf(&b, " · assignee **%s**", t.AssigneeID)
	}
	b.WriteString("\n\n")

	b.WriteString("| timer | state | stored | open | displayed |\n")
	b.WriteString("|---|---|---|---|---|\n")
	for _, r := range []domain.TimerReading{t.WorkReading(now), t.QAReading(now)} {
		state := r.State
		if state == "" {
			state = "-"
		}
		fmt.Fprintf(&b, "| %s | %s | %s | %s | %s |\n",
			r.Timer, state, formatSeconds(r.TotalSeconds), formatSeconds(r.OpenSeconds), formatSeconds(r.DisplayedSeconds))
	}
	if t.QAReviewerID != "" {
		fmt.Fprintf(&b, "\nReviewer: **%s**\n", t.QAReviewerID)
	}
	if desc := strings.TrimSpace(t.Description); desc != "" {
		b.WriteString("\n---\n\n")
		b.WriteString(desc)
		b.WriteString("\n")
	}
	return b.String()
}
