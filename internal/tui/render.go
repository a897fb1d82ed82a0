package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/apexion-ai/wikichat/internal/provider"
	"github.com/apexion-ai/wikichat/internal/session"
)

// ---------- styles ----------

var (
	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214"))

	systemStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")).
			Italic(true)

	userStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")).
			Bold(true)

	assistantStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("2")).
			Bold(true)

	currentStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("2")).
			Bold(true)

	hintStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")).
			Italic(true)
)

// titleWidth is the display width of the title column in session lists.
const titleWidth = 34

// FormatSessionList renders the session sidebar: one line per session in
// insertion order, the current one marked with "*".
func FormatSessionList(sums []session.Summary, capacity int) string {
	if len(sums) == 0 {
		return "No sessions."
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Sessions (%d/%d):\n", len(sums), capacity)
	for _, s := range sums {
		marker := " "
		if s.Current {
			marker = currentStyle.Render("*")
		}
		title := runewidth.FillRight(runewidth.Truncate(s.Title, titleWidth, "..."), titleWidth)
		fmt.Fprintf(&sb, "%s %s  %s  %s  %d msgs\n",
			marker, s.ID, title, s.CreatedAt.Local().Format("2006-01-02 15:04"), s.Messages)
	}
	sb.WriteString(hintStyle.Render("Use /switch <id> or /delete <id>; ids may be abbreviated."))
	return sb.String()
}

// FormatHistory renders a session transcript with HH:MM timestamps.
func FormatHistory(s session.Session) string {
	if len(s.Messages) == 0 {
		return fmt.Sprintf("%s: no messages yet.", s.Title)
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "=== %s (%d messages) ===\n", s.Title, len(s.Messages))
	for _, m := range s.Messages {
		label := userStyle.Render("you")
		if m.Role == provider.RoleAssistant {
			label = assistantStyle.Render("assistant")
		}
		fmt.Fprintf(&sb, "[%s] %s: %s\n", m.DisplayTime(), label, m.Content)
	}
	sb.WriteString("===")
	return sb.String()
}

// renderMarkdown renders md for a terminal of the given width. On failure
// the raw text is returned.
func renderMarkdown(md string, width int) string {
	if width <= 0 {
		width = 100
	}
	wrap := width - 4
	if wrap < 20 {
		wrap = 20
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle("dark"),
		glamour.WithWordWrap(wrap),
	)
	if err != nil {
		return md
	}
	out, err := r.Render(md)
	if err != nil {
		return md
	}
	return strings.TrimRight(out, "\n")
}
