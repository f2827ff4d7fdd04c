package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/samcharles93/llamachat/internal/session"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	promptStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("4")).Bold(true)
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))

	stateColors = map[session.State]string{
		session.Unloaded:     "241",
		session.Loading:      "214",
		session.Loaded:       "42",
		session.Generating:   "39",
		session.Benchmarking: "208",
		session.Unloading:    "214",
	}
)

func (m Model) View() string {
	if m.quitting {
		return ""
	}
	width := m.width
	if width <= 0 {
		width = 80
	}

	stateStyle := lipgloss.NewStyle().Foreground(lipgloss.Color(stateColors[m.view.State]))
	header := titleStyle.Render("llamachat") + " " + stateStyle.Render("● "+m.view.State.String())

	input := promptStyle.Render("> ") + m.view.Draft
	if !m.view.State.Busy() {
		input += dimStyle.Render("█")
	}

	var footer []string
	if m.status != "" {
		style := okStyle
		if m.statusErr {
			style = errorStyle
		}
		footer = append(footer, style.Render(truncate(m.status, width)))
	}
	help := "enter send · ctrl+l clear · ctrl+c quit · /help"
	if m.opts.Version != "" {
		help += " · " + m.opts.Version
	}
	footer = append(footer, dimStyle.Render(truncate(help, width)))

	lines := renderTranscript(m.view.Transcript, width)
	if m.height > 0 {
		avail := m.height - 3 - len(footer)
		if avail < 0 {
			avail = 0
		}
		if len(lines) > avail {
			lines = lines[len(lines)-avail:]
		}
	}

	var b strings.Builder
	b.WriteString(header)
	b.WriteString("\n")
	for _, l := range lines {
		b.WriteString(l)
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(input)
	for _, l := range footer {
		b.WriteString("\n")
		b.WriteString(l)
	}
	return b.String()
}

// renderTranscript wraps every entry to width and returns display lines.
func renderTranscript(entries []string, width int) []string {
	if len(entries) == 0 {
		return []string{dimStyle.Render("No messages yet. Type /load to load the model.")}
	}
	wrap := lipgloss.NewStyle().Width(width)
	var out []string
	for _, e := range entries {
		if e == "" {
			out = append(out, dimStyle.Render("…"))
			continue
		}
		out = append(out, strings.Split(wrap.Render(e), "\n")...)
	}
	return out
}

func truncate(s string, width int) string {
	r := []rune(s)
	if len(r) <= width {
		return s
	}
	if width <= 1 {
		return string(r[:width])
	}
	return string(r[:width-1]) + "…"
}
