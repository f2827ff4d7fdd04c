package tui

import (
	"fmt"
	"strconv"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/samcharles93/llamachat/internal/bench"
)

const helpText = "/load [path]  /bench [pp tg pl nr]  /unload  /clear  /copy  /quit"

// runCommand handles a slash command typed into the draft.
func (m Model) runCommand(line string) (tea.Model, tea.Cmd) {
	fields := strings.Fields(strings.TrimPrefix(line, "/"))
	if len(fields) == 0 {
		m.status, m.statusErr = helpText, false
		return m, nil
	}
	name, args := fields[0], fields[1:]

	switch name {
	case "load":
		path := m.opts.ModelPath
		if len(args) > 0 {
			path = strings.Join(args, " ")
		}
		if path == "" {
			m.status, m.statusErr = "usage: /load <path>", true
			return m, nil
		}
		m.setStatus(m.session.Load(path))

	case "bench":
		p, err := parseBenchArgs(args, m.opts.Bench)
		if err != nil {
			m.setStatus(err)
			return m, nil
		}
		m.setStatus(m.session.Benchmark(p.PP, p.TG, p.PL, p.NR))

	case "unload":
		// Unload is synchronous; run it off the update loop.
		return m, func() tea.Msg {
			if err := m.session.Unload(); err != nil {
				return statusMsg{text: err.Error(), err: true}
			}
			return statusMsg{}
		}

	case "clear":
		m.session.Clear()
		m.setStatus(nil)

	case "copy":
		text := m.session.Transcript()
		if err := m.opts.Copy(text); err != nil {
			m.status, m.statusErr = "copy failed: "+err.Error(), true
			return m, nil
		}
		m.status, m.statusErr = "Copied transcript to clipboard", false

	case "quit", "exit":
		return m.quit()

	case "help":
		m.status, m.statusErr = helpText, false

	default:
		m.status, m.statusErr = fmt.Sprintf("unknown command /%s; %s", name, helpText), true
	}

	m.view = m.session.View()
	return m, nil
}

// parseBenchArgs reads up to four positive integers in pp tg pl nr order;
// missing values come from defaults.
func parseBenchArgs(args []string, defaults bench.Params) (bench.Params, error) {
	p := defaults
	dst := []*int{&p.PP, &p.TG, &p.PL, &p.NR}
	if len(args) > len(dst) {
		return p, fmt.Errorf("usage: /bench [pp tg pl nr]")
	}
	for i, a := range args {
		n, err := strconv.Atoi(a)
		if err != nil || n <= 0 {
			return p, fmt.Errorf("bench: %q is not a positive integer", a)
		}
		*dst[i] = n
	}
	return p, nil
}
