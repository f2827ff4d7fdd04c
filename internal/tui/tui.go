// Package tui is the terminal front end: a bubbletea program that edits the
// draft, runs slash commands and redraws on every session change.
package tui

import (
	"strings"

	"github.com/atotto/clipboard"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/samcharles93/llamachat/internal/bench"
	"github.com/samcharles93/llamachat/internal/session"
)

// Session is the controller surface the UI drives.
type Session interface {
	View() session.View
	Transcript() string
	UpdateDraft(text string)
	Load(path string) error
	Send() error
	Benchmark(pp, tg, pl, nr int) error
	Unload() error
	Clear()
	Subscribe() (<-chan struct{}, func())
	Done() <-chan struct{}
}

type Options struct {
	// ModelPath is loaded by a bare /load.
	ModelPath string
	// Bench are the parameters of a bare /bench.
	Bench bench.Params
	// Copy writes to the system clipboard. Defaults to atotto/clipboard.
	Copy func(string) error
	// Version is shown in the footer.
	Version string
}

type changedMsg struct{}
type closedMsg struct{}

// statusMsg sets the status line, e.g. after a command finishes.
type statusMsg struct {
	text string
	err  bool
}

type Model struct {
	session Session
	opts    Options
	updates <-chan struct{}
	cancel  func()

	view          session.View
	width, height int
	status        string
	statusErr     bool
	quitting      bool
}

func New(sess Session, opts Options) Model {
	if opts.Copy == nil {
		opts.Copy = clipboard.WriteAll
	}
	if opts.Bench == (bench.Params{}) {
		opts.Bench = bench.DefaultWarmup()
	}
	updates, cancel := sess.Subscribe()
	return Model{
		session: sess,
		opts:    opts,
		updates: updates,
		cancel:  cancel,
		view:    sess.View(),
	}
}

// NewProgram wraps the model in a full-screen program.
func NewProgram(sess Session, opts Options) *tea.Program {
	return tea.NewProgram(New(sess, opts), tea.WithAltScreen())
}

func (m Model) Init() tea.Cmd {
	return m.waitForChange()
}

func (m Model) waitForChange() tea.Cmd {
	updates, done := m.updates, m.session.Done()
	return func() tea.Msg {
		select {
		case <-updates:
			return changedMsg{}
		case <-done:
			return closedMsg{}
		}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case changedMsg:
		m.view = m.session.View()
		return m, m.waitForChange()

	case closedMsg:
		m.view = m.session.View()
		return m.quit()

	case statusMsg:
		m.status = msg.text
		m.statusErr = msg.err

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	draft := m.view.Draft
	switch msg.Type {
	case tea.KeyCtrlC, tea.KeyCtrlD:
		return m.quit()
	case tea.KeyEnter:
		return m.submit()
	case tea.KeyCtrlL:
		m.session.Clear()
		m.view = m.session.View()
		return m, nil
	case tea.KeyCtrlU:
		draft = ""
	case tea.KeyBackspace:
		r := []rune(draft)
		if len(r) == 0 {
			return m, nil
		}
		draft = string(r[:len(r)-1])
	case tea.KeySpace:
		draft += " "
	case tea.KeyRunes:
		draft += string(msg.Runes)
	default:
		return m, nil
	}
	m.session.UpdateDraft(draft)
	m.view.Draft = draft
	return m, nil
}

func (m Model) submit() (tea.Model, tea.Cmd) {
	draft := strings.TrimSpace(m.view.Draft)
	if strings.HasPrefix(draft, "/") {
		m.session.UpdateDraft("")
		m.view.Draft = ""
		return m.runCommand(draft)
	}
	m.setStatus(m.session.Send())
	m.view = m.session.View()
	return m, nil
}

func (m Model) quit() (tea.Model, tea.Cmd) {
	m.quitting = true
	if m.cancel != nil {
		m.cancel()
	}
	return m, tea.Quit
}

func (m *Model) setStatus(err error) {
	if err != nil {
		m.status = err.Error()
		m.statusErr = true
		return
	}
	m.status = ""
	m.statusErr = false
}
