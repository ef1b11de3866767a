package main

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-host/abi"
	"github.com/wippyai/wasm-host/world"
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FFFFFF")).
			Background(lipgloss.Color("#3D6DCC")).
			Padding(0, 1)

	nameStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#A6E3A1"))
	typeStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#89B4FA"))
	cursorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFFFF")).
			Background(lipgloss.Color("#3D6DCC"))
	valueStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#A6E3A1"))
	errStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#F38BA8"))
	hintStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#6C7086"))
)

type screen int

const (
	screenPick screen = iota
	screenArgs
	screenResult
)

type exportEntry struct {
	decl   ExportDecl
	params []*abi.Type
}

type worldModel struct {
	err     error
	opts    options
	log     *zap.Logger
	session *session
	world   *world.World
	result  string
	exports []exportEntry
	inputs  []textinput.Model
	cursor  int
	focus   int
	screen  screen
}

type worldReadyMsg struct {
	err     error
	session *session
	world   *world.World
	exports []exportEntry
}

type callDoneMsg struct {
	err    error
	result string
}

func newWorldModel(opts options, log *zap.Logger) *worldModel {
	return &worldModel{opts: opts, log: log, screen: screenPick}
}

func (m *worldModel) Init() tea.Cmd {
	return m.instantiate
}

func (m *worldModel) instantiate() tea.Msg {
	ctx := context.Background()
	s, err := openSession(ctx, m.opts, m.log)
	if err != nil {
		return worldReadyMsg{err: err}
	}
	w, err := s.engine.Instantiate(ctx, s.decl)
	if err != nil {
		_ = s.engine.Close(ctx)
		return worldReadyMsg{err: err}
	}

	var exports []exportEntry
	for _, decl := range s.manifest.Exports {
		fn, ok := w.Func(decl.Name)
		if !ok {
			continue
		}
		exports = append(exports, exportEntry{decl: decl, params: fn.Signature().Params})
	}
	sort.Slice(exports, func(i, j int) bool { return exports[i].decl.Name < exports[j].decl.Name })
	return worldReadyMsg{session: s, world: w, exports: exports}
}

func (m *worldModel) shutdown() {
	ctx := context.Background()
	if m.world != nil {
		_ = m.world.Close(ctx)
	}
	if m.session != nil {
		_ = m.session.engine.Close(ctx)
	}
}

func (m *worldModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			m.shutdown()
			return m, tea.Quit

		case "q":
			if m.screen != screenArgs {
				m.shutdown()
				return m, tea.Quit
			}

		case "up", "k":
			if m.screen == screenPick && m.cursor > 0 {
				m.cursor--
			}

		case "down", "j":
			if m.screen == screenPick && m.cursor < len(m.exports)-1 {
				m.cursor++
			}

		case "enter":
			switch m.screen {
			case screenPick:
				if len(m.exports) == 0 {
					return m, nil
				}
				m.buildInputs()
				if len(m.inputs) == 0 {
					return m, m.call
				}
				m.screen = screenArgs
				return m, nil
			case screenArgs:
				return m, m.call
			case screenResult:
				m.back()
			}

		case "tab":
			if m.screen == screenArgs && len(m.inputs) > 1 {
				m.inputs[m.focus].Blur()
				m.focus = (m.focus + 1) % len(m.inputs)
				m.inputs[m.focus].Focus()
			}

		case "esc":
			if m.screen != screenPick {
				m.back()
			}
		}

	case worldReadyMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.session = msg.session
		m.world = msg.world
		m.exports = msg.exports

	case callDoneMsg:
		m.result = msg.result
		m.err = msg.err
		m.screen = screenResult
	}

	if m.screen == screenArgs {
		cmds := make([]tea.Cmd, len(m.inputs))
		for i := range m.inputs {
			m.inputs[i], cmds[i] = m.inputs[i].Update(msg)
		}
		return m, tea.Batch(cmds...)
	}
	return m, nil
}

func (m *worldModel) back() {
	m.screen = screenPick
	m.inputs = nil
	m.result = ""
	m.err = nil
}

func (m *worldModel) buildInputs() {
	e := m.exports[m.cursor]
	names := e.decl.paramNames()
	m.inputs = make([]textinput.Model, len(e.params))
	for i, t := range e.params {
		ti := textinput.New()
		ti.Prompt = names[i] + ": "
		ti.Placeholder = t.String()
		ti.Width = 48
		if i == 0 {
			ti.Focus()
		}
		m.inputs[i] = ti
	}
	m.focus = 0
}

func (m *worldModel) call() tea.Msg {
	e := m.exports[m.cursor]
	texts := make([]string, len(m.inputs))
	for i, in := range m.inputs {
		texts[i] = in.Value()
	}
	args, err := parseArgs(e.params, texts)
	if err != nil {
		return callDoneMsg{err: err}
	}
	result, err := m.world.Call(context.Background(), e.decl.Name, args...)
	if err != nil {
		return callDoneMsg{err: err}
	}
	return callDoneMsg{result: formatValue(result)}
}

func (m *worldModel) View() string {
	if m.err != nil && m.screen != screenResult {
		return errStyle.Render(fmt.Sprintf("Error: %v\n\nPress ctrl+c to quit.", m.err))
	}
	if m.world == nil {
		return "Instantiating world..."
	}

	var b strings.Builder
	b.WriteString(headerStyle.Render("wasmhost"))
	b.WriteString(" ")
	b.WriteString(m.opts.manifest)
	b.WriteString("\n\n")

	switch m.screen {
	case screenPick:
		if len(m.exports) == 0 {
			b.WriteString("The manifest declares no exports.\n")
		}
		for i, e := range m.exports {
			line := describeEntry(e)
			if i == m.cursor {
				b.WriteString(cursorStyle.Render("> " + line))
			} else {
				b.WriteString("  " + line)
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(hintStyle.Render("↑/↓ select • enter call • q quit"))

	case screenArgs:
		e := m.exports[m.cursor]
		fmt.Fprintf(&b, "Calling %s\n\n", nameStyle.Render(e.decl.Name))
		for i, in := range m.inputs {
			b.WriteString(in.View())
			b.WriteString(" ")
			b.WriteString(typeStyle.Render(e.params[i].String()))
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(hintStyle.Render("tab next field • enter call • esc back"))

	case screenResult:
		e := m.exports[m.cursor]
		fmt.Fprintf(&b, "%s returned:\n\n", nameStyle.Render(e.decl.Name))
		if m.err != nil {
			b.WriteString(errStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		} else {
			b.WriteString(valueStyle.Render(m.result))
		}
		b.WriteString("\n\n")
		b.WriteString(hintStyle.Render("enter continue • q quit"))
	}
	return b.String()
}

func describeEntry(e exportEntry) string {
	names := e.decl.paramNames()
	params := make([]string, len(e.params))
	for i, t := range e.params {
		params[i] = names[i] + ": " + typeStyle.Render(t.String())
	}
	out := nameStyle.Render(e.decl.Name) + "(" + strings.Join(params, ", ") + ")"
	if e.decl.Result != "" {
		out += " -> " + typeStyle.Render(e.decl.Result)
	}
	return out
}

func runInteractive(opts options, log *zap.Logger) error {
	_, err := tea.NewProgram(newWorldModel(opts, log), tea.WithAltScreen()).Run()
	return err
}
