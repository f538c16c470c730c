package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/wippyai/native-bridge/runtime"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	funcStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	typeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	flagStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#B0A0D0"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4"))

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

type interactiveModel struct {
	err      error
	rt       *runtime.Runtime
	cfg      config
	result   string
	entries  []entryInfo
	inputs   []textinput.Model
	selected int
	focusIdx int
	state    modelState
	viaWasm  bool
}

type modelState int

const (
	stateSelectEntry modelState = iota
	stateInputArgs
	stateShowResult
)

func newInteractiveModel(cfg config) *interactiveModel {
	return &interactiveModel{
		cfg:     cfg,
		state:   stateSelectEntry,
		viaWasm: cfg.wasm,
	}
}

type loadedMsg struct {
	err     error
	rt      *runtime.Runtime
	entries []entryInfo
}

type callResultMsg struct {
	err    error
	result string
}

func (m *interactiveModel) Init() tea.Cmd {
	return m.load
}

func (m *interactiveModel) load() tea.Msg {
	rt, err := newRuntime(context.Background(), m.cfg)
	if err != nil {
		return loadedMsg{err: err}
	}
	return loadedMsg{rt: rt, entries: describe(rt.Registry())}
}

func (m *interactiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			if m.state == stateInputArgs && msg.String() == "q" {
				break
			}
			if m.rt != nil {
				m.rt.Close(context.Background())
			}
			return m, tea.Quit

		case "up", "k":
			if m.state == stateSelectEntry && m.selected > 0 {
				m.selected--
			}

		case "down", "j":
			if m.state == stateSelectEntry && m.selected < len(m.entries)-1 {
				m.selected++
			}

		case "w":
			if m.state == stateSelectEntry {
				m.viaWasm = !m.viaWasm
			}

		case "enter":
			switch m.state {
			case stateSelectEntry:
				m.prepareInputs()
				if len(m.inputs) == 0 {
					return m, m.callEntry
				}
				m.state = stateInputArgs

			case stateInputArgs:
				return m, m.callEntry

			case stateShowResult:
				m.state = stateSelectEntry
				m.result = ""
				m.err = nil
			}

		case "tab":
			if m.state == stateInputArgs && len(m.inputs) > 1 {
				m.inputs[m.focusIdx].Blur()
				m.focusIdx = (m.focusIdx + 1) % len(m.inputs)
				m.inputs[m.focusIdx].Focus()
			}

		case "esc":
			switch m.state {
			case stateInputArgs:
				m.state = stateSelectEntry
				m.inputs = nil
			case stateShowResult:
				m.state = stateSelectEntry
				m.result = ""
				m.err = nil
			}
		}

	case loadedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.entries = msg.entries
		m.rt = msg.rt

	case callResultMsg:
		m.result = msg.result
		m.err = msg.err
		m.state = stateShowResult
	}

	if m.state == stateInputArgs {
		var cmds []tea.Cmd
		for i := range m.inputs {
			var cmd tea.Cmd
			m.inputs[i], cmd = m.inputs[i].Update(msg)
			cmds = append(cmds, cmd)
		}
		return m, tea.Batch(cmds...)
	}

	return m, nil
}

func (m *interactiveModel) prepareInputs() {
	e := m.entries[m.selected]
	params := e.params()
	m.inputs = make([]textinput.Model, len(params))
	for i, p := range params {
		ti := textinput.New()
		ti.Placeholder = witTypeStr(p.Type)
		ti.Prompt = p.Name + ": "
		ti.Width = 40
		if i == 0 {
			ti.Focus()
		}
		m.inputs[i] = ti
	}
	m.focusIdx = 0
}

func (m *interactiveModel) callEntry() tea.Msg {
	if m.rt == nil {
		return callResultMsg{err: fmt.Errorf("runtime not loaded")}
	}

	e := m.entries[m.selected]
	values := make([]string, len(m.inputs))
	for i, input := range m.inputs {
		values[i] = input.Value()
	}
	args, err := convertArgs(e, values)
	if err != nil {
		return callResultMsg{err: err}
	}

	out, err := callEntry(context.Background(), m.rt, e, args, m.viaWasm)
	if err != nil {
		return callResultMsg{err: err}
	}
	return callResultMsg{result: out}
}

func (m *interactiveModel) View() string {
	if m.err != nil && m.state != stateShowResult {
		return errorStyle.Render(fmt.Sprintf("Error: %v\n\nPress q to quit.", m.err))
	}

	if len(m.entries) == 0 {
		return "Loading runtime..."
	}

	var b strings.Builder

	b.WriteString(titleStyle.Render("Native Bridge"))
	opts := m.rt.Options()
	via := "invoker"
	if m.viaWasm {
		via = "wasm call site"
	}
	b.WriteString(fmt.Sprintf(" mode=%s tier=%s via %s", opts.Mode, opts.Tier, via))
	b.WriteString("\n\n")

	switch m.state {
	case stateSelectEntry:
		b.WriteString("Select a runtime entry to call:\n\n")
		for i, e := range m.entries {
			line := m.formatEntry(e)
			if i == m.selected {
				b.WriteString(selectedStyle.Render("> " + line))
			} else {
				b.WriteString("  " + line)
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("↑/↓ select • enter call • w toggle wasm • q quit"))

	case stateInputArgs:
		e := m.entries[m.selected]
		b.WriteString(fmt.Sprintf("Calling %s\n\n", funcStyle.Render(e.name)))
		params := e.params()
		for i, input := range m.inputs {
			b.WriteString(input.View())
			b.WriteString(" ")
			b.WriteString(typeStyle.Render(witTypeStr(params[i].Type)))
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("tab next field • enter call • esc back"))

	case stateShowResult:
		e := m.entries[m.selected]
		b.WriteString(fmt.Sprintf("Result of %s:\n\n", funcStyle.Render(e.name)))
		if m.err != nil {
			b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		} else {
			b.WriteString(resultStyle.Render(m.result))
		}
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("enter continue • q quit"))
	}

	return b.String()
}

func (m *interactiveModel) formatEntry(e entryInfo) string {
	var params []string
	for _, p := range e.params() {
		params = append(params, p.Name+": "+typeStyle.Render(witTypeStr(p.Type)))
	}
	return funcStyle.Render(e.name) + "(" + strings.Join(params, ", ") + ") -> " +
		typeStyle.Render(witTypeStr(e.result)) + " " + flagStyle.Render("["+e.flags()+"]")
}

func runInteractive(cfg config) error {
	p := tea.NewProgram(newInteractiveModel(cfg), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
