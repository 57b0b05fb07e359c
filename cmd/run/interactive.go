package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/wippyai/wasm-interp/runtime"
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

type viewState int

const (
	stateSelectFunc viewState = iota
	stateInputArgs
	stateShowResult
)

type explorer struct {
	ctx      context.Context
	module   *runtime.Module
	filename string
	funcs    []runtime.ExportInfo
	inputs   []textinput.Model
	result   string
	err      error
	selected int
	focusIdx int
	state    viewState
}

type callResultMsg struct {
	result string
	err    error
}

func newExplorer(ctx context.Context, filename string, mod *runtime.Module) *explorer {
	e := &explorer{ctx: ctx, module: mod, filename: filename}
	for _, ex := range mod.Exports() {
		if ex.Kind == "func" {
			e.funcs = append(e.funcs, ex)
		}
	}
	return e
}

func (e *explorer) Init() tea.Cmd { return nil }

func (e *explorer) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			return e, tea.Quit

		case "q":
			if e.state != stateInputArgs {
				return e, tea.Quit
			}

		case "up", "k":
			if e.state == stateSelectFunc && e.selected > 0 {
				e.selected--
			}

		case "down", "j":
			if e.state == stateSelectFunc && e.selected < len(e.funcs)-1 {
				e.selected++
			}

		case "enter":
			switch e.state {
			case stateSelectFunc:
				if len(e.funcs) == 0 {
					return e, nil
				}
				e.prepareInputs()
				if len(e.inputs) == 0 {
					return e, e.call
				}
				e.state = stateInputArgs
				return e, textinput.Blink

			case stateInputArgs:
				return e, e.call

			case stateShowResult:
				e.reset()
			}
			return e, nil

		case "tab":
			if e.state == stateInputArgs && len(e.inputs) > 1 {
				e.inputs[e.focusIdx].Blur()
				e.focusIdx = (e.focusIdx + 1) % len(e.inputs)
				e.inputs[e.focusIdx].Focus()
			}
			return e, nil

		case "esc":
			switch e.state {
			case stateInputArgs:
				e.state = stateSelectFunc
				e.inputs = nil
			case stateShowResult:
				e.reset()
			}
			return e, nil
		}

	case callResultMsg:
		e.result = msg.result
		e.err = msg.err
		e.state = stateShowResult
		return e, nil
	}

	if e.state == stateInputArgs {
		cmds := make([]tea.Cmd, len(e.inputs))
		for i := range e.inputs {
			e.inputs[i], cmds[i] = e.inputs[i].Update(msg)
		}
		return e, tea.Batch(cmds...)
	}
	return e, nil
}

func (e *explorer) reset() {
	e.state = stateSelectFunc
	e.result = ""
	e.err = nil
}

func (e *explorer) prepareInputs() {
	f := e.funcs[e.selected]
	e.inputs = make([]textinput.Model, len(f.Params))
	for i, p := range f.Params {
		ti := textinput.New()
		ti.Placeholder = p.String()
		ti.Prompt = fmt.Sprintf("arg%d: ", i)
		ti.Width = 40
		if i == 0 {
			ti.Focus()
		}
		e.inputs[i] = ti
	}
	e.focusIdx = 0
}

func (e *explorer) call() tea.Msg {
	f := e.funcs[e.selected]
	args := make([]string, len(e.inputs))
	for i, in := range e.inputs {
		args[i] = in.Value()
	}
	raw, err := parseArgs(f, args)
	if err != nil {
		return callResultMsg{err: err}
	}
	res, err := e.module.CallRaw(e.ctx, f.Name, raw...)
	if err != nil {
		return callResultMsg{err: err}
	}
	return callResultMsg{result: formatResults(f, res)}
}

func (e *explorer) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("WASM Interpreter"))
	b.WriteString(" ")
	b.WriteString(e.filename)
	b.WriteString("\n\n")

	switch e.state {
	case stateSelectFunc:
		if len(e.funcs) == 0 {
			b.WriteString("No exported functions.\n\n")
			b.WriteString(helpStyle.Render("q quit"))
			break
		}
		b.WriteString("Select a function to call:\n\n")
		for i, f := range e.funcs {
			if i == e.selected {
				b.WriteString(selectedStyle.Render("> " + f.Name + f.Type))
			} else {
				b.WriteString("  " + formatFunc(f))
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("↑/↓ select • enter call • q quit"))

	case stateInputArgs:
		f := e.funcs[e.selected]
		fmt.Fprintf(&b, "Calling %s\n\n", funcStyle.Render(f.Name))
		for i, in := range e.inputs {
			b.WriteString(in.View())
			b.WriteString(" ")
			b.WriteString(typeStyle.Render(f.Params[i].String()))
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("tab next field • enter call • esc back"))

	case stateShowResult:
		f := e.funcs[e.selected]
		fmt.Fprintf(&b, "Result of %s:\n\n", funcStyle.Render(f.Name))
		if e.err != nil {
			b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", e.err)))
		} else {
			b.WriteString(resultStyle.Render(e.result))
		}
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("enter continue • q quit"))
	}

	return b.String()
}

func formatFunc(f runtime.ExportInfo) string {
	return funcStyle.Render(f.Name) + typeStyle.Render(f.Type)
}

func runInteractive(ctx context.Context, filename string, mod *runtime.Module) error {
	p := tea.NewProgram(newExplorer(ctx, filename, mod), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	return err
}
