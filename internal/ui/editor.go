package ui

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

// EditText lets the user edit initial before running it.
func (p *Prompter) EditText(prompt string, initial string) (string, bool, error) {
	var firstErr error
	for _, candidate := range backendCandidates(p.Backend) {
		var (
			edited string
			ok     bool
			err    error
		)
		switch candidate {
		case BackendBubbleTea:
			edited, ok, err = editWithBubbleTea(prompt, initial)
		case BackendHuh:
			edited, ok, err = editWithHuh(prompt, initial)
		case BackendTView:
			edited, ok, err = editWithTView(prompt, initial)
		case BackendPlain:
			edited, ok, err = p.editWithPlain(prompt, initial)
		default:
			continue
		}
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		return edited, ok, nil
	}
	return "", false, firstErr
}

func (p *Prompter) editWithPlain(prompt string, initial string) (string, bool, error) {
	out := p.out()
	fmt.Fprintln(out, plainHintStyle.Render("enter keeps the current command, ctrl+d cancels"))
	fmt.Fprintf(out, "%s%s\n", plainTitleStyle.Render(prompt), initial)
	fmt.Fprintf(out, "%s", plainTitleStyle.Render(prompt))

	line, ok, err := p.readLine()
	if err != nil {
		return "", false, err
	}
	if !ok {
		return "", false, nil
	}
	if strings.TrimSpace(line) == "" {
		return initial, true, nil
	}
	return line, true, nil
}

func editWithHuh(prompt string, initial string) (string, bool, error) {
	value := initial
	field := huh.NewInput().
		Title(prompt).
		Value(&value).
		WithTheme(huh.ThemeCharm())

	if err := field.Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return "", false, nil
		}
		return "", false, err
	}
	return value, true, nil
}

func editWithTView(prompt string, initial string) (string, bool, error) {
	app := tview.NewApplication()
	input := tview.NewInputField().
		SetLabel(prompt).
		SetText(initial)
	input.SetBorder(true)

	confirmed := false
	input.SetDoneFunc(func(key tcell.Key) {
		if key == tcell.KeyEnter {
			confirmed = true
		}
		app.Stop()
	})

	if err := app.SetRoot(input, true).SetFocus(input).Run(); err != nil {
		return "", false, err
	}
	if !confirmed {
		return "", false, nil
	}
	return input.GetText(), true, nil
}

type editorModel struct {
	prompt    string
	input     textinput.Model
	confirmed bool
	done      bool
}

func newEditorModel(prompt string, initial string) editorModel {
	input := textinput.New()
	input.Prompt = ""
	input.CharLimit = 0
	input.Width = 72
	input.SetValue(initial)
	input.CursorEnd()
	input.Focus()

	return editorModel{prompt: prompt, input: input}
}

func (m editorModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m editorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch k := msg.(type) {
	case tea.WindowSizeMsg:
		if k.Width > 8 {
			m.input.Width = k.Width - 8
		}
		return m, nil
	case tea.KeyMsg:
		switch k.String() {
		case "enter":
			m.done = true
			m.confirmed = true
			return m, tea.Quit
		case "esc", "ctrl+c":
			m.done = true
			return m, tea.Quit
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m editorModel) View() string {
	if m.done {
		return ""
	}
	lines := []string{
		editorPromptStyle.Render(m.prompt) + m.input.View(),
		editorHintStyle.Render("[enter] run  [esc] cancel"),
	}
	return editorCardStyle.Render(strings.Join(lines, "\n"))
}

func editWithBubbleTea(prompt string, initial string) (string, bool, error) {
	final, err := tea.NewProgram(newEditorModel(prompt, initial)).Run()
	if err != nil {
		return "", false, err
	}
	out, ok := final.(editorModel)
	if !ok || !out.confirmed {
		return "", false, nil
	}
	return out.input.Value(), true, nil
}

var (
	editorCardStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("39")).
			Padding(0, 1)

	editorPromptStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("87"))

	editorHintStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("109"))

	plainTitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("87"))

	plainIndexStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("248"))

	plainHintStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("109"))
)
