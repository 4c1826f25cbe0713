package ui

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/rivo/tview"
)

// Prompter asks the user to pick or edit a command line. Every method
// reports false when the user cancelled.
type Prompter struct {
	Backend string
	In      io.Reader
	Out     io.Writer

	reader *bufio.Reader
}

// NewPrompter binds a prompter to the process standard streams, falling back
// to the plain backend when they are not terminals.
func NewPrompter(backend string) *Prompter {
	return &Prompter{
		Backend: ResolveBackend(backend),
		In:      os.Stdin,
		Out:     os.Stdout,
	}
}

// Select shows options under prompt and returns the chosen one.
func (p *Prompter) Select(prompt string, options []string) (string, bool, error) {
	if len(options) == 0 {
		return "", false, nil
	}

	var firstErr error
	for _, candidate := range backendCandidates(p.Backend) {
		var (
			selected string
			ok       bool
			err      error
		)
		switch candidate {
		case BackendBubbleTea:
			selected, ok, err = selectWithBubbleTea(prompt, options)
		case BackendHuh:
			selected, ok, err = selectWithHuh(prompt, options)
		case BackendTView:
			selected, ok, err = selectWithTView(prompt, options)
		case BackendPlain:
			selected, ok, err = p.selectWithPlain(prompt, options)
		default:
			continue
		}
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		return selected, ok, nil
	}
	return "", false, firstErr
}

func (p *Prompter) lineReader() *bufio.Reader {
	if p.reader == nil {
		in := p.In
		if in == nil {
			in = os.Stdin
		}
		p.reader = bufio.NewReader(in)
	}
	return p.reader
}

func (p *Prompter) out() io.Writer {
	if p.Out == nil {
		return os.Stdout
	}
	return p.Out
}

// readLine returns the next input line without its terminator. ok is false
// on EOF with nothing read.
func (p *Prompter) readLine() (string, bool, error) {
	line, err := p.lineReader().ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) {
			if line == "" {
				return "", false, nil
			}
			return strings.TrimRight(line, "\r\n"), true, nil
		}
		return "", false, fmt.Errorf("could not read input: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), true, nil
}

func (p *Prompter) selectWithPlain(prompt string, options []string) (string, bool, error) {
	out := p.out()
	fmt.Fprintln(out, plainTitleStyle.Render(prompt))
	for idx, option := range options {
		fmt.Fprintf(out, "%s %s\n", plainIndexStyle.Render(fmt.Sprintf("%3d)", idx+1)), option)
	}

	for {
		fmt.Fprintf(out, "%s ", plainTitleStyle.Render(prompt))
		line, ok, err := p.readLine()
		if err != nil {
			return "", false, err
		}
		line = strings.TrimSpace(line)
		if !ok || line == "" {
			return "", false, nil
		}
		choice, err := strconv.Atoi(line)
		if err != nil || choice < 1 || choice > len(options) {
			fmt.Fprintf(out, "choose a number between 1 and %d, or press enter to cancel\n", len(options))
			continue
		}
		return options[choice-1], true, nil
	}
}

func selectWithHuh(prompt string, options []string) (string, bool, error) {
	huhOptions := make([]huh.Option[string], 0, len(options))
	for _, option := range options {
		huhOptions = append(huhOptions, huh.NewOption(option, option))
	}

	choice := options[0]
	field := huh.NewSelect[string]().
		Title(prompt).
		Options(huhOptions...).
		Filtering(true).
		Height(huhSelectHeight(len(huhOptions))).
		Value(&choice).
		WithTheme(huh.ThemeCharm())

	if err := field.Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return "", false, nil
		}
		return "", false, err
	}
	if choice == "" {
		return "", false, nil
	}
	return choice, true, nil
}

type bubbleSelectorItem struct {
	command string
}

func (i bubbleSelectorItem) Title() string       { return i.command }
func (i bubbleSelectorItem) Description() string { return "" }
func (i bubbleSelectorItem) FilterValue() string { return i.command }

type bubbleSelectorModel struct {
	list      list.Model
	selection string
	chosen    bool
	options   int
}

func newBubbleSelectorModel(prompt string, options []string) bubbleSelectorModel {
	items := make([]list.Item, 0, len(options))
	for _, option := range options {
		items = append(items, bubbleSelectorItem{command: option})
	}

	delegate := list.NewDefaultDelegate()
	delegate.ShowDescription = false
	delegate.SetSpacing(0)

	initialWidth, initialHeight := bubblePickerSize(80, 24, len(items))
	picker := list.New(items, delegate, initialWidth, initialHeight)
	picker.Title = prompt
	picker.SetShowHelp(false)
	picker.SetFilteringEnabled(true)

	return bubbleSelectorModel{list: picker, options: len(items)}
}

func (m bubbleSelectorModel) Init() tea.Cmd { return nil }

func (m bubbleSelectorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch k := msg.(type) {
	case tea.WindowSizeMsg:
		width, height := bubblePickerSize(k.Width, k.Height, m.options)
		m.list.SetSize(width, height)
		return m, nil
	case tea.KeyMsg:
		// While filtering, keys belong to the filter input.
		if m.list.FilterState() == list.Filtering && k.String() != "ctrl+c" {
			break
		}
		switch k.String() {
		case "q", "esc", "ctrl+c":
			return m, tea.Quit
		case "enter":
			if item, ok := m.list.SelectedItem().(bubbleSelectorItem); ok {
				m.selection = item.command
				m.chosen = true
			}
			return m, tea.Quit
		}
	}
	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m bubbleSelectorModel) View() string {
	return m.list.View()
}

func selectWithBubbleTea(prompt string, options []string) (string, bool, error) {
	model := newBubbleSelectorModel(prompt, options)
	final, err := tea.NewProgram(model, tea.WithAltScreen()).Run()
	if err != nil {
		return "", false, err
	}
	out, ok := final.(bubbleSelectorModel)
	if !ok || !out.chosen || out.selection == "" {
		return "", false, nil
	}
	return out.selection, true, nil
}

func selectWithTView(prompt string, options []string) (string, bool, error) {
	app := tview.NewApplication()
	listView := tview.NewList()
	listView.SetBorder(true)
	listView.SetTitle(prompt)
	listView.ShowSecondaryText(false)

	selected := ""
	chosen := false
	for _, option := range options {
		current := option
		listView.AddItem(current, "", 0, func() {
			selected = current
			chosen = true
			app.Stop()
		})
	}
	listView.SetDoneFunc(func() {
		app.Stop()
	})

	if err := app.SetRoot(listView, true).SetFocus(listView).Run(); err != nil {
		return "", false, err
	}
	if !chosen || selected == "" {
		return "", false, nil
	}
	return selected, true, nil
}

func clampInt(v, minV, maxV int) int {
	if v < minV {
		return minV
	}
	if v > maxV {
		return maxV
	}
	return v
}

func bubblePickerSize(termWidth, termHeight, optionCount int) (int, int) {
	if termWidth <= 0 {
		termWidth = 80
	}
	if termHeight <= 0 {
		termHeight = 24
	}
	if optionCount < 1 {
		optionCount = 1
	}

	maxWidth := termWidth
	minWidth := 32
	if maxWidth < minWidth {
		minWidth = maxWidth
	}
	width := clampInt(termWidth-4, minWidth, maxWidth)

	visibleItems := clampInt(optionCount, 3, 12)
	desiredHeight := visibleItems + 6

	maxHeight := termHeight - 2
	if maxHeight <= 0 {
		maxHeight = termHeight
	}
	if maxHeight <= 0 {
		maxHeight = 1
	}
	minHeight := 8
	if maxHeight < minHeight {
		minHeight = maxHeight
	}
	height := clampInt(desiredHeight, minHeight, maxHeight)
	return width, height
}

func huhSelectHeight(optionCount int) int {
	if optionCount < 1 {
		optionCount = 1
	}
	return clampInt(optionCount+1, 4, 10)
}
