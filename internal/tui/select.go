package tui

import (
	"strings"

	tea "github.com/charmbracelet/bubbletea"
)

// Option is one entry of a selection list.
type Option struct {
	Value string
	Label string
	Hint  string
}

// SelectModel is a single-choice list. It quits the program once the user
// picks an option or cancels.
type SelectModel struct {
	title     string
	options   []Option
	cursor    int
	chosen    bool
	cancelled bool
}

// NewSelectModel creates a selection list with the cursor on the first option.
func NewSelectModel(title string, options []Option) SelectModel {
	return SelectModel{title: title, options: options}
}

// MoveDown returns a new model with the cursor moved down by one.
func (m SelectModel) MoveDown() SelectModel {
	if m.cursor < len(m.options)-1 {
		m.cursor++
	}
	return m
}

// MoveUp returns a new model with the cursor moved up by one.
func (m SelectModel) MoveUp() SelectModel {
	if m.cursor > 0 {
		m.cursor--
	}
	return m
}

// Cursor returns the current cursor position.
func (m SelectModel) Cursor() int {
	return m.cursor
}

// Selected returns the highlighted option, or the zero Option for an empty list.
func (m SelectModel) Selected() Option {
	if len(m.options) == 0 {
		return Option{}
	}
	return m.options[m.cursor]
}

// Chosen reports whether the user confirmed a choice.
func (m SelectModel) Chosen() bool {
	return m.chosen
}

// Cancelled reports whether the user dismissed the list.
func (m SelectModel) Cancelled() bool {
	return m.cancelled
}

func (m SelectModel) Init() tea.Cmd {
	return nil
}

func (m SelectModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	switch key.String() {
	case "down", "j":
		m = m.MoveDown()
	case "up", "k":
		m = m.MoveUp()
	case "enter":
		if len(m.options) > 0 {
			m.chosen = true
			return m, tea.Quit
		}
	case "esc", "q", "ctrl+c":
		m.cancelled = true
		return m, tea.Quit
	}
	return m, nil
}

func (m SelectModel) View() string {
	var sb strings.Builder
	sb.WriteString(titleStyle.Render(m.title) + "\n\n")
	if len(m.options) == 0 {
		sb.WriteString("Nothing to choose from.\n")
		return sb.String()
	}
	for i, o := range m.options {
		line := "  " + o.Label
		if i == m.cursor {
			line = cursorStyle.Render("> " + o.Label)
		}
		if o.Hint != "" {
			line += "  " + Muted(o.Hint)
		}
		sb.WriteString(line + "\n")
	}
	if m.chosen || m.cancelled {
		return sb.String()
	}
	sb.WriteString("\n" + Muted("↑/↓: navigate   enter: select   esc: cancel") + "\n")
	return sb.String()
}
