package tui

import (
	"strings"

	tea "github.com/charmbracelet/bubbletea"
)

// MultiSelectModel is a checklist. Space toggles the highlighted option and
// enter confirms the current set.
type MultiSelectModel struct {
	title     string
	options   []Option
	checked   map[int]bool
	cursor    int
	confirmed bool
	cancelled bool
}

// NewMultiSelectModel creates a checklist with the options whose values are
// listed in preselected already checked.
func NewMultiSelectModel(title string, options []Option, preselected []string) MultiSelectModel {
	checked := map[int]bool{}
	for i, o := range options {
		for _, v := range preselected {
			if o.Value == v {
				checked[i] = true
			}
		}
	}
	return MultiSelectModel{title: title, options: options, checked: checked}
}

// MoveDown returns a new model with the cursor moved down by one.
func (m MultiSelectModel) MoveDown() MultiSelectModel {
	if m.cursor < len(m.options)-1 {
		m.cursor++
	}
	return m
}

// MoveUp returns a new model with the cursor moved up by one.
func (m MultiSelectModel) MoveUp() MultiSelectModel {
	if m.cursor > 0 {
		m.cursor--
	}
	return m
}

// Toggle returns a new model with the highlighted option flipped.
func (m MultiSelectModel) Toggle() MultiSelectModel {
	if len(m.options) == 0 {
		return m
	}
	checked := make(map[int]bool, len(m.checked)+1)
	for k, v := range m.checked {
		checked[k] = v
	}
	checked[m.cursor] = !checked[m.cursor]
	m.checked = checked
	return m
}

// Cursor returns the current cursor position.
func (m MultiSelectModel) Cursor() int {
	return m.cursor
}

// Values returns the values of the checked options in list order.
func (m MultiSelectModel) Values() []string {
	var out []string
	for i, o := range m.options {
		if m.checked[i] {
			out = append(out, o.Value)
		}
	}
	return out
}

// Confirmed reports whether the user accepted the selection.
func (m MultiSelectModel) Confirmed() bool {
	return m.confirmed
}

// Cancelled reports whether the user dismissed the checklist.
func (m MultiSelectModel) Cancelled() bool {
	return m.cancelled
}

func (m MultiSelectModel) Init() tea.Cmd {
	return nil
}

func (m MultiSelectModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	switch key.String() {
	case "down", "j":
		m = m.MoveDown()
	case "up", "k":
		m = m.MoveUp()
	case " ", "x":
		m = m.Toggle()
	case "enter":
		m.confirmed = true
		return m, tea.Quit
	case "esc", "q", "ctrl+c":
		m.cancelled = true
		return m, tea.Quit
	}
	return m, nil
}

func (m MultiSelectModel) View() string {
	var sb strings.Builder
	sb.WriteString(titleStyle.Render(m.title) + "\n\n")
	for i, o := range m.options {
		box := "[ ]"
		if m.checked[i] {
			box = "[x]"
		}
		line := box + " " + o.Label
		if i == m.cursor {
			line = cursorStyle.Render("> " + line)
		} else {
			line = "  " + line
		}
		if o.Hint != "" {
			line += "  " + Muted(o.Hint)
		}
		sb.WriteString(line + "\n")
	}
	if m.confirmed || m.cancelled {
		return sb.String()
	}
	sb.WriteString("\n" + Muted("↑/↓: navigate   space: toggle   enter: confirm   esc: cancel") + "\n")
	return sb.String()
}
