package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// BoxKind selects the colour scheme of a message box.
type BoxKind int

const (
	BoxInfo BoxKind = iota
	BoxUser
	BoxAssistant
	BoxAgent
	BoxWarning
	BoxError
)

var boxColors = map[BoxKind]lipgloss.Color{
	BoxInfo:      lipgloss.Color("6"),
	BoxUser:      lipgloss.Color("4"),
	BoxAssistant: lipgloss.Color("2"),
	BoxAgent:     lipgloss.Color("5"),
	BoxWarning:   lipgloss.Color("3"),
	BoxError:     lipgloss.Color("1"),
}

var (
	titleStyle  = lipgloss.NewStyle().Bold(true)
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	cursorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("6")).Bold(true)
	codeStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("3")).Bold(true)
)

// Box renders body inside a rounded border, with an optional bold title line.
func Box(kind BoxKind, title, body string) string {
	color, ok := boxColors[kind]
	if !ok {
		color = boxColors[BoxInfo]
	}
	style := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(color).
		Padding(0, 1)
	content := strings.TrimRight(body, "\n")
	if title != "" {
		content = titleStyle.Foreground(color).Render(title) + "\n" + content
	}
	return style.Render(content)
}

// Muted renders s in a dim colour.
func Muted(s string) string {
	return mutedStyle.Render(s)
}

// Rule is the horizontal separator printed around streamed replies.
func Rule() string {
	return mutedStyle.Render(strings.Repeat("─", 50))
}

func formatAge(t time.Time) string {
	if t.IsZero() {
		return "--"
	}
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds ago", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 48*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-1]) + "…"
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
