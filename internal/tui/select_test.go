package tui_test

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/go-cmp/cmp"

	"github.com/waabox/mercury/internal/tui"
)

func key(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "up":
		return tea.KeyMsg{Type: tea.KeyUp}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func isQuit(cmd tea.Cmd) bool {
	if cmd == nil {
		return false
	}
	_, ok := cmd().(tea.QuitMsg)
	return ok
}

var modes = []tui.Option{
	{Value: "chat", Label: "Chat", Hint: "Simple chat with AI"},
	{Value: "tool", Label: "Tool Calling", Hint: "Chat with tools"},
	{Value: "agent", Label: "Agentic Mode", Hint: "Advanced AI agent"},
}

func TestSelectModel_RendersOptions(t *testing.T) {
	m := tui.NewSelectModel("Select an option:", modes)
	view := m.View()
	for _, want := range []string{"Select an option:", "Chat", "Tool Calling", "Agentic Mode"} {
		if !strings.Contains(view, want) {
			t.Errorf("expected %q in view, got:\n%s", want, view)
		}
	}
	if m.Selected().Value != "chat" {
		t.Errorf("expected first option selected, got %s", m.Selected().Value)
	}
}

func TestSelectModel_NavigatesWithinBounds(t *testing.T) {
	m := tui.NewSelectModel("t", modes)
	m = m.MoveUp()
	if m.Cursor() != 0 {
		t.Errorf("expected cursor 0, got %d", m.Cursor())
	}
	m = m.MoveDown().MoveDown().MoveDown()
	if m.Cursor() != 2 {
		t.Errorf("expected cursor clamped at 2, got %d", m.Cursor())
	}
}

func TestSelectModel_EnterChoosesAndQuits(t *testing.T) {
	var model tea.Model = tui.NewSelectModel("t", modes)
	model, _ = model.Update(key("down"))
	model, cmd := model.Update(key("enter"))

	m := model.(tui.SelectModel)
	if !m.Chosen() || m.Selected().Value != "tool" {
		t.Errorf("expected 'tool' chosen, got chosen=%v value=%s", m.Chosen(), m.Selected().Value)
	}
	if !isQuit(cmd) {
		t.Error("expected quit command after choosing")
	}
}

func TestSelectModel_EscCancels(t *testing.T) {
	model, cmd := tui.NewSelectModel("t", modes).Update(key("esc"))
	m := model.(tui.SelectModel)
	if !m.Cancelled() || m.Chosen() {
		t.Error("expected cancelled without choice")
	}
	if !isQuit(cmd) {
		t.Error("expected quit command after cancel")
	}
}

func TestSelectModel_EnterOnEmptyListDoesNothing(t *testing.T) {
	model, cmd := tui.NewSelectModel("t", nil).Update(key("enter"))
	if model.(tui.SelectModel).Chosen() || cmd != nil {
		t.Error("expected no choice on empty list")
	}
}

func TestMultiSelectModel_ToggleAndConfirm(t *testing.T) {
	tools := []tui.Option{
		{Value: "google_search", Label: "Google Search"},
		{Value: "code_execution", Label: "Code Execution"},
		{Value: "url_context", Label: "URL Context"},
	}
	var model tea.Model = tui.NewMultiSelectModel("Select tools", tools, []string{"url_context"})
	model, _ = model.Update(key(" "))
	model, _ = model.Update(key("down"))
	model, _ = model.Update(key("x"))
	model, _ = model.Update(key("x"))
	model, cmd := model.Update(key("enter"))

	m := model.(tui.MultiSelectModel)
	if !m.Confirmed() {
		t.Fatal("expected confirmed")
	}
	if diff := cmp.Diff([]string{"google_search", "url_context"}, m.Values()); diff != "" {
		t.Errorf("values mismatch (-want +got):\n%s", diff)
	}
	if !isQuit(cmd) {
		t.Error("expected quit command after confirm")
	}
}

func TestMultiSelectModel_ViewShowsChecks(t *testing.T) {
	m := tui.NewMultiSelectModel("Select tools", []tui.Option{{Value: "a", Label: "Alpha"}, {Value: "b", Label: "Beta"}}, []string{"b"})
	view := m.View()
	if !strings.Contains(view, "[ ] Alpha") || !strings.Contains(view, "[x] Beta") {
		t.Errorf("unexpected view:\n%s", view)
	}
}

func TestMultiSelectModel_ToggleDoesNotMutateOriginal(t *testing.T) {
	m := tui.NewMultiSelectModel("t", []tui.Option{{Value: "a", Label: "A"}}, nil)
	toggled := m.Toggle()
	if len(m.Values()) != 0 {
		t.Error("original model must not change")
	}
	if diff := cmp.Diff([]string{"a"}, toggled.Values()); diff != "" {
		t.Errorf("values mismatch (-want +got):\n%s", diff)
	}
}
