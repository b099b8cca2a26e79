package tui

import (
	"context"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/waabox/mercury/internal/domain"
)

// ConversationSource loads and deletes the signed-in user's conversations.
type ConversationSource interface {
	UserConversations(ctx context.Context, userID string) ([]domain.Conversation, error)
	DeleteConversation(ctx context.Context, conversationID, userID string) error
}

// ConversationsLoadedMsg is sent when the conversation list has been fetched.
// It is exported so that tests can inject it directly into ConversationsModel.Update.
type ConversationsLoadedMsg struct {
	Conversations []domain.Conversation
	Err           error
}

// conversationDeletedMsg is sent when a delete completes.
type conversationDeletedMsg struct {
	err error
}

// ConversationsModel lists conversations, lets the user pick one to resume
// and deletes conversations after a y/N confirmation.
type ConversationsModel struct {
	source        ConversationSource
	userID        string
	conversations []domain.Conversation
	cursor        int
	loading       bool
	confirmDelete bool
	chosen        bool
	err           error
}

// NewConversationsModel creates the conversation browser for userID.
func NewConversationsModel(source ConversationSource, userID string) ConversationsModel {
	return ConversationsModel{source: source, userID: userID, loading: true}
}

func (m ConversationsModel) Init() tea.Cmd {
	return m.load()
}

func (m ConversationsModel) load() tea.Cmd {
	return func() tea.Msg {
		convs, err := m.source.UserConversations(context.Background(), m.userID)
		return ConversationsLoadedMsg{Conversations: convs, Err: err}
	}
}

func (m ConversationsModel) delete(id string) tea.Cmd {
	return func() tea.Msg {
		return conversationDeletedMsg{err: m.source.DeleteConversation(context.Background(), id, m.userID)}
	}
}

// Selected returns the highlighted conversation, or the zero value when the list is empty.
func (m ConversationsModel) Selected() domain.Conversation {
	if len(m.conversations) == 0 {
		return domain.Conversation{}
	}
	return m.conversations[m.cursor]
}

// Chosen reports whether the user picked a conversation to resume.
func (m ConversationsModel) Chosen() bool {
	return m.chosen
}

// Cursor returns the current cursor position.
func (m ConversationsModel) Cursor() int {
	return m.cursor
}

func (m ConversationsModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case ConversationsLoadedMsg:
		m.loading = false
		if msg.Err != nil {
			m.err = msg.Err
			return m, nil
		}
		m.err = nil
		m.conversations = msg.Conversations
		if m.cursor >= len(m.conversations) {
			m.cursor = len(m.conversations) - 1
		}
		if m.cursor < 0 {
			m.cursor = 0
		}

	case conversationDeletedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.loading = true
		return m, m.load()

	case tea.KeyMsg:
		if m.confirmDelete {
			switch msg.String() {
			case "y":
				m.confirmDelete = false
				if len(m.conversations) == 0 {
					return m, nil
				}
				return m, m.delete(m.Selected().ID)
			case "ctrl+c":
				return m, tea.Quit
			default:
				m.confirmDelete = false
				return m, nil
			}
		}
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			return m, tea.Quit
		case "down", "j":
			if m.cursor < len(m.conversations)-1 {
				m.cursor++
			}
		case "up", "k":
			if m.cursor > 0 {
				m.cursor--
			}
		case "enter":
			if len(m.conversations) > 0 {
				m.chosen = true
				return m, tea.Quit
			}
		case "d":
			if len(m.conversations) > 0 {
				m.confirmDelete = true
			}
		case "ctrl+r":
			m.loading = true
			return m, m.load()
		}
	}
	return m, nil
}

func (m ConversationsModel) View() string {
	if m.loading {
		return "Loading conversations...\n"
	}
	if m.err != nil {
		return fmt.Sprintf("Error: %v\n\nPress 'ctrl+r' to retry or 'q' to quit.\n", m.err)
	}
	if m.chosen {
		return ""
	}

	header := titleStyle.Render(" mercury | conversations") + "\n"
	separator := "────────────────────────────────────────────────────────────\n"
	if len(m.conversations) == 0 {
		return header + separator + " No conversations yet. Run 'mercury wakeup' to start one.\n"
	}

	var sb strings.Builder
	for i, c := range m.conversations {
		prefix := "  "
		if i == m.cursor {
			prefix = "> "
		}
		line := fmt.Sprintf("%s%-6s %-40s %s", prefix, c.Mode, truncate(c.Title, 40), formatAge(c.UpdatedAt))
		if i == m.cursor {
			line = cursorStyle.Render(line)
		}
		sb.WriteString(line + "\n")
	}

	preview := ""
	if sel := m.Selected(); len(sel.Messages) > 0 {
		preview = " " + Muted(truncate(firstLine(sel.Messages[0].Content), 70)) + "\n"
	}
	footer := " ↑/↓: navigate   enter: resume   d: delete   ctrl+r: refresh   q: quit\n"
	if m.confirmDelete {
		footer = fmt.Sprintf(" Delete conversation %q? [y/N] \n", truncate(m.Selected().Title, 40))
	}
	return header + separator + sb.String() + separator + preview + footer
}
