package domain

import (
	"context"
	"time"
)

// Mode is the kind of session a conversation was started in.
type Mode string

const (
	ModeChat  Mode = "chat"
	ModeTool  Mode = "tool"
	ModeAgent Mode = "agent"
)

// Valid reports whether m is one of the known modes.
func (m Mode) Valid() bool {
	switch m {
	case ModeChat, ModeTool, ModeAgent:
		return true
	}
	return false
}

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message is a single persisted chat message.
// Content holds the raw stored text; structured content is stored as JSON.
type Message struct {
	ID             string
	ConversationID string
	Role           Role
	Content        string
	CreatedAt      time.Time
}

// Conversation is a titled sequence of messages owned by one user.
type Conversation struct {
	ID        string
	UserID    string
	Mode      Mode
	Title     string
	CreatedAt time.Time
	UpdatedAt time.Time
	Messages  []Message
}

// ConversationRepository persists conversations and their messages.
// Lookups scoped by userID report rows owned by someone else as ErrNotFound.
type ConversationRepository interface {
	CreateConversation(ctx context.Context, userID string, mode Mode, title string) (Conversation, error)
	FindConversation(ctx context.Context, id, userID string) (Conversation, error)
	AddMessage(ctx context.Context, conversationID string, role Role, content string) (Message, error)
	ListMessages(ctx context.Context, conversationID string) ([]Message, error)
	ListConversations(ctx context.Context, userID string) ([]Conversation, error)
	DeleteConversation(ctx context.Context, id, userID string) error
	UpdateTitle(ctx context.Context, id, userID, title string) error
}
