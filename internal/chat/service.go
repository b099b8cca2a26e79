// Package chat manages conversations and their message history.
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/waabox/mercury/internal/domain"
)

// titleLen is the number of characters of the first message kept in a title.
const titleLen = 50

// DefaultTitle is the title given to a conversation before its first exchange.
func DefaultTitle(mode domain.Mode) string {
	return fmt.Sprintf("New %s Conversation", mode)
}

// TitleFromInput derives a conversation title from the user's first message.
func TitleFromInput(input string) string {
	input = strings.TrimSpace(input)
	r := []rune(input)
	if len(r) <= titleLen {
		return input
	}
	return string(r[:titleLen]) + "..."
}

// DecodeContent returns the JSON value stored in content, or content itself
// when it is not valid JSON.
func DecodeContent(content string) interface{} {
	var v interface{}
	if err := json.Unmarshal([]byte(content), &v); err != nil {
		return content
	}
	return v
}

// DisplayContent returns the text shown to the user for a stored message.
func DisplayContent(content string) string {
	if s, ok := DecodeContent(content).(string); ok {
		return s
	}
	return content
}

// Service implements conversation use cases on top of a repository.
type Service struct {
	repo domain.ConversationRepository
}

// NewService creates a chat Service.
func NewService(repo domain.ConversationRepository) *Service {
	return &Service{repo: repo}
}

// CreateConversation starts a conversation. An empty title gets DefaultTitle.
func (s *Service) CreateConversation(ctx context.Context, userID string, mode domain.Mode, title string) (domain.Conversation, error) {
	if !mode.Valid() {
		return domain.Conversation{}, fmt.Errorf("unknown conversation mode %q", mode)
	}
	if title == "" {
		title = DefaultTitle(mode)
	}
	return s.repo.CreateConversation(ctx, userID, mode, title)
}

// GetOrCreateConversation resumes conversationID when it exists and belongs to
// userID; otherwise it starts a new conversation in mode.
func (s *Service) GetOrCreateConversation(ctx context.Context, userID string, mode domain.Mode, conversationID string) (domain.Conversation, error) {
	if conversationID != "" {
		conv, err := s.repo.FindConversation(ctx, conversationID, userID)
		if err == nil {
			return conv, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return domain.Conversation{}, err
		}
	}
	return s.CreateConversation(ctx, userID, mode, "")
}

// AddMessage stores content in the conversation. Strings are stored as is;
// any other value is JSON-encoded.
func (s *Service) AddMessage(ctx context.Context, conversationID string, role domain.Role, content interface{}) (domain.Message, error) {
	var text string
	switch v := content.(type) {
	case string:
		text = v
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return domain.Message{}, fmt.Errorf("encoding message content: %w", err)
		}
		text = string(b)
	}
	return s.repo.AddMessage(ctx, conversationID, role, text)
}

// Messages returns the conversation history in creation order.
func (s *Service) Messages(ctx context.Context, conversationID string) ([]domain.Message, error) {
	if conversationID == "" {
		return nil, nil
	}
	return s.repo.ListMessages(ctx, conversationID)
}

// UserConversations lists the user's conversations, most recent first.
func (s *Service) UserConversations(ctx context.Context, userID string) ([]domain.Conversation, error) {
	return s.repo.ListConversations(ctx, userID)
}

// DeleteConversation removes a conversation owned by userID.
func (s *Service) DeleteConversation(ctx context.Context, conversationID, userID string) error {
	return s.repo.DeleteConversation(ctx, conversationID, userID)
}

// UpdateTitle renames a conversation owned by userID.
func (s *Service) UpdateTitle(ctx context.Context, conversationID, userID, title string) error {
	return s.repo.UpdateTitle(ctx, conversationID, userID, title)
}

// TitleAfterFirstMessage sets the title from input when messageCount shows
// that input was the first message of the conversation. It reports whether
// the title changed.
func (s *Service) TitleAfterFirstMessage(ctx context.Context, conversationID, userID, input string, messageCount int) (bool, error) {
	if messageCount != 1 || strings.TrimSpace(input) == "" {
		return false, nil
	}
	if err := s.repo.UpdateTitle(ctx, conversationID, userID, TitleFromInput(input)); err != nil {
		return false, err
	}
	return true, nil
}

// FormatForModel converts stored messages into model input. JSON content is
// passed through in compact form.
func FormatForModel(messages []domain.Message) []domain.ChatMessage {
	out := make([]domain.ChatMessage, 0, len(messages))
	for _, m := range messages {
		content := m.Content
		if v := DecodeContent(content); v != nil {
			if _, isString := v.(string); !isString {
				if b, err := json.Marshal(v); err == nil {
					content = string(b)
				}
			}
		}
		out = append(out, domain.ChatMessage{Role: m.Role, Content: content})
	}
	return out
}
