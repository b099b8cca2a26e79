package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/waabox/mercury/internal/domain"
)

var _ domain.ConversationRepository = (*Store)(nil)

// CreateConversation starts an empty conversation for userID.
func (s *Store) CreateConversation(ctx context.Context, userID string, mode domain.Mode, title string) (domain.Conversation, error) {
	now := s.timestamp()
	rec := conversationRecord{
		ID:        uuid.NewString(),
		UserID:    userID,
		Mode:      string(mode),
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return domain.Conversation{}, fmt.Errorf("creating conversation: %w", err)
	}
	return rec.toDomain(), nil
}

// FindConversation returns the conversation with its messages in creation order.
// Conversations owned by another user are reported as domain.ErrNotFound.
func (s *Store) FindConversation(ctx context.Context, id, userID string) (domain.Conversation, error) {
	var rec conversationRecord
	err := s.db.WithContext(ctx).
		Preload("Messages", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC") }).
		Where("id = ? AND user_id = ?", id, userID).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.Conversation{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Conversation{}, fmt.Errorf("finding conversation: %w", err)
	}
	return rec.toDomain(), nil
}

// AddMessage appends a message and bumps the conversation's updated_at.
func (s *Store) AddMessage(ctx context.Context, conversationID string, role domain.Role, content string) (domain.Message, error) {
	now := s.timestamp()
	rec := messageRecord{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Role:           string(role),
		Content:        content,
		CreatedAt:      now,
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&conversationRecord{}).Where("id = ?", conversationID).Update("updated_at", now)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return domain.ErrNotFound
		}
		return tx.Create(&rec).Error
	})
	if errors.Is(err, domain.ErrNotFound) {
		return domain.Message{}, err
	}
	if err != nil {
		return domain.Message{}, fmt.Errorf("adding message: %w", err)
	}
	return rec.toDomain(), nil
}

// ListMessages returns the messages of a conversation in creation order.
func (s *Store) ListMessages(ctx context.Context, conversationID string) ([]domain.Message, error) {
	var recs []messageRecord
	err := s.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at ASC").
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("listing messages: %w", err)
	}
	out := make([]domain.Message, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.toDomain())
	}
	return out, nil
}

// ListConversations returns the user's conversations, most recently updated
// first. Each carries at most its first message as a preview.
func (s *Store) ListConversations(ctx context.Context, userID string) ([]domain.Conversation, error) {
	var recs []conversationRecord
	err := s.db.WithContext(ctx).
		Preload("Messages", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC") }).
		Where("user_id = ?", userID).
		Order("updated_at DESC").
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("listing conversations: %w", err)
	}
	out := make([]domain.Conversation, 0, len(recs))
	for _, r := range recs {
		if len(r.Messages) > 1 {
			r.Messages = r.Messages[:1]
		}
		out = append(out, r.toDomain())
	}
	return out, nil
}

// DeleteConversation removes a conversation and its messages.
func (s *Store) DeleteConversation(ctx context.Context, id, userID string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("id = ? AND user_id = ?", id, userID).Delete(&conversationRecord{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return domain.ErrNotFound
		}
		return tx.Where("conversation_id = ?", id).Delete(&messageRecord{}).Error
	})
	if errors.Is(err, domain.ErrNotFound) {
		return err
	}
	if err != nil {
		return fmt.Errorf("deleting conversation: %w", err)
	}
	return nil
}

// UpdateTitle renames a conversation owned by userID.
func (s *Store) UpdateTitle(ctx context.Context, id, userID, title string) error {
	res := s.db.WithContext(ctx).Model(&conversationRecord{}).
		Where("id = ? AND user_id = ?", id, userID).
		Updates(map[string]interface{}{"title": title, "updated_at": s.timestamp()})
	if res.Error != nil {
		return fmt.Errorf("updating title: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}
