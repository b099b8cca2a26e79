package store

import (
	"time"

	"github.com/waabox/mercury/internal/domain"
)

type userRecord struct {
	ID            string `gorm:"primaryKey;type:varchar(36)"`
	Name          string
	Email         string `gorm:"uniqueIndex;not null"`
	EmailVerified bool   `gorm:"default:false"`
	Image         string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (userRecord) TableName() string { return "users" }

func (r userRecord) toDomain() domain.User {
	return domain.User{ID: r.ID, Name: r.Name, Email: r.Email, Image: r.Image}
}

type sessionRecord struct {
	ID        string    `gorm:"primaryKey;type:varchar(36)"`
	UserID    string    `gorm:"type:varchar(36);not null;index"`
	Token     string    `gorm:"uniqueIndex;not null"`
	ExpiresAt time.Time `gorm:"not null;index"`
	IPAddress string
	UserAgent string
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (sessionRecord) TableName() string { return "sessions" }

func (r sessionRecord) toDomain() domain.Session {
	return domain.Session{
		ID:        r.ID,
		UserID:    r.UserID,
		Token:     r.Token,
		ExpiresAt: r.ExpiresAt,
		UserAgent: r.UserAgent,
		IPAddress: r.IPAddress,
		CreatedAt: r.CreatedAt,
	}
}

// accountRecord links a user to an identity at a social provider.
type accountRecord struct {
	ID          string `gorm:"primaryKey;type:varchar(36)"`
	UserID      string `gorm:"type:varchar(36);not null;index"`
	ProviderID  string `gorm:"not null;uniqueIndex:idx_provider_account"`
	AccountID   string `gorm:"not null;uniqueIndex:idx_provider_account"`
	AccessToken string
	Scope       string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (accountRecord) TableName() string { return "accounts" }

type conversationRecord struct {
	ID        string          `gorm:"primaryKey;type:varchar(36)"`
	UserID    string          `gorm:"type:varchar(36);not null;index"`
	Mode      string          `gorm:"type:varchar(16);not null;default:'chat'"`
	Title     string
	CreatedAt time.Time
	UpdatedAt time.Time       `gorm:"index"`
	Messages  []messageRecord `gorm:"foreignKey:ConversationID;constraint:OnDelete:CASCADE"`
}

func (conversationRecord) TableName() string { return "conversations" }

func (r conversationRecord) toDomain() domain.Conversation {
	c := domain.Conversation{
		ID:        r.ID,
		UserID:    r.UserID,
		Mode:      domain.Mode(r.Mode),
		Title:     r.Title,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
	for _, m := range r.Messages {
		c.Messages = append(c.Messages, m.toDomain())
	}
	return c
}

type messageRecord struct {
	ID             string `gorm:"primaryKey;type:varchar(36)"`
	ConversationID string `gorm:"type:varchar(36);not null;index"`
	Role           string `gorm:"type:varchar(16);not null"`
	Content        string `gorm:"type:text;not null"`
	CreatedAt      time.Time
}

func (messageRecord) TableName() string { return "messages" }

func (r messageRecord) toDomain() domain.Message {
	return domain.Message{
		ID:             r.ID,
		ConversationID: r.ConversationID,
		Role:           domain.Role(r.Role),
		Content:        r.Content,
		CreatedAt:      r.CreatedAt,
	}
}
