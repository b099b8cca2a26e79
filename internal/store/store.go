// Package store persists users, sessions and conversations in a relational
// database through GORM. Postgres is used for postgres:// DSNs; anything else
// is treated as a SQLite file path.
package store

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/waabox/mercury/internal/domain"
)

// Store is the relational repository shared by the CLI and the auth server.
type Store struct {
	db  *gorm.DB
	now func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock replaces the clock used for timestamps and session expiry.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// Open connects to the database named by dsn.
func Open(dsn string, opts ...Option) (*Store, error) {
	var dialector gorm.Dialector
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		dialector = postgres.Open(dsn)
	} else {
		dialector = sqlite.Open(dsn)
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	return New(db, opts...), nil
}

// New wraps an existing GORM handle.
func New(db *gorm.DB, opts ...Option) *Store {
	s := &Store{now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	s.db = db.Session(&gorm.Session{NowFunc: s.timestamp})
	return s
}

// Migrate creates or updates all tables.
func (s *Store) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(
		&userRecord{},
		&sessionRecord{},
		&accountRecord{},
		&conversationRecord{},
		&messageRecord{},
	)
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) timestamp() time.Time {
	return s.now().UTC()
}

func newSessionToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating session token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// UpsertUser creates the user identified by email, or updates its name and image.
func (s *Store) UpsertUser(ctx context.Context, u domain.User) (domain.User, error) {
	if u.Email == "" {
		return domain.User{}, errors.New("user email is required")
	}
	var rec userRecord
	err := s.db.WithContext(ctx).Where("email = ?", u.Email).First(&rec).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		now := s.timestamp()
		rec = userRecord{
			ID:            uuid.NewString(),
			Name:          u.Name,
			Email:         u.Email,
			EmailVerified: true,
			Image:         u.Image,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
			return domain.User{}, fmt.Errorf("creating user: %w", err)
		}
	case err != nil:
		return domain.User{}, fmt.Errorf("finding user: %w", err)
	default:
		rec.Name = u.Name
		rec.Image = u.Image
		rec.UpdatedAt = s.timestamp()
		if err := s.db.WithContext(ctx).Save(&rec).Error; err != nil {
			return domain.User{}, fmt.Errorf("updating user: %w", err)
		}
	}
	return rec.toDomain(), nil
}

// FindUser returns the user with the given id.
func (s *Store) FindUser(ctx context.Context, id string) (domain.User, error) {
	var rec userRecord
	if err := s.db.WithContext(ctx).First(&rec, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.User{}, domain.ErrNotFound
		}
		return domain.User{}, fmt.Errorf("finding user: %w", err)
	}
	return rec.toDomain(), nil
}

// LinkAccount records the provider identity for userID, replacing the stored
// provider access token when the link already exists.
func (s *Store) LinkAccount(ctx context.Context, userID, providerID, accountID, accessToken, scope string) error {
	now := s.timestamp()
	rec := accountRecord{
		ID:          uuid.NewString(),
		UserID:      userID,
		ProviderID:  providerID,
		AccountID:   accountID,
		AccessToken: accessToken,
		Scope:       scope,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "provider_id"}, {Name: "account_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"user_id", "access_token", "scope", "updated_at"}),
	}).Create(&rec).Error
	if err != nil {
		return fmt.Errorf("linking account: %w", err)
	}
	return nil
}

// CreateSession issues a new session token for userID valid for ttl.
func (s *Store) CreateSession(ctx context.Context, userID string, ttl time.Duration, userAgent, ipAddress string) (domain.Session, error) {
	token, err := newSessionToken()
	if err != nil {
		return domain.Session{}, err
	}
	now := s.timestamp()
	rec := sessionRecord{
		ID:        uuid.NewString(),
		UserID:    userID,
		Token:     token,
		ExpiresAt: now.Add(ttl),
		IPAddress: ipAddress,
		UserAgent: userAgent,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return domain.Session{}, fmt.Errorf("creating session: %w", err)
	}
	return rec.toDomain(), nil
}

// FindUserBySessionToken resolves an unexpired session token to its user.
// Unknown and expired tokens yield domain.ErrUnauthorized.
func (s *Store) FindUserBySessionToken(ctx context.Context, token string) (domain.User, domain.Session, error) {
	if token == "" {
		return domain.User{}, domain.Session{}, domain.ErrUnauthorized
	}
	var sess sessionRecord
	err := s.db.WithContext(ctx).Where("token = ?", token).First(&sess).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.User{}, domain.Session{}, domain.ErrUnauthorized
	}
	if err != nil {
		return domain.User{}, domain.Session{}, fmt.Errorf("finding session: %w", err)
	}
	session := sess.toDomain()
	if session.Expired(s.timestamp()) {
		return domain.User{}, domain.Session{}, domain.ErrUnauthorized
	}

	user, err := s.FindUser(ctx, sess.UserID)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.User{}, domain.Session{}, domain.ErrUnauthorized
	}
	if err != nil {
		return domain.User{}, domain.Session{}, err
	}
	return user, session, nil
}

// DeleteSession revokes a session token. Unknown tokens are ignored.
func (s *Store) DeleteSession(ctx context.Context, token string) error {
	if err := s.db.WithContext(ctx).Where("token = ?", token).Delete(&sessionRecord{}).Error; err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	return nil
}
