package credentials

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/waabox/mercury/internal/domain"
)

// expirySkew treats a token as expired slightly before its real expiry.
const expirySkew = time.Minute

// Token is the credential persisted after a successful device login.
type Token struct {
	AccessToken  string     `json:"access_token"`
	RefreshToken string     `json:"refresh_token,omitempty"`
	TokenType    string     `json:"token_type"`
	ExpiresAt    *time.Time `json:"expires_at"`
	CreatedAt    time.Time  `json:"created_at"`
}

// Expired reports whether t is unusable at now. A token without an expiry is
// considered expired.
func (t Token) Expired(now time.Time) bool {
	if t.ExpiresAt == nil {
		return true
	}
	return t.ExpiresAt.Sub(now) < expirySkew
}

// Store reads and writes the token file.
type Store struct {
	Path string
	now  func() time.Time
}

// NewStore creates a Store backed by the file at path.
func NewStore(path string) *Store {
	return &Store{Path: path, now: time.Now}
}

// WithClock returns a copy of s that uses now instead of time.Now.
func (s *Store) WithClock(now func() time.Time) *Store {
	c := *s
	c.now = now
	return &c
}

// DefaultPath returns ~/.mercury/token.json.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".mercury", "token.json")
}

// EnsureParentDir creates the directory holding path with 0700 permissions.
func EnsureParentDir(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	return nil
}

// Load returns the stored token, or domain.ErrNotLoggedIn when no token file exists.
func (s *Store) Load() (Token, error) {
	b, err := os.ReadFile(s.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return Token{}, domain.ErrNotLoggedIn
	}
	if err != nil {
		return Token{}, fmt.Errorf("failed to read token file: %w", err)
	}
	var t Token
	if err := json.Unmarshal(b, &t); err != nil {
		return Token{}, fmt.Errorf("failed to parse token file: %w", err)
	}
	if t.AccessToken == "" {
		return Token{}, domain.ErrNotLoggedIn
	}
	return t, nil
}

// Save persists a freshly issued token. expiresIn is in seconds; zero leaves
// expires_at empty.
func (s *Store) Save(accessToken, refreshToken, tokenType string, expiresIn int) (Token, error) {
	now := s.now()
	t := Token{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    tokenType,
		CreatedAt:    now.UTC(),
	}
	if expiresIn > 0 {
		exp := now.Add(time.Duration(expiresIn) * time.Second).UTC()
		t.ExpiresAt = &exp
	}

	if err := EnsureParentDir(s.Path); err != nil {
		return Token{}, err
	}
	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return Token{}, fmt.Errorf("failed to marshal token: %w", err)
	}
	if err := os.WriteFile(s.Path, data, 0600); err != nil {
		return Token{}, fmt.Errorf("failed to write token file: %w", err)
	}
	return t, nil
}

// Clear removes the token file. A missing file is not an error.
func (s *Store) Clear() error {
	if err := os.Remove(s.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove token file: %w", err)
	}
	return nil
}

// IsExpired reports whether the stored token is missing or expired.
func (s *Store) IsExpired() bool {
	t, err := s.Load()
	if err != nil {
		return true
	}
	return t.Expired(s.now())
}
