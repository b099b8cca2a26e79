package auth

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/waabox/mercury/internal/credentials"
	"github.com/waabox/mercury/internal/domain"
)

// SessionExpiredError is returned when the stored session can no longer be
// used and interactive re-authentication is required.
type SessionExpiredError struct {
	ExpiresAt *time.Time
}

func (e *SessionExpiredError) Error() string {
	return "session expired: run 'mercury login' again"
}

// Unwrap lets callers match the error with errors.Is(err, domain.ErrUnauthorized).
func (e *SessionExpiredError) Unwrap() error {
	return domain.ErrUnauthorized
}

// TokenManager guards access to the stored session token.
type TokenManager struct {
	store *credentials.Store
	now   func() time.Time
	mu    sync.Mutex
}

// NewTokenManager creates a TokenManager over the given credential store.
func NewTokenManager(store *credentials.Store) *TokenManager {
	return &TokenManager{store: store, now: time.Now}
}

// WithClock replaces the clock used for expiry checks.
func (tm *TokenManager) WithClock(now func() time.Time) *TokenManager {
	tm.now = now
	return tm
}

// Require returns the stored token if it is present and unexpired.
// It returns domain.ErrNotLoggedIn when nothing is stored and a
// *SessionExpiredError when the token is too close to expiry.
func (tm *TokenManager) Require() (credentials.Token, error) {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	tok, err := tm.store.Load()
	if err != nil {
		return credentials.Token{}, err
	}
	if tok.Expired(tm.now()) {
		return credentials.Token{}, &SessionExpiredError{ExpiresAt: tok.ExpiresAt}
	}
	return tok, nil
}

// LoggedIn reports whether a usable session is stored.
func (tm *TokenManager) LoggedIn() bool {
	_, err := tm.Require()
	return err == nil
}

// Store persists a token issued by the device flow.
func (tm *TokenManager) Store(resp TokenResponse) (credentials.Token, error) {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	tok, err := tm.store.Save(resp.AccessToken, resp.RefreshToken, resp.TokenType, resp.ExpiresIn)
	if err != nil {
		return credentials.Token{}, fmt.Errorf("storing token: %w", err)
	}
	return tok, nil
}

// Clear removes the stored session.
func (tm *TokenManager) Clear() error {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	return tm.store.Clear()
}

// Do runs fn with the current access token. A domain.ErrUnauthorized from fn
// means the server no longer accepts the session; it is reported as a
// *SessionExpiredError so the caller can ask the user to log in again.
func (tm *TokenManager) Do(fn func(accessToken string) error) error {
	tok, err := tm.Require()
	if err != nil {
		return err
	}
	if err := fn(tok.AccessToken); err != nil {
		var expired *SessionExpiredError
		if errors.Is(err, domain.ErrUnauthorized) && !errors.As(err, &expired) {
			return &SessionExpiredError{ExpiresAt: tok.ExpiresAt}
		}
		return err
	}
	return nil
}
