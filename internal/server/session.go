package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/waabox/mercury/internal/deviceflow"
	"github.com/waabox/mercury/internal/domain"
)

// sessionToken returns the bearer token or, failing that, the session cookie.
func sessionToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	if c, err := r.Cookie(SessionCookie); err == nil {
		return c.Value
	}
	return ""
}

// currentUser resolves the request's session. It returns domain.ErrUnauthorized
// when there is no valid session.
func (s *Server) currentUser(r *http.Request) (domain.User, domain.Session, error) {
	token := sessionToken(r)
	if token == "" {
		return domain.User{}, domain.Session{}, domain.ErrUnauthorized
	}
	return s.accounts.FindUserBySessionToken(r.Context(), token)
}

func (s *Server) requireSession(next func(http.ResponseWriter, *http.Request, domain.User)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, _, err := s.currentUser(r)
		if errors.Is(err, domain.ErrUnauthorized) {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		if err != nil {
			s.log.Error().Err(err).Msg("resolving session")
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "server_error"})
			return
		}
		next(w, r, user)
	}
}

func (s *Server) setSessionCookie(w http.ResponseWriter, sess domain.Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    sess.Token,
		Path:     "/",
		Expires:  sess.ExpiresAt,
		HttpOnly: true,
		Secure:   s.cfg.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) clearCookie(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.cfg.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

type sessionUser struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Image string `json:"image,omitempty"`
}

type sessionInfo struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	user, sess, err := s.currentUser(r)
	if errors.Is(err, domain.ErrUnauthorized) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}
	if err != nil {
		s.log.Error().Err(err).Msg("resolving session")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "server_error"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"user":    sessionUser{ID: user.ID, Name: user.Name, Email: user.Email, Image: user.Image},
		"session": sessionInfo{ID: sess.ID, UserID: sess.UserID, ExpiresAt: sess.ExpiresAt},
	})
}

func (s *Server) handleSignOut(w http.ResponseWriter, r *http.Request) {
	if token := sessionToken(r); token != "" {
		if err := s.accounts.DeleteSession(r.Context(), token); err != nil {
			s.log.Error().Err(err).Msg("deleting session")
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "server_error"})
			return
		}
	}
	s.clearCookie(w, SessionCookie)
	if strings.Contains(r.Header.Get("Accept"), "text/html") {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// NewSessionIssuer returns a deviceflow.SessionIssuer that redeems approved
// device codes for ordinary sessions, so the CLI's token is a session token.
func NewSessionIssuer(accounts Accounts, ttl time.Duration) deviceflow.SessionIssuer {
	return func(ctx context.Context, userID string) (string, int, error) {
		sess, err := accounts.CreateSession(ctx, userID, ttl, "Mercury CLI", "")
		if err != nil {
			return "", 0, err
		}
		return sess.Token, int(ttl / time.Second), nil
	}
}
