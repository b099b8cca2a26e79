package server

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/waabox/mercury/internal/domain"
)

const stateTTL = 10 * time.Minute

type githubUser struct {
	ID        int64  `json:"id"`
	Login     string `json:"login"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	AvatarURL string `json:"avatar_url"`
}

type githubEmail struct {
	Email    string `json:"email"`
	Primary  bool   `json:"primary"`
	Verified bool   `json:"verified"`
}

// localPath returns target when it is a path on this server, otherwise "/".
func localPath(target string) string {
	if target == "" || !strings.HasPrefix(target, "/") || strings.HasPrefix(target, "//") || strings.HasPrefix(target, "/\\") {
		return "/"
	}
	return target
}

func newState() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// handleGitHubSignIn redirects to GitHub. callbackURL is where the user
// lands after signing in.
func (s *Server) handleGitHubSignIn(w http.ResponseWriter, r *http.Request) {
	state, err := newState()
	if err != nil {
		s.log.Error().Err(err).Msg("generating oauth state")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	for name, value := range map[string]string{
		stateCookie:    state,
		callbackCookie: localPath(r.URL.Query().Get("callbackURL")),
	} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    value,
			Path:     "/",
			MaxAge:   int(stateTTL / time.Second),
			HttpOnly: true,
			Secure:   s.cfg.SecureCookies,
			SameSite: http.SameSiteLaxMode,
		})
	}
	http.Redirect(w, r, s.oauth.AuthCodeURL(state), http.StatusFound)
}

func (s *Server) handleGitHubCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	stateC, err := r.Cookie(stateCookie)
	state := r.URL.Query().Get("state")
	if err != nil || state == "" || subtle.ConstantTimeCompare([]byte(stateC.Value), []byte(state)) != 1 {
		s.renderError(w, http.StatusBadRequest, "Sign-in failed", "The sign-in request expired or was tampered with. Please try again.")
		return
	}
	s.clearCookie(w, stateCookie)

	if e := r.URL.Query().Get("error"); e != "" {
		s.renderError(w, http.StatusBadRequest, "Sign-in cancelled", "GitHub did not authorize the sign-in: "+e)
		return
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, s.client)
	tok, err := s.oauth.Exchange(ctx, r.URL.Query().Get("code"))
	if err != nil {
		s.log.Warn().Err(err).Msg("github code exchange failed")
		s.renderError(w, http.StatusBadGateway, "Sign-in failed", "Could not complete the GitHub sign-in.")
		return
	}

	gh, err := s.fetchGitHubUser(ctx, tok.AccessToken)
	if err != nil {
		s.log.Warn().Err(err).Msg("fetching github profile failed")
		s.renderError(w, http.StatusBadGateway, "Sign-in failed", "Could not read your GitHub profile.")
		return
	}

	user, err := s.accounts.UpsertUser(ctx, domain.User{Name: gh.Name, Email: gh.Email, Image: gh.AvatarURL})
	if err != nil {
		s.log.Error().Err(err).Msg("saving user")
		s.renderError(w, http.StatusInternalServerError, "Sign-in failed", "Could not save your account.")
		return
	}
	scope, _ := tok.Extra("scope").(string)
	if err := s.accounts.LinkAccount(ctx, user.ID, githubProviderID, strconv.FormatInt(gh.ID, 10), tok.AccessToken, scope); err != nil {
		s.log.Error().Err(err).Msg("linking github account")
		s.renderError(w, http.StatusInternalServerError, "Sign-in failed", "Could not save your account.")
		return
	}
	sess, err := s.accounts.CreateSession(ctx, user.ID, s.cfg.SessionTTL, r.UserAgent(), r.RemoteAddr)
	if err != nil {
		s.log.Error().Err(err).Msg("creating session")
		s.renderError(w, http.StatusInternalServerError, "Sign-in failed", "Could not start your session.")
		return
	}
	s.setSessionCookie(w, sess)
	s.log.Info().Str("user_id", user.ID).Str("login", gh.Login).Msg("signed in with github")

	target := "/"
	if c, err := r.Cookie(callbackCookie); err == nil {
		target = localPath(c.Value)
	}
	s.clearCookie(w, callbackCookie)
	http.Redirect(w, r, target, http.StatusFound)
}

// fetchGitHubUser reads the profile and, when the profile hides it, the
// primary verified email.
func (s *Server) fetchGitHubUser(ctx context.Context, accessToken string) (githubUser, error) {
	var u githubUser
	if err := s.githubGet(ctx, accessToken, "/user", &u); err != nil {
		return githubUser{}, err
	}
	if u.Email == "" {
		var emails []githubEmail
		if err := s.githubGet(ctx, accessToken, "/user/emails", &emails); err != nil {
			return githubUser{}, err
		}
		for _, e := range emails {
			if e.Primary && e.Verified {
				u.Email = e.Email
				break
			}
		}
	}
	if u.Email == "" {
		return githubUser{}, errors.New("github account has no verified primary email")
	}
	if u.Name == "" {
		u.Name = u.Login
	}
	return u, nil
}

func (s *Server) githubGet(ctx context.Context, accessToken, path string, v interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.cfg.GitHubAPIURL+path, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("github API %s returned %d: %s", path, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
