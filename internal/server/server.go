// Package server is the mercury authorization server: device authorization
// endpoints, GitHub sign-in, session cookies and the device approval pages.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"

	"github.com/waabox/mercury/internal/deviceflow"
	"github.com/waabox/mercury/internal/domain"
)

const (
	SessionCookie    = "mercury.session_token"
	stateCookie      = "mercury.oauth_state"
	callbackCookie   = "mercury.callback_url"
	githubProviderID = "github"
)

// Accounts is the persistence the server needs for users and sessions.
type Accounts interface {
	UpsertUser(ctx context.Context, u domain.User) (domain.User, error)
	LinkAccount(ctx context.Context, userID, providerID, accountID, accessToken, scope string) error
	CreateSession(ctx context.Context, userID string, ttl time.Duration, userAgent, ipAddress string) (domain.Session, error)
	FindUserBySessionToken(ctx context.Context, token string) (domain.User, domain.Session, error)
	DeleteSession(ctx context.Context, token string) error
}

// Config holds the server settings.
type Config struct {
	// BaseURL is the public URL of the server, without a trailing slash.
	BaseURL            string
	GitHubClientID     string
	GitHubClientSecret string
	// GitHubEndpoint and GitHubAPIURL default to github.com.
	GitHubEndpoint oauth2.Endpoint
	GitHubAPIURL   string
	SessionTTL     time.Duration
	SecureCookies  bool
	Version        string
}

// Server serves the authorization API and pages.
type Server struct {
	cfg      Config
	router   chi.Router
	flow     *deviceflow.Flow
	accounts Accounts
	oauth    *oauth2.Config
	pages    *pages
	client   *http.Client
	log      zerolog.Logger
}

// New creates a Server.
func New(cfg Config, flow *deviceflow.Flow, accounts Accounts, log zerolog.Logger) (*Server, error) {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.GitHubEndpoint.AuthURL == "" {
		cfg.GitHubEndpoint = github.Endpoint
	}
	if cfg.GitHubAPIURL == "" {
		cfg.GitHubAPIURL = "https://api.github.com"
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 7 * 24 * time.Hour
	}

	p, err := loadPages()
	if err != nil {
		return nil, fmt.Errorf("loading templates: %w", err)
	}

	s := &Server{
		cfg:      cfg,
		router:   chi.NewRouter(),
		flow:     flow,
		accounts: accounts,
		oauth: &oauth2.Config{
			ClientID:     cfg.GitHubClientID,
			ClientSecret: cfg.GitHubClientSecret,
			RedirectURL:  cfg.BaseURL + "/api/auth/callback/github",
			Scopes:       []string{"read:user", "user:email"},
			Endpoint:     cfg.GitHubEndpoint,
		},
		pages:  p,
		client: &http.Client{Timeout: 15 * time.Second},
		log:    log,
	}
	s.routes()
	return s, nil
}

func (s *Server) routes() {
	r := s.router
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.loggingMiddleware)

	r.Get("/health", s.handleHealth)

	r.Route("/api/auth", func(r chi.Router) {
		r.Post("/device/code", s.handleDeviceCode)
		r.Post("/device/token", s.handleDeviceToken)
		r.Get("/device", s.handleDeviceVerify)
		r.Post("/device/approve", s.requireSession(s.handleDeviceApprove))
		r.Post("/device/deny", s.requireSession(s.handleDeviceDeny))

		r.Get("/sign-in/github", s.handleGitHubSignIn)
		r.Get("/callback/github", s.handleGitHubCallback)
		r.Get("/get-session", s.handleGetSession)
		r.Post("/sign-out", s.handleSignOut)
	})

	r.Get("/", s.handleHome)
	r.Get("/sign-in", s.handleSignInPage)
	r.Get("/device", s.handleDevicePage)
	r.Get("/approve", s.handleApprovePage)
	r.Post("/approve", s.handleApproveForm)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Info().
			Str("method", r.Method).
			Str("uri", r.URL.Path).
			Str("remote_addr", r.RemoteAddr).
			Str("user_agent", r.UserAgent()).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]string{"status": "ok", "version": s.cfg.Version}
	status := http.StatusOK
	if err := s.flow.Ping(r.Context()); err != nil {
		s.log.Warn().Err(err).Msg("health check failed")
		resp["status"] = "degraded"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeOAuthError sends err as an OAuth error response. Errors that are not
// a *deviceflow.DeviceFlowError become server_error.
func (s *Server) writeOAuthError(w http.ResponseWriter, err error) {
	var dfe *deviceflow.DeviceFlowError
	if !errors.As(err, &dfe) {
		s.log.Error().Err(err).Msg("device flow failure")
		writeJSON(w, http.StatusInternalServerError, deviceflow.NewDeviceFlowError(deviceflow.ErrorCodeServerError, "internal error"))
		return
	}
	status := http.StatusBadRequest
	if dfe.Code == deviceflow.ErrorCodeServerError {
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, dfe)
}
