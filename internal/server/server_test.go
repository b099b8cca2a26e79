package server_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/waabox/mercury/internal/auth"
	"github.com/waabox/mercury/internal/deviceflow"
	"github.com/waabox/mercury/internal/domain"
	"github.com/waabox/mercury/internal/server"
	"github.com/waabox/mercury/internal/store"
)

type fakeClock struct {
	cur time.Time
}

func (c *fakeClock) now() time.Time          { return c.cur }
func (c *fakeClock) advance(d time.Duration) { c.cur = c.cur.Add(d) }

type env struct {
	srv   *server.Server
	store *store.Store
	clock *fakeClock
}

// newFakeGitHub serves the OAuth token endpoint and the user API.
func newFakeGitHub(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/login/oauth/access_token", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil || r.Form.Get("code") != "gh-code" {
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(map[string]string{"error": "bad_verification_code"})
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"access_token": "gho_abc", "token_type": "bearer", "scope": "read:user,user:email"})
	})
	mux.HandleFunc("/user", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer gho_abc" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{"id": 42, "login": "ada", "name": "", "email": ""})
	})
	mux.HandleFunc("/user/emails", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]map[string]interface{}{
			{"email": "old@example.com", "primary": false, "verified": true},
			{"email": "ada@example.com", "primary": true, "verified": true},
		})
	})
	gh := httptest.NewServer(mux)
	t.Cleanup(gh.Close)
	return gh
}

func newEnv(t *testing.T) *env {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "mercury.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.Migrate(context.Background()))

	mem := deviceflow.NewMemoryStore()
	t.Cleanup(func() { mem.Close() })
	clock := &fakeClock{cur: time.Now()}
	flow := deviceflow.NewFlow(mem, "http://mercury.test/device", server.NewSessionIssuer(st, time.Hour), deviceflow.WithClock(clock.now))

	gh := newFakeGitHub(t)
	srv, err := server.New(server.Config{
		BaseURL:            "http://mercury.test",
		GitHubClientID:     "gh-client",
		GitHubClientSecret: "gh-secret",
		GitHubEndpoint: oauth2.Endpoint{
			AuthURL:   gh.URL + "/login/oauth/authorize",
			TokenURL:  gh.URL + "/login/oauth/access_token",
			AuthStyle: oauth2.AuthStyleInParams,
		},
		GitHubAPIURL: gh.URL,
		Version:      "test",
	}, flow, st, zerolog.Nop())
	require.NoError(t, err)
	return &env{srv: srv, store: st, clock: clock}
}

func (e *env) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.srv.ServeHTTP(rec, req)
	return rec
}

func (e *env) postForm(path string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return e.do(req)
}

func (e *env) signedInUser(t *testing.T) (domain.User, string) {
	t.Helper()
	ctx := context.Background()
	u, err := e.store.UpsertUser(ctx, domain.User{Name: "Ada", Email: "ada@example.com"})
	require.NoError(t, err)
	sess, err := e.store.CreateSession(ctx, u.ID, time.Hour, "test", "127.0.0.1")
	require.NoError(t, err)
	return u, sess.Token
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body
}

func TestHealth(t *testing.T) {
	e := newEnv(t)
	rec := e.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode(t, rec)["status"])
}

func TestDeviceFlow_EndToEnd(t *testing.T) {
	e := newEnv(t)
	user, session := e.signedInUser(t)

	rec := e.postForm("/api/auth/device/code", url.Values{"client_id": {"cli"}, "scope": {"openid profile email"}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	grant := decode(t, rec)
	deviceCode := grant["device_code"].(string)
	userCode := grant["user_code"].(string)
	assert.Equal(t, "http://mercury.test/device", grant["verification_uri"])
	assert.EqualValues(t, 5, grant["interval"])

	tokenForm := url.Values{
		"grant_type":  {"urn:ietf:params:oauth:grant-type:device_code"},
		"device_code": {deviceCode},
		"client_id":   {"cli"},
	}
	e.clock.advance(5 * time.Second)
	rec = e.postForm("/api/auth/device/token", tokenForm)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "authorization_pending", decode(t, rec)["error"])

	rec = e.do(httptest.NewRequest(http.MethodGet, "/api/auth/device?user_code="+url.QueryEscape(userCode), nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "pending", decode(t, rec)["status"])

	req := httptest.NewRequest(http.MethodPost, "/api/auth/device/approve", strings.NewReader(`{"userCode":"`+userCode+`"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+session)
	rec = e.do(req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	e.clock.advance(5 * time.Second)
	rec = e.postForm("/api/auth/device/token", tokenForm)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	tok := decode(t, rec)
	accessToken := tok["access_token"].(string)
	assert.NotEmpty(t, accessToken)
	assert.Equal(t, "Bearer", tok["token_type"])

	// the issued token is a session token
	req = httptest.NewRequest(http.MethodGet, "/api/auth/get-session", nil)
	req.Header.Set("Authorization", "Bearer "+accessToken)
	rec = e.do(req)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode(t, rec)["user"].(map[string]interface{})
	assert.Equal(t, user.ID, got["id"])
	assert.Equal(t, "ada@example.com", got["email"])

	// redeemed codes cannot be used again
	e.clock.advance(5 * time.Second)
	rec = e.postForm("/api/auth/device/token", tokenForm)
	assert.Equal(t, "invalid_grant", decode(t, rec)["error"])
}

func TestDeviceToken_Errors(t *testing.T) {
	e := newEnv(t)

	rec := e.postForm("/api/auth/device/token", url.Values{"grant_type": {"password"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "unsupported_grant_type", decode(t, rec)["error"])

	rec = e.postForm("/api/auth/device/token", url.Values{"grant_type": {"urn:ietf:params:oauth:grant-type:device_code"}})
	assert.Equal(t, "invalid_request", decode(t, rec)["error"])

	rec = e.postForm("/api/auth/device/code", url.Values{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_request", decode(t, rec)["error"])
}

func TestDeviceApprove_RequiresSession(t *testing.T) {
	e := newEnv(t)
	rec := e.postForm("/api/auth/device/approve", url.Values{"user_code": {"BCDF-GHJK"}})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestDeviceDeny(t *testing.T) {
	e := newEnv(t)
	_, session := e.signedInUser(t)
	rec := e.postForm("/api/auth/device/code", url.Values{"client_id": {"cli"}})
	grant := decode(t, rec)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/device/deny", strings.NewReader(url.Values{"user_code": {grant["user_code"].(string)}}.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.AddCookie(&http.Cookie{Name: server.SessionCookie, Value: session})
	require.Equal(t, http.StatusOK, e.do(req).Code)

	e.clock.advance(5 * time.Second)
	rec = e.postForm("/api/auth/device/token", url.Values{
		"grant_type":  {"urn:ietf:params:oauth:grant-type:device_code"},
		"device_code": {grant["device_code"].(string)},
		"client_id":   {"cli"},
	})
	assert.Equal(t, "access_denied", decode(t, rec)["error"])
}

func TestCLIClientAgainstServer(t *testing.T) {
	e := newEnv(t)
	ts := httptest.NewServer(e.srv)
	defer ts.Close()

	flow := auth.NewDeviceFlow("cli", ts.URL)
	grant, err := flow.RequestCode(context.Background())
	require.NoError(t, err)
	assert.Regexp(t, `^[A-Z]{4}-[A-Z]{4}$`, grant.UserCode)
	assert.Equal(t, 5, grant.Interval)

	res, err := flow.CheckToken(context.Background(), grant.DeviceCode)
	require.NoError(t, err)
	assert.Equal(t, auth.ErrorAuthorizationPending, res.ErrorCode)
}

func cookieValue(rec *httptest.ResponseRecorder, name string) string {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name && c.MaxAge >= 0 {
			return c.Value
		}
	}
	return ""
}

func TestGitHubSignIn(t *testing.T) {
	e := newEnv(t)

	rec := e.do(httptest.NewRequest(http.MethodGet, "/api/auth/sign-in/github?callbackURL="+url.QueryEscape("/approve?user_code=BCDF-GHJK"), nil))
	require.Equal(t, http.StatusFound, rec.Code)
	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "/login/oauth/authorize", loc.Path)
	assert.Equal(t, "gh-client", loc.Query().Get("client_id"))
	state := loc.Query().Get("state")
	require.NotEmpty(t, state)
	assert.Equal(t, state, cookieValue(rec, "mercury.oauth_state"))

	req := httptest.NewRequest(http.MethodGet, "/api/auth/callback/github?code=gh-code&state="+state, nil)
	for _, c := range rec.Result().Cookies() {
		req.AddCookie(c)
	}
	rec = e.do(req)
	require.Equal(t, http.StatusFound, rec.Code, rec.Body.String())
	assert.Equal(t, "/approve?user_code=BCDF-GHJK", rec.Header().Get("Location"))

	session := cookieValue(rec, server.SessionCookie)
	require.NotEmpty(t, session)
	user, _, err := e.store.FindUserBySessionToken(context.Background(), session)
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", user.Email)
	assert.Equal(t, "ada", user.Name)
}

func TestGitHubCallback_RejectsBadState(t *testing.T) {
	e := newEnv(t)
	req := httptest.NewRequest(http.MethodGet, "/api/auth/callback/github?code=gh-code&state=forged", nil)
	req.AddCookie(&http.Cookie{Name: "mercury.oauth_state", Value: "real"})
	rec := e.do(req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSignInRedirectStaysLocal(t *testing.T) {
	e := newEnv(t)
	rec := e.do(httptest.NewRequest(http.MethodGet, "/api/auth/sign-in/github?callbackURL="+url.QueryEscape("https://evil.example.com"), nil))
	assert.Equal(t, "/", cookieValue(rec, "mercury.callback_url"))
}

func TestApprovePages(t *testing.T) {
	e := newEnv(t)
	rec := e.postForm("/api/auth/device/code", url.Values{"client_id": {"cli"}})
	userCode := decode(t, rec)["user_code"].(string)

	// signed out users are sent to sign in first
	rec = e.do(httptest.NewRequest(http.MethodGet, "/approve?user_code="+userCode, nil))
	require.Equal(t, http.StatusFound, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Header().Get("Location"), "/sign-in?callbackURL="))

	_, session := e.signedInUser(t)
	req := httptest.NewRequest(http.MethodGet, "/approve?user_code="+userCode, nil)
	req.AddCookie(&http.Cookie{Name: server.SessionCookie, Value: session})
	rec = e.do(req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), userCode)

	req = httptest.NewRequest(http.MethodGet, "/approve?user_code=ZZZZ-ZZZZ", nil)
	req.AddCookie(&http.Cookie{Name: server.SessionCookie, Value: session})
	rec = e.do(req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "Invalid or expired code")

	req = httptest.NewRequest(http.MethodPost, "/approve", strings.NewReader(url.Values{"user_code": {userCode}, "action": {"approve"}}.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.AddCookie(&http.Cookie{Name: server.SessionCookie, Value: session})
	rec = e.do(req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Device approved")
}

func TestSignOut(t *testing.T) {
	e := newEnv(t)
	_, session := e.signedInUser(t)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/sign-out", nil)
	req.Header.Set("Authorization", "Bearer "+session)
	require.Equal(t, http.StatusOK, e.do(req).Code)

	req = httptest.NewRequest(http.MethodGet, "/api/auth/get-session", nil)
	req.Header.Set("Authorization", "Bearer "+session)
	assert.Equal(t, http.StatusUnauthorized, e.do(req).Code)
}

func TestPages(t *testing.T) {
	e := newEnv(t)
	for _, path := range []string{"/", "/sign-in", "/device?user_code=BCDF-GHJK"} {
		rec := e.do(httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
		assert.Contains(t, rec.Header().Get("Content-Type"), "text/html", path)
	}
}
