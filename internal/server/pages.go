package server

import (
	"embed"
	"errors"
	"html/template"
	"net/http"
	"net/url"

	"github.com/waabox/mercury/internal/deviceflow"
	"github.com/waabox/mercury/internal/domain"
)

//go:embed templates/*.html
var templateFS embed.FS

type pages struct {
	home    *template.Template
	signIn  *template.Template
	device  *template.Template
	approve *template.Template
	message *template.Template
}

func loadPages() (*pages, error) {
	parse := func(name string) (*template.Template, error) {
		return template.ParseFS(templateFS, "templates/layout.html", "templates/"+name)
	}
	p := &pages{}
	var err error
	if p.home, err = parse("home.html"); err != nil {
		return nil, err
	}
	if p.signIn, err = parse("sign_in.html"); err != nil {
		return nil, err
	}
	if p.device, err = parse("device.html"); err != nil {
		return nil, err
	}
	if p.approve, err = parse("approve.html"); err != nil {
		return nil, err
	}
	if p.message, err = parse("message.html"); err != nil {
		return nil, err
	}
	return p, nil
}

type pageData struct {
	Title       string
	User        *domain.User
	UserCode    string
	ClientID    string
	Scope       string
	Error       string
	Message     string
	CallbackURL string
}

func (s *Server) render(w http.ResponseWriter, status int, t *template.Template, data pageData) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := t.ExecuteTemplate(w, "layout", data); err != nil {
		s.log.Error().Err(err).Str("page", data.Title).Msg("rendering page")
	}
}

func (s *Server) renderError(w http.ResponseWriter, status int, title, message string) {
	s.render(w, status, s.pages.message, pageData{Title: title, Error: message})
}

// optionalUser returns the signed-in user or nil.
func (s *Server) optionalUser(r *http.Request) *domain.User {
	user, _, err := s.currentUser(r)
	if err != nil {
		return nil
	}
	return &user
}

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	s.render(w, http.StatusOK, s.pages.home, pageData{Title: "Mercury", User: s.optionalUser(r)})
}

func (s *Server) handleSignInPage(w http.ResponseWriter, r *http.Request) {
	callback := localPath(r.URL.Query().Get("callbackURL"))
	if s.optionalUser(r) != nil {
		http.Redirect(w, r, callback, http.StatusFound)
		return
	}
	s.render(w, http.StatusOK, s.pages.signIn, pageData{Title: "Sign in", CallbackURL: callback})
}

func (s *Server) handleDevicePage(w http.ResponseWriter, r *http.Request) {
	s.render(w, http.StatusOK, s.pages.device, pageData{
		Title:    "Device Authorization",
		User:     s.optionalUser(r),
		UserCode: r.URL.Query().Get("user_code"),
	})
}

// handleApprovePage asks the signed-in user to approve or deny a device.
func (s *Server) handleApprovePage(w http.ResponseWriter, r *http.Request) {
	userCode := r.URL.Query().Get("user_code")
	user := s.optionalUser(r)
	if user == nil {
		target := "/approve?user_code=" + url.QueryEscape(userCode)
		http.Redirect(w, r, "/sign-in?callbackURL="+url.QueryEscape(target), http.StatusFound)
		return
	}

	code, err := s.flow.Lookup(r.Context(), userCode)
	if errors.Is(err, deviceflow.ErrCodeNotFound) {
		s.render(w, http.StatusNotFound, s.pages.device, pageData{
			Title:    "Device Authorization",
			User:     user,
			UserCode: userCode,
			Error:    "Invalid or expired code. Check the code shown in your terminal.",
		})
		return
	}
	if err != nil {
		s.log.Error().Err(err).Msg("looking up user code")
		s.renderError(w, http.StatusInternalServerError, "Something went wrong", "Please try again.")
		return
	}
	s.render(w, http.StatusOK, s.pages.approve, pageData{
		Title:    "Approve Device",
		User:     user,
		UserCode: code.UserCode,
		ClientID: code.ClientID,
		Scope:    code.Scope,
	})
}

// handleApproveForm handles the approve and deny buttons of the approve page.
func (s *Server) handleApproveForm(w http.ResponseWriter, r *http.Request) {
	user := s.optionalUser(r)
	if user == nil {
		http.Redirect(w, r, "/sign-in", http.StatusFound)
		return
	}
	if err := r.ParseForm(); err != nil {
		s.renderError(w, http.StatusBadRequest, "Bad request", "The form could not be read.")
		return
	}
	userCode := r.PostForm.Get("user_code")

	var err error
	var msg string
	switch r.PostForm.Get("action") {
	case "approve":
		err = s.flow.Approve(r.Context(), userCode, user.ID)
		msg = "Device approved. You can return to your terminal."
	case "deny":
		err = s.flow.Deny(r.Context(), userCode)
		msg = "Device denied. The terminal will not be signed in."
	default:
		s.renderError(w, http.StatusBadRequest, "Bad request", "Unknown action.")
		return
	}
	if errors.Is(err, deviceflow.ErrCodeNotFound) {
		s.renderError(w, http.StatusNotFound, "Code expired", "This code is no longer valid. Run 'mercury login' again.")
		return
	}
	if err != nil {
		s.log.Error().Err(err).Msg("recording device decision")
		s.renderError(w, http.StatusInternalServerError, "Something went wrong", "Please try again.")
		return
	}
	s.render(w, http.StatusOK, s.pages.message, pageData{Title: "Done", User: user, Message: msg})
}
