package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/waabox/mercury/internal/deviceflow"
	"github.com/waabox/mercury/internal/domain"
)

const deviceGrantType = "urn:ietf:params:oauth:grant-type:device_code"

// handleDeviceCode implements the device authorization request of RFC 8628 section 3.1.
func (s *Server) handleDeviceCode(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.writeOAuthError(w, deviceflow.NewDeviceFlowError(deviceflow.ErrorCodeInvalidRequest, "invalid request format"))
		return
	}
	auth, err := s.flow.RequestCode(r.Context(), r.Form.Get("client_id"), r.Form.Get("scope"))
	if err != nil {
		s.writeOAuthError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, auth)
}

// handleDeviceToken implements the device access token request of RFC 8628 section 3.4.
func (s *Server) handleDeviceToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.writeOAuthError(w, deviceflow.NewDeviceFlowError(deviceflow.ErrorCodeInvalidRequest, "invalid request format"))
		return
	}
	if r.Form.Get("grant_type") != deviceGrantType {
		s.writeOAuthError(w, deviceflow.NewDeviceFlowError(deviceflow.ErrorCodeUnsupportedGrantType, ""))
		return
	}
	deviceCode := r.Form.Get("device_code")
	if deviceCode == "" {
		s.writeOAuthError(w, deviceflow.NewDeviceFlowError(deviceflow.ErrorCodeInvalidRequest, "device_code is required"))
		return
	}

	tok, err := s.flow.Exchange(r.Context(), deviceCode, r.Form.Get("client_id"))
	if err != nil {
		s.writeOAuthError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tok)
}

type deviceStatus struct {
	UserCode string `json:"user_code"`
	Status   string `json:"status"`
	ClientID string `json:"client_id"`
	Scope    string `json:"scope,omitempty"`
}

// handleDeviceVerify reports whether a user code belongs to a pending request.
func (s *Server) handleDeviceVerify(w http.ResponseWriter, r *http.Request) {
	code, err := s.flow.Lookup(r.Context(), r.URL.Query().Get("user_code"))
	if errors.Is(err, deviceflow.ErrCodeNotFound) {
		s.writeOAuthError(w, deviceflow.NewDeviceFlowError(deviceflow.ErrorCodeInvalidRequest, "invalid user code"))
		return
	}
	if err != nil {
		s.writeOAuthError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, deviceStatus{
		UserCode: code.UserCode,
		Status:   string(code.Status),
		ClientID: code.ClientID,
		Scope:    code.Scope,
	})
}

func (s *Server) handleDeviceApprove(w http.ResponseWriter, r *http.Request, user domain.User) {
	s.decideDevice(w, r, func(userCode string) error {
		return s.flow.Approve(r.Context(), userCode, user.ID)
	})
}

func (s *Server) handleDeviceDeny(w http.ResponseWriter, r *http.Request, _ domain.User) {
	s.decideDevice(w, r, func(userCode string) error {
		return s.flow.Deny(r.Context(), userCode)
	})
}

func (s *Server) decideDevice(w http.ResponseWriter, r *http.Request, decide func(userCode string) error) {
	userCode, err := readUserCode(r)
	if err != nil || userCode == "" {
		s.writeOAuthError(w, deviceflow.NewDeviceFlowError(deviceflow.ErrorCodeInvalidRequest, "userCode is required"))
		return
	}
	err = decide(userCode)
	if errors.Is(err, deviceflow.ErrCodeNotFound) {
		s.writeOAuthError(w, deviceflow.NewDeviceFlowError(deviceflow.ErrorCodeInvalidRequest, "invalid user code"))
		return
	}
	if err != nil {
		s.writeOAuthError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// readUserCode accepts {"userCode": "..."} JSON bodies and user_code form values.
func readUserCode(r *http.Request) (string, error) {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		var body struct {
			UserCode string `json:"userCode"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			return "", err
		}
		return body.UserCode, nil
	}
	if err := r.ParseForm(); err != nil {
		return "", err
	}
	return r.Form.Get("user_code"), nil
}
