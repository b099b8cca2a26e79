package deviceflow

import "time"

// Status is the user's decision on a device authorization request.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusDenied   Status = "denied"
)

// DeviceCode is the server-side record of one device authorization request.
type DeviceCode struct {
	DeviceCode string    `json:"device_code"`
	UserCode   string    `json:"user_code"`
	ClientID   string    `json:"client_id"`
	Scope      string    `json:"scope,omitempty"`
	Status     Status    `json:"status"`
	UserID     string    `json:"user_id,omitempty"`
	Interval   int       `json:"interval"`
	ExpiresAt  time.Time `json:"expires_at"`
	LastPoll   time.Time `json:"last_poll"`
}

// Authorization is the device authorization response of RFC 8628 section 3.2.
type Authorization struct {
	DeviceCode              string `json:"device_code"`
	UserCode                string `json:"user_code"`
	VerificationURI         string `json:"verification_uri"`
	VerificationURIComplete string `json:"verification_uri_complete,omitempty"`
	ExpiresIn               int    `json:"expires_in"`
	Interval                int    `json:"interval"`
}

// TokenResponse is the successful device access token response.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in,omitempty"`
	Scope       string `json:"scope,omitempty"`
}
