package auth

import "time"

// DeviceGrant holds the response from a device authorization request.
// It contains the code to show the user and the parameters needed for polling.
// A grant is created once per login attempt and discarded after polling ends.
type DeviceGrant struct {
	DeviceCode              string
	UserCode                string
	VerificationURI         string
	VerificationURIComplete string
	ExpiresIn               int // seconds until the device code expires
	Interval                int // minimum polling interval in seconds
	// ExpiresAt is when the device code expires, fixed when the code was
	// issued. Zero means unknown; ExpiresIn then counts from the start of polling.
	ExpiresAt time.Time
}

// VerificationURL returns the URL to show the user, preferring the plain URI
// so the user code still has to be typed.
func (g DeviceGrant) VerificationURL() string {
	if g.VerificationURI != "" {
		return g.VerificationURI
	}
	return g.VerificationURIComplete
}

// TokenResponse holds the tokens returned after successful OAuth authorization.
type TokenResponse struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	ExpiresIn    int // seconds; zero when the server did not say
}

// Token endpoint error codes per RFC 8628 section 3.5.
const (
	ErrorAuthorizationPending = "authorization_pending"
	ErrorSlowDown             = "slow_down"
	ErrorAccessDenied         = "access_denied"
	ErrorExpiredToken         = "expired_token"
)

// TokenCheckResult is the classified result of one token endpoint round trip.
// Exactly one of Token or ErrorCode is set for a well-formed response.
type TokenCheckResult struct {
	Token            *TokenResponse
	ErrorCode        string
	ErrorDescription string
}
