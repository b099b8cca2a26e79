package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

const (
	deviceCodePath  = "/api/auth/device/code"
	deviceTokenPath = "/api/auth/device/token"

	deviceGrantType = "urn:ietf:params:oauth:grant-type:device_code"
	userAgent       = "Mercury CLI"
)

// DefaultScopes are requested for every CLI login.
var DefaultScopes = []string{"openid", "profile", "email"}

// DeviceFlow implements the client side of the OAuth 2.0 Device Authorization
// Grant against a mercury auth server.
type DeviceFlow struct {
	clientID string
	baseURL  string
	client   *http.Client
	oauth    *oauth2.Config
}

// NewDeviceFlow creates a DeviceFlow for the auth server at baseURL.
func NewDeviceFlow(clientID string, baseURL string) *DeviceFlow {
	baseURL = strings.TrimRight(baseURL, "/")
	return &DeviceFlow{
		clientID: clientID,
		baseURL:  baseURL,
		client:   &http.Client{Timeout: 15 * time.Second},
		oauth: &oauth2.Config{
			ClientID: clientID,
			Scopes:   DefaultScopes,
			Endpoint: oauth2.Endpoint{
				DeviceAuthURL: baseURL + deviceCodePath,
				TokenURL:      baseURL + deviceTokenPath,
				AuthStyle:     oauth2.AuthStyleInParams,
			},
		},
	}
}

// RequestCode requests a device code and user code from the auth server.
// The returned DeviceGrant.UserCode must be shown to the user along with VerificationURI.
func (f *DeviceFlow) RequestCode(ctx context.Context) (DeviceGrant, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, f.client)
	resp, err := f.oauth.DeviceAuth(ctx)
	if err != nil {
		var rErr *oauth2.RetrieveError
		if errors.As(err, &rErr) && rErr.ErrorCode != "" {
			return DeviceGrant{}, fmt.Errorf("device authorization rejected: %s %s", rErr.ErrorCode, rErr.ErrorDescription)
		}
		return DeviceGrant{}, fmt.Errorf("requesting device code: %w", err)
	}

	grant := DeviceGrant{
		DeviceCode:              resp.DeviceCode,
		UserCode:                resp.UserCode,
		VerificationURI:         resp.VerificationURI,
		VerificationURIComplete: resp.VerificationURIComplete,
		Interval:                int(resp.Interval),
	}
	if !resp.Expiry.IsZero() {
		grant.ExpiresAt = resp.Expiry
		grant.ExpiresIn = int(time.Until(resp.Expiry).Round(time.Second).Seconds())
	}
	if grant.Interval <= 0 {
		grant.Interval = int(defaultInterval / time.Second)
	}
	return grant, nil
}

// CheckToken performs a single device access token request per RFC 8628 section 3.4.
// Error responses are returned as a TokenCheckResult, not as an error; the error
// return is reserved for transport failures and unreadable bodies.
func (f *DeviceFlow) CheckToken(ctx context.Context, deviceCode string) (TokenCheckResult, error) {
	data := url.Values{}
	data.Set("grant_type", deviceGrantType)
	data.Set("device_code", deviceCode)
	data.Set("client_id", f.clientID)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.baseURL+deviceTokenPath, strings.NewReader(data.Encode()))
	if err != nil {
		return TokenCheckResult{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return TokenCheckResult{}, fmt.Errorf("polling token: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return TokenCheckResult{}, fmt.Errorf("reading token response: %w", err)
	}

	var raw struct {
		AccessToken      string `json:"access_token"`
		RefreshToken     string `json:"refresh_token"`
		TokenType        string `json:"token_type"`
		ExpiresIn        int    `json:"expires_in"`
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return TokenCheckResult{}, fmt.Errorf("decoding token response (HTTP %d): %w", resp.StatusCode, err)
	}

	if raw.Error != "" {
		return TokenCheckResult{ErrorCode: raw.Error, ErrorDescription: raw.ErrorDescription}, nil
	}
	if resp.StatusCode != http.StatusOK {
		return TokenCheckResult{}, fmt.Errorf("token endpoint returned HTTP %d without an error code", resp.StatusCode)
	}
	if raw.AccessToken == "" {
		return TokenCheckResult{}, nil
	}
	return TokenCheckResult{Token: &TokenResponse{
		AccessToken:  raw.AccessToken,
		RefreshToken: raw.RefreshToken,
		TokenType:    raw.TokenType,
		ExpiresIn:    raw.ExpiresIn,
	}}, nil
}

// Checker binds CheckToken to a device code for use with Poller.Poll.
func (f *DeviceFlow) Checker(deviceCode string) TokenChecker {
	return func(ctx context.Context) (TokenCheckResult, error) {
		return f.CheckToken(ctx, deviceCode)
	}
}

// Login polls for the token of an already issued grant.
func (f *DeviceFlow) Login(ctx context.Context, grant DeviceGrant, poller *Poller) (PollOutcome, error) {
	return poller.Poll(ctx, grant, f.Checker(grant.DeviceCode))
}
