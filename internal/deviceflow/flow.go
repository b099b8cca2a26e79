// Package deviceflow implements the authorization server side of the OAuth 2.0
// Device Authorization Grant (RFC 8628).
package deviceflow

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

const (
	DefaultExpiry   = 15 * time.Minute
	DefaultInterval = 5 * time.Second

	// SlowDownStep is added to a code's interval every time it is polled too early.
	SlowDownStep = 5 * time.Second

	// pollLeeway absorbs network jitter when comparing poll spacing.
	pollLeeway = 500 * time.Millisecond

	// maxUserCodeAttempts bounds the search for a user code that is not in use.
	maxUserCodeAttempts = 10
)

// SessionIssuer creates a session for userID and returns its token and lifetime in seconds.
type SessionIssuer func(ctx context.Context, userID string) (token string, expiresIn int, err error)

// Flow issues device codes, records the user's decision and redeems
// approved codes for session tokens.
type Flow struct {
	store           Store
	issue           SessionIssuer
	verificationURI string
	expiry          time.Duration
	interval        time.Duration
	clients         map[string]bool
	now             func() time.Time
	newUserCode     func() (string, error)
	log             zerolog.Logger
}

// NewFlow creates a Flow. verificationURI is the page where users enter their code.
func NewFlow(store Store, verificationURI string, issue SessionIssuer, opts ...Option) *Flow {
	f := &Flow{
		store:           store,
		issue:           issue,
		verificationURI: verificationURI,
		expiry:          DefaultExpiry,
		interval:        DefaultInterval,
		now:             time.Now,
		newUserCode:     generateUserCode,
		log:             zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.interval < time.Second {
		f.interval = time.Second
	}
	return f
}

// RequestCode starts a device authorization request for clientID.
func (f *Flow) RequestCode(ctx context.Context, clientID, scope string) (*Authorization, error) {
	if clientID == "" {
		return nil, NewDeviceFlowError(ErrorCodeInvalidRequest, "client_id is required")
	}
	if f.clients != nil && !f.clients[clientID] {
		return nil, NewDeviceFlowError(ErrorCodeInvalidRequest, "unknown client_id")
	}

	deviceCode, err := generateDeviceCode()
	if err != nil {
		return nil, err
	}
	userCode, err := f.uniqueUserCode(ctx)
	if err != nil {
		return nil, err
	}

	code := &DeviceCode{
		DeviceCode: deviceCode,
		UserCode:   userCode,
		ClientID:   clientID,
		Scope:      scope,
		Status:     StatusPending,
		Interval:   int(f.interval / time.Second),
		ExpiresAt:  f.now().Add(f.expiry),
	}
	if err := f.save(ctx, code); err != nil {
		return nil, err
	}
	f.log.Debug().Str("client_id", clientID).Str("user_code", userCode).Msg("device code issued")

	return &Authorization{
		DeviceCode:              deviceCode,
		UserCode:                userCode,
		VerificationURI:         f.verificationURI,
		VerificationURIComplete: f.verificationURI + "?user_code=" + userCode,
		ExpiresIn:               int(f.expiry / time.Second),
		Interval:                code.Interval,
	}, nil
}

// Lookup returns the pending, unexpired request for userCode, or ErrCodeNotFound.
func (f *Flow) Lookup(ctx context.Context, userCode string) (*DeviceCode, error) {
	code, err := f.store.GetByUserCode(ctx, NormalizeUserCode(userCode))
	if err != nil {
		return nil, err
	}
	if code == nil || code.Status != StatusPending || !f.now().Before(code.ExpiresAt) {
		return nil, ErrCodeNotFound
	}
	return code, nil
}

// Approve records that userID authorized the request for userCode.
func (f *Flow) Approve(ctx context.Context, userCode, userID string) error {
	return f.decide(ctx, userCode, StatusApproved, userID)
}

// Deny records that the user rejected the request for userCode.
func (f *Flow) Deny(ctx context.Context, userCode string) error {
	return f.decide(ctx, userCode, StatusDenied, "")
}

func (f *Flow) decide(ctx context.Context, userCode string, status Status, userID string) error {
	code, err := f.Lookup(ctx, userCode)
	if err != nil {
		return err
	}
	code.Status = status
	code.UserID = userID
	if err := f.save(ctx, code); err != nil {
		return err
	}
	f.log.Info().Str("user_code", code.UserCode).Str("status", string(status)).Msg("device authorization decided")
	return nil
}

// Exchange answers one device access token request (RFC 8628 section 3.4).
// Pending, slowed-down, denied and expired requests yield a *DeviceFlowError.
// An approved code is redeemed exactly once.
func (f *Flow) Exchange(ctx context.Context, deviceCode, clientID string) (*TokenResponse, error) {
	code, err := f.store.Get(ctx, deviceCode)
	if err != nil {
		return nil, err
	}
	if code == nil {
		return nil, NewDeviceFlowError(ErrorCodeInvalidGrant, "invalid device code")
	}
	if code.ClientID != clientID {
		return nil, NewDeviceFlowError(ErrorCodeInvalidGrant, "device code was issued to another client")
	}

	now := f.now()
	if !now.Before(code.ExpiresAt) {
		if _, err := f.store.Delete(ctx, code); err != nil {
			return nil, err
		}
		return nil, NewDeviceFlowError(ErrorCodeExpiredToken, "device code has expired")
	}

	if !code.LastPoll.IsZero() && now.Sub(code.LastPoll)+pollLeeway < time.Duration(code.Interval)*time.Second {
		code.Interval += int(SlowDownStep / time.Second)
		code.LastPoll = now
		if err := f.save(ctx, code); err != nil {
			return nil, err
		}
		f.log.Debug().Str("user_code", code.UserCode).Int("interval", code.Interval).Msg("client polling too fast")
		return nil, NewDeviceFlowError(ErrorCodeSlowDown, "polling too frequently")
	}
	code.LastPoll = now

	switch code.Status {
	case StatusDenied:
		if _, err := f.store.Delete(ctx, code); err != nil {
			return nil, err
		}
		return nil, NewDeviceFlowError(ErrorCodeAccessDenied, "the user denied the request")
	case StatusApproved:
		redeemed, err := f.store.Delete(ctx, code)
		if err != nil {
			return nil, err
		}
		if !redeemed {
			return nil, NewDeviceFlowError(ErrorCodeInvalidGrant, "device code was already used")
		}
		token, expiresIn, err := f.issue(ctx, code.UserID)
		if err != nil {
			return nil, fmt.Errorf("issuing session: %w", err)
		}
		f.log.Info().Str("user_id", code.UserID).Str("client_id", code.ClientID).Msg("device code redeemed")
		return &TokenResponse{
			AccessToken: token,
			TokenType:   "Bearer",
			ExpiresIn:   expiresIn,
			Scope:       code.Scope,
		}, nil
	default:
		if err := f.save(ctx, code); err != nil {
			return nil, err
		}
		return nil, NewDeviceFlowError(ErrorCodeAuthorizationPending, "")
	}
}

// Ping checks the backing store.
func (f *Flow) Ping(ctx context.Context) error {
	return f.store.Ping(ctx)
}

// uniqueUserCode returns a user code that no stored request is using.
func (f *Flow) uniqueUserCode(ctx context.Context) (string, error) {
	for attempt := 0; attempt < maxUserCodeAttempts; attempt++ {
		userCode, err := f.newUserCode()
		if err != nil {
			return "", err
		}
		existing, err := f.store.GetByUserCode(ctx, userCode)
		if err != nil {
			return "", fmt.Errorf("checking user code: %w", err)
		}
		if existing == nil {
			return userCode, nil
		}
		f.log.Debug().Str("user_code", userCode).Msg("user code collision, retrying")
	}
	return "", fmt.Errorf("no free user code after %d attempts", maxUserCodeAttempts)
}

// save writes code back. Records outlive ExpiresAt by one expiry window so
// late polls are answered with expired_token rather than an unknown code.
func (f *Flow) save(ctx context.Context, code *DeviceCode) error {
	now := f.now()
	if !now.Before(code.ExpiresAt) {
		return NewDeviceFlowError(ErrorCodeExpiredToken, "device code has expired")
	}
	if err := f.store.Save(ctx, code, code.ExpiresAt.Add(f.expiry).Sub(now)); err != nil {
		return fmt.Errorf("saving device code: %w", err)
	}
	return nil
}
