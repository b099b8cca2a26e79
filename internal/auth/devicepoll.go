package auth

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
)

// SlowDownStep is added to the polling interval every time the server answers slow_down.
const SlowDownStep = 5 * time.Second

// defaultInterval applies when the server did not send an interval.
const defaultInterval = 5 * time.Second

// maxReasonLen bounds server-provided text copied into a failure reason.
const maxReasonLen = 100

// OutcomeKind tags the terminal result of a poll session.
type OutcomeKind int

const (
	OutcomeIssued OutcomeKind = iota + 1
	OutcomeDenied
	OutcomeExpired
	OutcomeFailed
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeIssued:
		return "issued"
	case OutcomeDenied:
		return "denied"
	case OutcomeExpired:
		return "expired"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// PollOutcome is the single terminal result of Poller.Poll.
// Token is set only for OutcomeIssued; Reason and Err only for OutcomeFailed.
type PollOutcome struct {
	Kind   OutcomeKind
	Token  TokenResponse
	Reason string
	Err    error
}

// TokenChecker performs one round trip to the token endpoint.
// A non-nil error means the round trip itself failed (network, malformed body).
type TokenChecker func(ctx context.Context) (TokenCheckResult, error)

// Poller drives the device authorization polling loop of RFC 8628 section 3.4.
// A Poller holds no per-session state and may be reused concurrently.
type Poller struct {
	wait       func(ctx context.Context, d time.Duration) error
	now        func() time.Time
	log        zerolog.Logger
	onSlowDown func(interval time.Duration)
}

// PollerOption configures a Poller.
type PollerOption func(*Poller)

// WithWait replaces the timer used between attempts. Tests use it to record
// the requested delays without sleeping.
func WithWait(wait func(ctx context.Context, d time.Duration) error) PollerOption {
	return func(p *Poller) {
		p.wait = wait
	}
}

// WithClock replaces the clock used for the local expiry deadline.
func WithClock(now func() time.Time) PollerOption {
	return func(p *Poller) {
		p.now = now
	}
}

// WithLogger sets the logger for per-attempt debug output.
func WithLogger(log zerolog.Logger) PollerOption {
	return func(p *Poller) {
		p.log = log
	}
}

// WithSlowDownHook registers a callback invoked with the new interval after
// every slow_down response.
func WithSlowDownHook(fn func(interval time.Duration)) PollerOption {
	return func(p *Poller) {
		p.onSlowDown = fn
	}
}

// NewPoller creates a Poller that sleeps on real timers.
func NewPoller(opts ...PollerOption) *Poller {
	p := &Poller{
		wait: sleep,
		now:  time.Now,
		log:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Poll waits grant.Interval, calls check, and repeats until a terminal outcome.
// authorization_pending continues unchanged; slow_down adds SlowDownStep to the
// interval for the rest of the session; access_denied, expired_token, unknown
// codes and transport failures end the session without retry.
//
// The device code's lifetime is also enforced locally, so a server that never
// answers expired_token cannot keep the loop alive forever. The deadline is
// grant.ExpiresAt, or grant.ExpiresIn from now when ExpiresAt is unknown.
// Crossing it yields OutcomeExpired.
//
// Poll returns a non-nil error only when ctx is done; no outcome is produced then.
func (p *Poller) Poll(ctx context.Context, grant DeviceGrant, check TokenChecker) (PollOutcome, error) {
	interval := time.Duration(grant.Interval) * time.Second
	if interval <= 0 {
		interval = defaultInterval
	}
	deadline := grant.ExpiresAt
	if deadline.IsZero() && grant.ExpiresIn > 0 {
		deadline = p.now().Add(time.Duration(grant.ExpiresIn) * time.Second)
	}

	for attempt := 1; ; attempt++ {
		if err := p.wait(ctx, interval); err != nil {
			return PollOutcome{}, err
		}
		if !deadline.IsZero() && !p.now().Before(deadline) {
			p.log.Debug().Int("attempt", attempt).Msg("device code lifetime elapsed locally")
			return PollOutcome{Kind: OutcomeExpired}, nil
		}

		res, err := check(ctx)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return PollOutcome{}, ctxErr
			}
			return failed("token request failed", err), nil
		}

		if res.Token != nil {
			if res.Token.AccessToken == "" {
				return failed("token response is missing access_token", nil), nil
			}
			p.log.Debug().Int("attempt", attempt).Msg("device authorization granted")
			return PollOutcome{Kind: OutcomeIssued, Token: *res.Token}, nil
		}

		p.log.Debug().Int("attempt", attempt).Str("error", res.ErrorCode).Dur("interval", interval).Msg("token poll")
		switch res.ErrorCode {
		case ErrorAuthorizationPending:
			// keep polling
		case ErrorSlowDown:
			interval += SlowDownStep
			if p.onSlowDown != nil {
				p.onSlowDown(interval)
			}
		case ErrorAccessDenied:
			return PollOutcome{Kind: OutcomeDenied}, nil
		case ErrorExpiredToken:
			return PollOutcome{Kind: OutcomeExpired}, nil
		case "":
			return failed("token response carried neither access_token nor error", nil), nil
		default:
			msg := res.ErrorCode
			if res.ErrorDescription != "" {
				msg += ": " + res.ErrorDescription
			}
			return failed("unexpected error from server: "+truncate(msg, maxReasonLen), nil), nil
		}
	}
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func failed(reason string, err error) PollOutcome {
	if err != nil {
		reason = fmt.Sprintf("%s: %v", reason, err)
	}
	return PollOutcome{Kind: OutcomeFailed, Reason: reason, Err: err}
}
