package deviceflow

import (
	"time"

	"github.com/rs/zerolog"
)

// Option configures a Flow.
type Option func(*Flow)

// WithExpiry sets how long a device code stays valid.
func WithExpiry(d time.Duration) Option {
	return func(f *Flow) {
		f.expiry = d
	}
}

// WithInterval sets the minimum polling interval announced to clients.
func WithInterval(d time.Duration) Option {
	return func(f *Flow) {
		f.interval = d
	}
}

// WithClock replaces the clock used for expiry and poll spacing.
func WithClock(now func() time.Time) Option {
	return func(f *Flow) {
		f.now = now
	}
}

// WithLogger sets the logger.
func WithLogger(log zerolog.Logger) Option {
	return func(f *Flow) {
		f.log = log
	}
}

// WithClientIDs restricts device authorization to the given client IDs.
// Without it any non-empty client ID is accepted.
func WithClientIDs(ids ...string) Option {
	return func(f *Flow) {
		f.clients = make(map[string]bool, len(ids))
		for _, id := range ids {
			f.clients[id] = true
		}
	}
}
