package main

import "time"

// Config holds server configuration loaded from environment variables.
type Config struct {
	Port               int           `envconfig:"PORT" default:"3000"`
	BaseURL            string        `envconfig:"BASE_URL" default:"http://localhost:3000"`
	DatabaseURL        string        `envconfig:"DATABASE_URL" default:"mercury.db"`
	RedisURL           string        `envconfig:"REDIS_URL"`
	GitHubClientID     string        `envconfig:"GITHUB_CLIENT_ID" required:"true"`
	GitHubClientSecret string        `envconfig:"GITHUB_CLIENT_SECRET" required:"true"`
	ClientIDs          []string      `envconfig:"CLIENT_IDS"`
	CodeExpiry         time.Duration `envconfig:"CODE_EXPIRY" default:"15m"`
	PollInterval       time.Duration `envconfig:"POLL_INTERVAL" default:"5s"`
	SessionTTL         time.Duration `envconfig:"SESSION_TTL" default:"168h"`
	SecureCookies      bool          `envconfig:"SECURE_COOKIES" default:"false"`
	ReadHeaderTimeout  time.Duration `envconfig:"READ_HEADER_TIMEOUT" default:"5s"`
	ReadTimeout        time.Duration `envconfig:"READ_TIMEOUT" default:"15s"`
	WriteTimeout       time.Duration `envconfig:"WRITE_TIMEOUT" default:"15s"`
	IdleTimeout        time.Duration `envconfig:"IDLE_TIMEOUT" default:"60s"`
}
