package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

const (
	defaultServerURL = "http://localhost:3005"
	defaultModel     = "gemini-2.5-flash"
	defaultDatabase  = "mercury.db"
)

// AIConfig holds the hosted language model settings.
type AIConfig struct {
	APIKey  string `toml:"api_key"`
	Model   string `toml:"model"`
	BaseURL string `toml:"base_url"`
}

// Config holds all mercury CLI configuration.
type Config struct {
	ServerURL   string   `toml:"server_url"`
	ClientID    string   `toml:"client_id"`
	DatabaseURL string   `toml:"database_url"`
	AI          AIConfig `toml:"ai"`
}

// ServerURLOrDefault returns ServerURL if set, otherwise the local development server.
func (c Config) ServerURLOrDefault() string {
	if c.ServerURL != "" {
		return c.ServerURL
	}
	return defaultServerURL
}

// ModelOrDefault returns AI.Model if set, otherwise defaultModel.
func (c Config) ModelOrDefault() string {
	if c.AI.Model != "" {
		return c.AI.Model
	}
	return defaultModel
}

// DatabaseURLOrDefault returns DatabaseURL if set, otherwise a SQLite file
// next to the config file.
func (c Config) DatabaseURLOrDefault() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return filepath.Join(filepath.Dir(DefaultConfigPath()), defaultDatabase)
}

// LoadFrom reads configuration from the given TOML file path.
// If the file does not exist, it returns an empty config without error.
// Environment variables always take precedence over file values:
//   - MERCURY_SERVER_URL (or BETTER_AUTH_URL) overrides server_url
//   - GITHUB_CLIENT_ID                        overrides client_id
//   - DATABASE_URL                            overrides database_url
//   - GOOGLE_GENERATIVE_AI_API_KEY            overrides ai.api_key
//   - MERCURYCLI_MODEL                        overrides ai.model
func LoadFrom(path string) (Config, error) {
	var cfg Config
	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return Config{}, fmt.Errorf("decoding %s: %w", path, err)
		}
	}
	applyEnvOverrides(&cfg)
	return cfg, nil
}

// DefaultConfigPath returns the default path for the mercury config file.
func DefaultConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "mercury", "config.toml")
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("BETTER_AUTH_URL"); v != "" {
		cfg.ServerURL = v
	}
	if v := os.Getenv("MERCURY_SERVER_URL"); v != "" {
		cfg.ServerURL = v
	}
	if v := os.Getenv("GITHUB_CLIENT_ID"); v != "" {
		cfg.ClientID = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("GOOGLE_GENERATIVE_AI_API_KEY"); v != "" {
		cfg.AI.APIKey = v
	}
	if v := os.Getenv("MERCURYCLI_MODEL"); v != "" {
		cfg.AI.Model = v
	}
}

// Save writes cfg to the given TOML file path, creating parent directories as needed.
// Existing file contents are overwritten. Permissions on the written file are 0600.
func Save(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("opening config file: %w", err)
	}
	if encErr := toml.NewEncoder(f).Encode(cfg); encErr != nil {
		f.Close()
		return encErr
	}
	return f.Close()
}
