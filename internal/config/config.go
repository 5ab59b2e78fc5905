// Package config loads ~/.travelin/config.toml with .env and environment
// overrides.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "TRAVELIN_"

// Config represents the global ~/.travelin/config.toml.
type Config struct {
	DefaultProfile string    `toml:"default_profile"`
	ServerURL      string    `toml:"server_url"`
	APIURL         string    `toml:"api_url"`
	MetricsAddr    string    `toml:"metrics_addr"`
	Reconnect      Reconnect `toml:"reconnect"`
	Chat           Chat      `toml:"chat"`
}

// Reconnect is the transport retry policy.
type Reconnect struct {
	Enabled     bool `toml:"enabled"`
	MaxAttempts int  `toml:"max_attempts"`
	BackoffMS   int  `toml:"backoff_ms"`
}

// Chat tunes the chat components.
type Chat struct {
	NoticeTTLMS  int `toml:"notice_ttl_ms"`
	TypingIdleMS int `toml:"typing_idle_ms"`
	HistoryLimit int `toml:"history_limit"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		ServerURL: "ws://localhost:3000/ws",
		APIURL:    "http://localhost:3000/api",
		Reconnect: Reconnect{
			Enabled:     true,
			MaxAttempts: 5,
			BackoffMS:   1000,
		},
		Chat: Chat{
			NoticeTTLMS:  5000,
			TypingIdleMS: 1000,
			HistoryLimit: 50,
		},
	}
}

// Backoff returns the fixed delay between reconnect attempts.
func (r Reconnect) Backoff() time.Duration {
	return time.Duration(r.BackoffMS) * time.Millisecond
}

// NoticeTTL returns how long a notice stays visible.
func (c Chat) NoticeTTL() time.Duration {
	return time.Duration(c.NoticeTTLMS) * time.Millisecond
}

// TypingIdle returns the quiet period that ends the typing signal.
func (c Chat) TypingIdle() time.Duration {
	return time.Duration(c.TypingIdleMS) * time.Millisecond
}

// Load reads config from the given path over the defaults. Returns an error
// if the file is missing.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Resolve loads the file at path when present, then .env files, then
// TRAVELIN_* variables, and validates the result.
func Resolve(path string, dotenv ...string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		cfg, err = Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	if err := LoadDotEnv(dotenv...); err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDotEnv loads the given .env files into the process environment
// without overriding variables that are already set. Missing files are
// skipped.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// ApplyEnv overrides fields from TRAVELIN_* variables.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(EnvPrefix + key); ok && v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) error {
		v, ok := lookup(EnvPrefix + key)
		if !ok || v == "" {
			return nil
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
		}
		*dst = n
		return nil
	}

	str("PROFILE", &c.DefaultProfile)
	str("SERVER_URL", &c.ServerURL)
	str("API_URL", &c.APIURL)
	str("METRICS_ADDR", &c.MetricsAddr)
	if v, ok := lookup(EnvPrefix + "RECONNECT_ENABLED"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%sRECONNECT_ENABLED: %w", EnvPrefix, err)
		}
		c.Reconnect.Enabled = b
	}
	for key, dst := range map[string]*int{
		"RECONNECT_MAX_ATTEMPTS": &c.Reconnect.MaxAttempts,
		"RECONNECT_BACKOFF_MS":   &c.Reconnect.BackoffMS,
		"NOTICE_TTL_MS":          &c.Chat.NoticeTTLMS,
		"TYPING_IDLE_MS":         &c.Chat.TypingIdleMS,
		"HISTORY_LIMIT":          &c.Chat.HistoryLimit,
	} {
		if err := num(key, dst); err != nil {
			return err
		}
	}
	return nil
}

// Validate checks the values a daemon needs.
func (c *Config) Validate() error {
	if c.ServerURL == "" {
		return errors.New("server_url is required")
	}
	if !strings.HasPrefix(c.ServerURL, "ws://") && !strings.HasPrefix(c.ServerURL, "wss://") {
		return fmt.Errorf("server_url %q must be a ws:// or wss:// URL", c.ServerURL)
	}
	if c.APIURL == "" {
		return errors.New("api_url is required")
	}
	if c.Reconnect.MaxAttempts < 0 || c.Reconnect.BackoffMS < 0 {
		return errors.New("reconnect values must not be negative")
	}
	if c.Chat.NoticeTTLMS <= 0 || c.Chat.TypingIdleMS <= 0 || c.Chat.HistoryLimit <= 0 {
		return errors.New("chat values must be positive")
	}
	return nil
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
