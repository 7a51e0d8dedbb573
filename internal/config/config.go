package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config represents the global ~/.tander/config.toml.
type Config struct {
	// APIURL is the REST base URL, e.g. "http://localhost:8980".
	APIURL string `toml:"api_url"`
	// WSURL is the STOMP-over-WebSocket endpoint, e.g. "ws://localhost:8980/ws".
	WSURL          string `toml:"ws_url"`
	DefaultAccount string `toml:"default_account"`

	Chat      Chat      `toml:"chat"`
	Discovery Discovery `toml:"discovery"`
}

// Chat tunes the conversation thread controller.
type Chat struct {
	// PageSize is how many messages one history page holds.
	PageSize int `toml:"page_size"`
	// PollIntervalMS is the fallback poll cadence in milliseconds.
	PollIntervalMS int `toml:"poll_interval_ms"`
	// TypingTTLMS is how long a peer typing flag stays up without renewal.
	TypingTTLMS int `toml:"typing_ttl_ms"`
}

// Discovery tunes the swipe deck controller.
type Discovery struct {
	// BatchSize is how many profiles one discovery page holds.
	BatchSize int `toml:"batch_size"`
	// PrefetchThreshold triggers the next page fetch when the number of
	// unswiped profiles left in the deck falls to this value or below.
	PrefetchThreshold int `toml:"prefetch_threshold"`
	// MinAge/MaxAge/City filter discovery server-side; zero values mean
	// the server default applies.
	MinAge int    `toml:"min_age"`
	MaxAge int    `toml:"max_age"`
	City   string `toml:"city"`
}

// Default returns the built-in configuration used when no config file exists.
func Default() *Config {
	return &Config{
		APIURL: "http://localhost:8980",
		WSURL:  "ws://localhost:8980/ws",
		Chat: Chat{
			PageSize:       20,
			PollIntervalMS: 2000,
			TypingTTLMS:    3000,
		},
		Discovery: Discovery{
			BatchSize:         50,
			PrefetchThreshold: 15,
		},
	}
}

// PollInterval returns the poll cadence as a duration.
func (c Chat) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMS) * time.Millisecond
}

// TypingTTL returns the typing flag lifetime as a duration.
func (c Chat) TypingTTL() time.Duration {
	return time.Duration(c.TypingTTLMS) * time.Millisecond
}

// Load reads config from the given path. Returns error if file missing.
// Keys absent from the file keep their Default() values.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	cfg.normalize()
	return cfg, nil
}

// LoadOrDefault reads config from the given path, falling back to Default()
// when the file does not exist.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
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

// normalize resets out-of-range tuning values to their defaults so a bad
// config file cannot disable pagination or turn polling into a busy loop.
func (c *Config) normalize() {
	def := Default()
	if c.Chat.PageSize <= 0 {
		c.Chat.PageSize = def.Chat.PageSize
	}
	if c.Chat.PollIntervalMS < 250 {
		c.Chat.PollIntervalMS = def.Chat.PollIntervalMS
	}
	if c.Chat.TypingTTLMS <= 0 {
		c.Chat.TypingTTLMS = def.Chat.TypingTTLMS
	}
	if c.Discovery.BatchSize <= 0 {
		c.Discovery.BatchSize = def.Discovery.BatchSize
	}
	if c.Discovery.PrefetchThreshold < 0 {
		c.Discovery.PrefetchThreshold = def.Discovery.PrefetchThreshold
	}
}
