// Package config loads the global ~/.mumble/config.toml.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"go.uber.org/zap/zapcore"
)

// Source kinds.
const (
	SourceGateway = "gateway"
	SourceMemory  = "memory"
)

// Config represents the global ~/.mumble/config.toml.
type Config struct {
	DefaultSession string `toml:"default_session"`
	LogLevel       string `toml:"log_level"`

	Source SourceConfig `toml:"source"`
	Sync   SyncConfig   `toml:"sync"`
	Mirror MirrorConfig `toml:"mirror"`
	Notify NotifyConfig `toml:"notify"`
}

// SourceConfig selects and configures the message source.
type SourceConfig struct {
	Kind   string `toml:"kind"`
	URL    string `toml:"url"`
	Token  string `toml:"token"`
	SelfID string `toml:"self_id"`
}

// SyncConfig tunes pulls and polling.
type SyncConfig struct {
	PollInterval   Duration `toml:"poll_interval"`
	MaxBackoff     Duration `toml:"max_backoff"`
	MessageWorkers int      `toml:"message_workers"`
}

// MirrorConfig tunes the entity cache.
type MirrorConfig struct {
	Strict bool `toml:"strict"`
}

// NotifyConfig tunes local notifications.
type NotifyConfig struct {
	Enabled   bool `toml:"enabled"`
	PerSecond int  `toml:"per_second"`
}

// Duration is a time.Duration written as a string such as "5s" in TOML.
type Duration struct {
	time.Duration
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		DefaultSession: "main",
		LogLevel:       "info",
		Source: SourceConfig{
			Kind: SourceGateway,
			URL:  "http://127.0.0.1:5556",
		},
		Sync: SyncConfig{
			PollInterval:   Duration{5 * time.Second},
			MaxBackoff:     Duration{time.Minute},
			MessageWorkers: 4,
		},
		Notify: NotifyConfig{
			Enabled:   true,
			PerSecond: 5,
		},
	}
}

// Load reads config from the given path on top of Default. Returns an error
// if the file is missing; use LoadOrDefault to tolerate that.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// LoadOrDefault is Load, except that a missing file yields Default.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

// Validate checks values that would otherwise fail late at runtime.
func (c *Config) Validate() error {
	switch c.Source.Kind {
	case SourceGateway:
		if c.Source.URL == "" {
			return errors.New("source.url is required for the gateway source")
		}
	case SourceMemory:
	default:
		return fmt.Errorf("unknown source.kind %q", c.Source.Kind)
	}
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}
	if c.Sync.PollInterval.Duration <= 0 {
		return errors.New("sync.poll_interval must be positive")
	}
	if c.Sync.MessageWorkers <= 0 {
		return errors.New("sync.message_workers must be positive")
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
	encErr := Write(f, cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}

// Write encodes cfg as TOML.
func Write(w io.Writer, cfg *Config) error {
	return toml.NewEncoder(w).Encode(cfg)
}
