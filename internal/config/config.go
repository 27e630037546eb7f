// Package config reads and writes the TOML configuration files.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Global represents ~/.chatsync/config.toml.
type Global struct {
	DefaultProfile string `toml:"default_profile"`
}

// Duration is a time.Duration written as a string such as "5s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", text, err)
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Config is the per-profile configuration.
type Config struct {
	Socket       Socket       `toml:"socket"`
	Conversation Conversation `toml:"conversation"`
	Typing       Typing       `toml:"typing"`
	Upload       Upload       `toml:"upload"`
	Log          Log          `toml:"log"`
	Metrics      Metrics      `toml:"metrics"`
	Auth         Auth         `toml:"auth"`
}

type Socket struct {
	URL    string `toml:"url"`
	UserID int64  `toml:"user_id"`
	// Transport is "ws" or "grpc".
	Transport string `toml:"transport"`
}

type Conversation struct {
	PageSize     int `toml:"page_size"`
	InitialLimit int `toml:"initial_limit"`
}

type Typing struct {
	QuietPeriod    Duration `toml:"quiet_period"`
	ThrottleWindow Duration `toml:"throttle_window"`
}

type Upload struct {
	Endpoint string `toml:"endpoint"`
}

type Log struct {
	Level string `toml:"level"`
}

type Metrics struct {
	// Addr is the listen address of the metrics endpoint; empty disables it.
	Addr string `toml:"addr"`
}

type Auth struct {
	Token string `toml:"token"`
}

// Default returns the configuration used for missing values.
func Default() *Config {
	return &Config{
		Socket:       Socket{Transport: "ws"},
		Conversation: Conversation{PageSize: 30, InitialLimit: 30},
		Typing: Typing{
			QuietPeriod:    Duration{5 * time.Second},
			ThrottleWindow: Duration{3 * time.Second},
		},
		Log: Log{Level: "info"},
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch c.Socket.Transport {
	case "ws", "grpc":
	default:
		return fmt.Errorf("socket.transport: unknown transport %q", c.Socket.Transport)
	}
	if c.Conversation.PageSize <= 0 {
		return fmt.Errorf("conversation.page_size: must be positive, got %d", c.Conversation.PageSize)
	}
	if c.Conversation.InitialLimit <= 0 {
		return fmt.Errorf("conversation.initial_limit: must be positive, got %d", c.Conversation.InitialLimit)
	}
	if c.Typing.QuietPeriod.Duration <= 0 {
		return fmt.Errorf("typing.quiet_period: must be positive")
	}
	return nil
}

// Load reads the profile config at path over the defaults. A missing file
// yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// LoadGlobal reads the global config. Returns an error if the file is missing.
func LoadGlobal(path string) (*Global, error) {
	var g Global
	if _, err := toml.DecodeFile(path, &g); err != nil {
		return nil, err
	}
	return &g, nil
}

// Save writes v to path with owner-only permissions, creating parent dirs
// as needed.
func Save(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(v)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
