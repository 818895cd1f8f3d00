package config

import (
	"fmt"
	"time"
)

type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Logging  LoggingConfig  `json:"logging"`

	// Engine controls campaign delivery pacing.
	// If omitted, built-in defaults apply.
	Engine *EngineConfig `json:"engine,omitempty"`

	// Monitor controls the live status dashboard refresh behavior.
	Monitor *MonitorConfig `json:"monitor,omitempty"`

	Storage *StorageConfig `json:"storage,omitempty"`
}

type TelegramConfig struct {
	Token        string  `json:"token"`
	OwnerUserIDs []int64 `json:"owner_user_ids"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// EngineConfig controls campaign delivery pacing.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
//
// Defaults (when fields are omitted/zero):
//   - batch_size: 20
//   - max_attempts: 3
//   - retry_delay: "500ms"
//   - rate_limit_cooldown: "2s"
//   - batch_delay: "1s"
//   - progress_every: 5
//   - min_interval: "60s"
//   - sends_per_sec: 25
type EngineConfig struct {
	BatchSize   int `json:"batch_size,omitempty"`
	MaxAttempts int `json:"max_attempts,omitempty"`

	RetryDelay        string `json:"retry_delay,omitempty"`
	RateLimitCooldown string `json:"rate_limit_cooldown,omitempty"`
	BatchDelay        string `json:"batch_delay,omitempty"`

	ProgressEvery int `json:"progress_every,omitempty"`

	// MinInterval is the smallest allowed gap between recurring rounds.
	MinInterval string `json:"min_interval,omitempty"`

	// SendsPerSec caps outgoing deliveries across all campaigns combined.
	SendsPerSec int `json:"sends_per_sec,omitempty"`
}

// MonitorConfig controls the live dashboard.
//
// Defaults:
//   - min_push_spacing: "5s"
//   - refresh_active: "2s"
//   - refresh_idle: "5s"
type MonitorConfig struct {
	MinPushSpacing string `json:"min_push_spacing,omitempty"`
	RefreshActive  string `json:"refresh_active,omitempty"`
	RefreshIdle    string `json:"refresh_idle,omitempty"`
}

// StorageConfig controls the optional persistence layer.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./relaybot.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// EngineSettings is EngineConfig with defaults applied and durations parsed.
type EngineSettings struct {
	BatchSize         int
	MaxAttempts       int
	RetryDelay        time.Duration
	RateLimitCooldown time.Duration
	BatchDelay        time.Duration
	ProgressEvery     int
	MinInterval       time.Duration
	SendsPerSec       int
}

// MonitorSettings is MonitorConfig with defaults applied and durations parsed.
type MonitorSettings struct {
	MinPushSpacing time.Duration
	RefreshActive  time.Duration
	RefreshIdle    time.Duration
}

func parseDurationField(path, raw string) (time.Duration, error) {
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", path, err)
	}
	return d, nil
}

func parseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	if raw == "" {
		return def, nil
	}
	return parseDurationField(path, raw)
}

// EngineSettings resolves the engine block into concrete values.
// A nil receiver yields pure defaults.
func (c *EngineConfig) EngineSettings() (EngineSettings, error) {
	out := EngineSettings{
		BatchSize:         20,
		MaxAttempts:       3,
		RetryDelay:        500 * time.Millisecond,
		RateLimitCooldown: 2 * time.Second,
		BatchDelay:        time.Second,
		ProgressEvery:     5,
		MinInterval:       60 * time.Second,
		SendsPerSec:       25,
	}
	if c == nil {
		return out, nil
	}
	if c.BatchSize > 0 {
		out.BatchSize = c.BatchSize
	}
	if c.MaxAttempts > 0 {
		out.MaxAttempts = c.MaxAttempts
	}
	if c.ProgressEvery > 0 {
		out.ProgressEvery = c.ProgressEvery
	}
	if c.SendsPerSec > 0 {
		out.SendsPerSec = c.SendsPerSec
	}
	var err error
	if out.RetryDelay, err = parseDurationOrDefault("engine.retry_delay", c.RetryDelay, out.RetryDelay); err != nil {
		return out, err
	}
	if out.RateLimitCooldown, err = parseDurationOrDefault("engine.rate_limit_cooldown", c.RateLimitCooldown, out.RateLimitCooldown); err != nil {
		return out, err
	}
	if out.BatchDelay, err = parseDurationOrDefault("engine.batch_delay", c.BatchDelay, out.BatchDelay); err != nil {
		return out, err
	}
	if out.MinInterval, err = parseDurationOrDefault("engine.min_interval", c.MinInterval, out.MinInterval); err != nil {
		return out, err
	}
	return out, nil
}

// MonitorSettings resolves the monitor block into concrete values.
// A nil receiver yields pure defaults.
func (c *MonitorConfig) MonitorSettings() (MonitorSettings, error) {
	out := MonitorSettings{
		MinPushSpacing: 5 * time.Second,
		RefreshActive:  2 * time.Second,
		RefreshIdle:    5 * time.Second,
	}
	if c == nil {
		return out, nil
	}
	var err error
	if out.MinPushSpacing, err = parseDurationOrDefault("monitor.min_push_spacing", c.MinPushSpacing, out.MinPushSpacing); err != nil {
		return out, err
	}
	if out.RefreshActive, err = parseDurationOrDefault("monitor.refresh_active", c.RefreshActive, out.RefreshActive); err != nil {
		return out, err
	}
	if out.RefreshIdle, err = parseDurationOrDefault("monitor.refresh_idle", c.RefreshIdle, out.RefreshIdle); err != nil {
		return out, err
	}
	return out, nil
}

// Validate checks the parts of the config that must be right before the bot
// can start or a reload can be committed.
func (c *Config) Validate() error {
	if c.Telegram.Token == "" {
		return fmt.Errorf("telegram.token: required")
	}
	if len(c.Telegram.OwnerUserIDs) == 0 {
		return fmt.Errorf("telegram.owner_user_ids: at least one owner required")
	}
	if _, err := parseDurationOrDefault("telegram.poll_timeout", c.Telegram.PollTimeout, 10*time.Second); err != nil {
		return err
	}
	if _, err := c.Engine.EngineSettings(); err != nil {
		return err
	}
	if _, err := c.Monitor.MonitorSettings(); err != nil {
		return err
	}
	if s := c.Storage; s != nil && s.BusyTimeout != "" {
		if _, err := parseDurationField("storage.busy_timeout", s.BusyTimeout); err != nil {
			return err
		}
	}
	return nil
}
