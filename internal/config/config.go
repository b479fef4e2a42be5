// Package config provides configuration loading and management for psyche.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// Config is the root configuration.
type Config struct {
	Backend    BackendConfig    `json:"backend"    mapstructure:"backend"`
	Loop       LoopConfig       `json:"loop"       mapstructure:"loop"`
	Worker     WorkerConfig     `json:"worker"     mapstructure:"worker"`
	Escalation EscalationConfig `json:"escalation" mapstructure:"escalation"`
	Reaper     ReaperConfig     `json:"reaper"     mapstructure:"reaper"`
	Retention  RetentionPolicy  `json:"retention"  mapstructure:"retention"`
	Web        WebConfig        `json:"web"        mapstructure:"web"`
}

// BackendConfig describes how to invoke the external reasoning backend.
type BackendConfig struct {
	Type           string   `json:"type"                      mapstructure:"type"`
	Cmd            []string `json:"cmd,omitempty"             mapstructure:"cmd"`
	Model          string   `json:"model,omitempty"           mapstructure:"model"`
	BaseURL        string   `json:"base_url,omitempty"        mapstructure:"base_url"`
	APIKeyEnv      string   `json:"api_key_env,omitempty"     mapstructure:"api_key_env"`
	TimeoutSeconds int      `json:"timeout_seconds,omitempty" mapstructure:"timeout_seconds"`
}

// Timeout returns the backend call timeout as a duration.
func (c BackendConfig) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// LoopConfig controls cycle cadence and session retry behavior.
type LoopConfig struct {
	IntervalSeconds int `json:"interval_seconds" mapstructure:"interval_seconds"`
	AuditEvery      int `json:"audit_every"      mapstructure:"audit_every"`
	MaxRetries      int `json:"max_retries"      mapstructure:"max_retries"`
	RetryDelayMs    int `json:"retry_delay_ms"   mapstructure:"retry_delay_ms"`
}

// Interval returns the pause between cycles as a duration.
func (c LoopConfig) Interval() time.Duration {
	if c.IntervalSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.IntervalSeconds) * time.Second
}

// RetryDelay returns the pause between session launch attempts.
func (c LoopConfig) RetryDelay() time.Duration {
	if c.RetryDelayMs <= 0 {
		return time.Second
	}
	return time.Duration(c.RetryDelayMs) * time.Millisecond
}

// WorkerConfig controls the worker role's self-reconsideration pass.
type WorkerConfig struct {
	Reconsider        bool `json:"reconsider"         mapstructure:"reconsider"`
	ReassessThreshold int  `json:"reassess_threshold" mapstructure:"reassess_threshold"`
}

// EscalationConfig controls recurring-finding escalation.
type EscalationConfig struct {
	GapCeiling int `json:"gap_ceiling" mapstructure:"gap_ceiling"`
}

// ReaperConfig controls abandoned-subprocess reaping.
type ReaperConfig struct {
	GraceSeconds    int `json:"grace_seconds"    mapstructure:"grace_seconds"`
	IntervalSeconds int `json:"interval_seconds" mapstructure:"interval_seconds"`
}

// Grace returns the abandonment grace period as a duration.
func (c ReaperConfig) Grace() time.Duration {
	if c.GraceSeconds <= 0 {
		return time.Minute
	}
	return time.Duration(c.GraceSeconds) * time.Second
}

// Interval returns the reaper tick interval as a duration.
func (c ReaperConfig) Interval() time.Duration {
	if c.IntervalSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.IntervalSeconds) * time.Second
}

// RetentionPolicy defines how many old cycle records to keep.
type RetentionPolicy struct {
	KeepLast int `json:"keep_last,omitempty" mapstructure:"keep_last"`
}

// WebConfig controls the control-plane HTTP listener.
type WebConfig struct {
	Addr string `json:"addr,omitempty" mapstructure:"addr"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Backend: BackendConfig{
			Type:           "claude",
			TimeoutSeconds: 300,
		},
		Loop: LoopConfig{
			IntervalSeconds: 30,
			AuditEvery:      5,
			MaxRetries:      1,
			RetryDelayMs:    1000,
		},
		Worker: WorkerConfig{
			Reconsider:        true,
			ReassessThreshold: 70,
		},
		Escalation: EscalationConfig{
			GapCeiling: 50,
		},
		Reaper: ReaperConfig{
			GraceSeconds:    60,
			IntervalSeconds: 30,
		},
		Retention: RetentionPolicy{
			KeepLast: 500,
		},
		Web: WebConfig{
			Addr: "127.0.0.1:7373",
		},
	}
}

// Load reads the config file at path, validates it and merges it over the
// defaults. A missing file yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")
	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := ValidateSettings(v.AllSettings()); err != nil {
		return Config{}, err
	}
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.ErrorUnused = true
	}); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}
