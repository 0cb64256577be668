package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"voxelzone.app/internal/playback"
)

// Config drives the client binaries. Durations are milliseconds in YAML.
type Config struct {
	Server   ServerSpec   `yaml:"server"`
	Join     JoinSpec     `yaml:"join"`
	Timeouts TimeoutSpec  `yaml:"timeouts"`
	Playback PlaybackSpec `yaml:"playback"`
	Storage  StorageSpec  `yaml:"storage"`
	Log      LogSpec      `yaml:"log"`
}

type ServerSpec struct {
	URL string `yaml:"url"`
}

type JoinSpec struct {
	Name        string `yaml:"name"`
	Password    string `yaml:"password,omitempty"`
	LocalUserID string `yaml:"local_user_id"`
}

type TimeoutSpec struct {
	QuickResponseMS int `yaml:"quick_response_ms"`
	SlowResponseMS  int `yaml:"slow_response_ms"`
	HandshakeMS     int `yaml:"handshake_ms"`
	WriteMS         int `yaml:"write_ms"`
	CloseMS         int `yaml:"close_ms"`
}

type PlaybackSpec struct {
	RetryPeriodMS     int `yaml:"retry_period_ms"`
	ReseekThresholdMS int `yaml:"reseek_threshold_ms"`

	// Zero backoff keeps reloading on every retry tick.
	BackoffInitialMS int `yaml:"backoff_initial_ms"`
	BackoffMaxMS     int `yaml:"backoff_max_ms"`

	Volume float64 `yaml:"volume"`
}

type StorageSpec struct {
	RecordDir  string `yaml:"record_dir,omitempty"`
	IndexPath  string `yaml:"index_path,omitempty"`
	WorldCache string `yaml:"world_cache,omitempty"`
}

type LogSpec struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

func Load(path string) (Config, error) {
	cfg := defaults()
	if strings.TrimSpace(path) == "" {
		cfg.Normalize()
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("client.yaml: %w", err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("client.yaml: %w", err)
	}
	return cfg, nil
}

func defaults() Config {
	return Config{
		Server: ServerSpec{URL: "ws://localhost:4000/zone"},
		Join:   JoinSpec{LocalUserID: "0"},
		Timeouts: TimeoutSpec{
			QuickResponseMS: 3000,
			SlowResponseMS:  5000,
			HandshakeMS:     5000,
			WriteMS:         5000,
			CloseMS:         2000,
		},
		Playback: PlaybackSpec{
			RetryPeriodMS:     200,
			ReseekThresholdMS: 100,
			Volume:            1,
		},
		Log: LogSpec{Level: "info"},
	}
}

func (c *Config) Normalize() {
	if c == nil {
		return
	}
	c.Server.URL = strings.TrimSpace(c.Server.URL)
	c.Join.Name = strings.TrimSpace(c.Join.Name)
	if strings.TrimSpace(c.Join.LocalUserID) == "" {
		c.Join.LocalUserID = "0"
	}
	if c.Playback.BackoffInitialMS > 0 && c.Playback.BackoffMaxMS <= 0 {
		c.Playback.BackoffMaxMS = 10 * c.Playback.BackoffInitialMS
	}
	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

func (c Config) Validate() error {
	c.Normalize()
	u, err := url.Parse(c.Server.URL)
	if err != nil {
		return fmt.Errorf("server.url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("server.url scheme must be ws or wss, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("server.url must have a host")
	}
	if c.Timeouts.QuickResponseMS <= 0 || c.Timeouts.SlowResponseMS <= 0 {
		return fmt.Errorf("timeouts.quick_response_ms and slow_response_ms must be > 0")
	}
	if c.Timeouts.QuickResponseMS > c.Timeouts.SlowResponseMS {
		return fmt.Errorf("timeouts.quick_response_ms must not exceed slow_response_ms")
	}
	if c.Timeouts.HandshakeMS < 0 || c.Timeouts.WriteMS < 0 || c.Timeouts.CloseMS < 0 {
		return fmt.Errorf("timeouts must be >= 0")
	}
	if c.Playback.RetryPeriodMS <= 0 {
		return fmt.Errorf("playback.retry_period_ms must be > 0")
	}
	if c.Playback.ReseekThresholdMS <= 0 {
		return fmt.Errorf("playback.reseek_threshold_ms must be > 0")
	}
	if c.Playback.BackoffInitialMS < 0 {
		return fmt.Errorf("playback.backoff_initial_ms must be >= 0")
	}
	if c.Playback.BackoffInitialMS > 0 && c.Playback.BackoffMaxMS < c.Playback.BackoffInitialMS {
		return fmt.Errorf("playback.backoff_max_ms must be >= backoff_initial_ms")
	}
	if c.Playback.Volume < 0 || c.Playback.Volume > 1 {
		return fmt.Errorf("playback.volume must be in [0, 1]")
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level %q not one of debug, info, warn, error", c.Log.Level)
	}
	return nil
}

func ms(v int) time.Duration { return time.Duration(v) * time.Millisecond }

func (t TimeoutSpec) QuickResponse() time.Duration { return ms(t.QuickResponseMS) }
func (t TimeoutSpec) SlowResponse() time.Duration  { return ms(t.SlowResponseMS) }
func (t TimeoutSpec) Handshake() time.Duration     { return ms(t.HandshakeMS) }
func (t TimeoutSpec) Write() time.Duration         { return ms(t.WriteMS) }
func (t TimeoutSpec) Close() time.Duration         { return ms(t.CloseMS) }

// ClockOptions converts the playback section for playback.NewClock.
func (p PlaybackSpec) ClockOptions() playback.Options {
	return playback.Options{
		RetryPeriod:     ms(p.RetryPeriodMS),
		ReseekThreshold: ms(p.ReseekThresholdMS),
		Backoff: playback.Backoff{
			Initial: ms(p.BackoffInitialMS),
			Max:     ms(p.BackoffMaxMS),
		},
	}
}

// NewLogger builds the process logger: JSON in production, console output
// in development. Both write to stderr.
func (l LogSpec) NewLogger() (*zap.Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		level = zapcore.InfoLevel
	}
	var zc zap.Config
	if l.Development {
		zc = zap.NewDevelopmentConfig()
		zc.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000")
		zc.DisableStacktrace = true
	} else {
		zc = zap.NewProductionConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}
