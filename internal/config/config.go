package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	LogLevel   string           `yaml:"log_level"`
	Device     DeviceConfig     `yaml:"device"`
	Connection ConnectionConfig `yaml:"connection"`
	Rate       RateConfig       `yaml:"rate"`
	Scheduler  SchedulerConfig  `yaml:"scheduler"`
	Actuation  ActuationConfig  `yaml:"actuation"`
	Hotkey     HotkeyConfig     `yaml:"hotkey"`
	Audio      AudioConfig      `yaml:"audio"`
	Server     ServerConfig     `yaml:"server"`
}

// DeviceConfig names the heart-rate monitor to connect to on startup.
// An empty address means "pick one from a scan".
type DeviceConfig struct {
	Name    string `yaml:"name"`
	Address string `yaml:"address"` // MAC address, or CoreBluetooth UUID on macOS
}

// ConnectionConfig holds BLE connection timing.
type ConnectionConfig struct {
	RetryInterval     time.Duration `yaml:"retry_interval"`
	KeepAliveInterval time.Duration `yaml:"keep_alive_interval"`
	ScanTimeout       time.Duration `yaml:"scan_timeout"`
}

// RateConfig selects where heart-rate samples come from.
type RateConfig struct {
	Source      string          `yaml:"source"` // "live" or "synthetic"
	FallbackBPM int             `yaml:"fallback_bpm"`
	Synthetic   SyntheticConfig `yaml:"synthetic"`
}

// SyntheticConfig is the random walk used by demo mode.
type SyntheticConfig struct {
	Probability float64       `yaml:"probability"`
	Step        int           `yaml:"step"`
	Min         int           `yaml:"min"`
	Max         int           `yaml:"max"`
	Interval    time.Duration `yaml:"interval"`
}

// SchedulerConfig tunes the beat loop.
type SchedulerConfig struct {
	DriftLogEvery int           `yaml:"drift_log_every"`
	MinSleep      time.Duration `yaml:"min_sleep"`
}

// ActuationConfig holds the action taken at every R peak.
type ActuationConfig struct {
	Method string `yaml:"method"` // "click", "key" or "none"
	Button string `yaml:"button"`
	Key    string `yaml:"key"`
}

// HotkeyConfig holds the global start/stop toggle.
type HotkeyConfig struct {
	Enabled bool     `yaml:"enabled"`
	Keys    []string `yaml:"keys"`
}

// AudioConfig holds the audible pulse settings.
type AudioConfig struct {
	Enabled    bool          `yaml:"enabled"`
	SampleRate uint32        `yaml:"sample_rate"`
	Frequency  float64       `yaml:"frequency"`
	Duration   time.Duration `yaml:"duration"`
	Volume     float64       `yaml:"volume"`
	ClipPath   string        `yaml:"clip_path"` // optional WAV replacing the tone
}

// ServerConfig holds the local HTTP/WebSocket control surface.
type ServerConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// DefaultConfigDir returns the default config directory path.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "notabot")
}

// DefaultConfigPath returns the default config file path.
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Connection: ConnectionConfig{
			RetryInterval:     2 * time.Second,
			KeepAliveInterval: 5 * time.Second,
			ScanTimeout:       5 * time.Second,
		},
		Rate: RateConfig{
			Source:      "live",
			FallbackBPM: 100,
			Synthetic: SyntheticConfig{
				Probability: 0.4,
				Step:        3,
				Min:         60,
				Max:         100,
				Interval:    time.Second,
			},
		},
		Scheduler: SchedulerConfig{
			DriftLogEvery: 10,
			MinSleep:      time.Millisecond,
		},
		Actuation: ActuationConfig{
			Method: "click",
			Button: "left",
			Key:    "space",
		},
		Hotkey: HotkeyConfig{
			Enabled: true,
			Keys:    []string{"ctrl", "shift", "h"},
		},
		Audio: AudioConfig{
			Enabled:    false,
			SampleRate: 44100,
			Frequency:  880,
			Duration:   40 * time.Millisecond,
			Volume:     0.5,
		},
		Server: ServerConfig{
			Enabled: false,
			Addr:    "127.0.0.1:8765",
		},
	}
}

// Load reads and parses a YAML config file. Missing fields are filled
// with defaults. Tilde (~) in audio.clip_path is expanded to the user's
// home directory.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.Audio.ClipPath = expandTilde(cfg.Audio.ClipPath)

	return cfg, nil
}

// LoadOrDefault loads path, falling back to defaults when the file does not
// exist.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

// Validate checks the config for invalid values.
func (c *Config) Validate() error {
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be debug, info, warn, or error, got %q", c.LogLevel)
	}

	if c.Connection.RetryInterval <= 0 {
		return fmt.Errorf("connection.retry_interval must be > 0")
	}
	if c.Connection.KeepAliveInterval <= 0 {
		return fmt.Errorf("connection.keep_alive_interval must be > 0")
	}
	if c.Connection.ScanTimeout <= 0 {
		return fmt.Errorf("connection.scan_timeout must be > 0")
	}

	switch c.Rate.Source {
	case "live", "synthetic":
	default:
		return fmt.Errorf("rate.source must be \"live\" or \"synthetic\", got %q", c.Rate.Source)
	}
	if c.Rate.FallbackBPM < 0 {
		return fmt.Errorf("rate.fallback_bpm must be >= 0")
	}
	s := c.Rate.Synthetic
	if s.Probability < 0 || s.Probability > 1 {
		return fmt.Errorf("rate.synthetic.probability must be between 0 and 1, got %v", s.Probability)
	}
	if s.Min <= 0 || s.Max < s.Min {
		return fmt.Errorf("rate.synthetic range [%d, %d] is invalid", s.Min, s.Max)
	}
	if s.Interval <= 0 {
		return fmt.Errorf("rate.synthetic.interval must be > 0")
	}

	if c.Scheduler.DriftLogEvery <= 0 {
		return fmt.Errorf("scheduler.drift_log_every must be > 0")
	}
	if c.Scheduler.MinSleep < 0 {
		return fmt.Errorf("scheduler.min_sleep must be >= 0")
	}

	switch c.Actuation.Method {
	case "click":
		switch c.Actuation.Button {
		case "left", "right", "center":
		default:
			return fmt.Errorf("actuation.button must be left, right, or center, got %q", c.Actuation.Button)
		}
	case "key":
		if c.Actuation.Key == "" {
			return fmt.Errorf("actuation.key must not be empty when method is \"key\"")
		}
	case "none":
	default:
		return fmt.Errorf("actuation.method must be \"click\", \"key\" or \"none\", got %q", c.Actuation.Method)
	}

	if c.Hotkey.Enabled && len(c.Hotkey.Keys) == 0 {
		return fmt.Errorf("hotkey.keys must not be empty")
	}

	if c.Audio.Enabled {
		if c.Audio.SampleRate == 0 {
			return fmt.Errorf("audio.sample_rate must be > 0")
		}
		if c.Audio.ClipPath == "" && (c.Audio.Frequency <= 0 || c.Audio.Duration <= 0) {
			return fmt.Errorf("audio.frequency and audio.duration must be > 0")
		}
		if c.Audio.Volume < 0 || c.Audio.Volume > 1 {
			return fmt.Errorf("audio.volume must be between 0 and 1, got %v", c.Audio.Volume)
		}
	}

	if c.Server.Enabled && c.Server.Addr == "" {
		return fmt.Errorf("server.addr must not be empty")
	}

	return nil
}

// ParseLogLevel maps a log_level value to a slog level, defaulting to info.
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

const defaultHeader = `# notabot configuration
# Durations use Go syntax (e.g. 2s, 500ms).
`

// WriteDefault writes the default config to DefaultConfigPath. It returns
// the path written, or "" when a config file already exists.
func WriteDefault() (string, error) {
	path := DefaultConfigPath()
	if _, err := os.Stat(path); err == nil {
		return "", nil
	}

	data, err := yaml.Marshal(Default())
	if err != nil {
		return "", fmt.Errorf("encoding default config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("creating config dir: %w", err)
	}
	if err := os.WriteFile(path, append([]byte(defaultHeader), data...), 0644); err != nil {
		return "", fmt.Errorf("writing config file: %w", err)
	}
	return path, nil
}

// expandTilde replaces a leading ~ with the user's home directory.
func expandTilde(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
