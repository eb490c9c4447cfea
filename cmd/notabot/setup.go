package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/fatih/color"

	"github.com/chaz8081/notabot/internal/config"
)

// loadConfig loads the config from --config, or the default config path,
// or built-in defaults, applies --log-level and installs the logger.
func loadConfig() (*config.Config, error) {
	var (
		cfg    *config.Config
		source string
		err    error
	)
	switch {
	case configPath != "":
		cfg, err = config.Load(configPath)
		source = configPath
	default:
		path := config.DefaultConfigPath()
		if _, statErr := os.Stat(path); statErr == nil {
			cfg, err = config.Load(path)
			source = path
		} else {
			cfg = config.Default()
			source = "defaults"
		}
	}
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	if logLevel != "" {
		cfg.LogLevel = strings.ToLower(logLevel)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	setupLogging(cfg.LogLevel)
	slog.Debug("config loaded", "source", source)
	return cfg, nil
}

func setupLogging(level string) {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: config.ParseLogLevel(level),
	})
	slog.SetDefault(slog.New(handler))
}

// printBanner displays the startup configuration summary.
func printBanner(cfg *config.Config, mode string) {
	title := color.New(color.FgRed, color.Bold)
	title.Println("=== notabot ===")
	fmt.Printf("  Mode:      %s\n", mode)
	if cfg.Device.Address != "" {
		fmt.Printf("  Device:    %s (%s)\n", cfg.Device.Name, cfg.Device.Address)
	}
	fmt.Printf("  Actuation: %s\n", describeActuation(cfg.Actuation))
	if cfg.Hotkey.Enabled {
		fmt.Printf("  Hotkey:    %s (start/stop)\n", strings.Join(cfg.Hotkey.Keys, "+"))
	}
	if cfg.Audio.Enabled {
		fmt.Printf("  Audio:     on\n")
	}
	if cfg.Server.Enabled {
		fmt.Printf("  Server:    http://%s\n", cfg.Server.Addr)
	}
	fmt.Printf("  Log:       %s\n", cfg.LogLevel)
	title.Println("===============")
}

func describeActuation(a config.ActuationConfig) string {
	switch a.Method {
	case "click":
		return a.Button + " click"
	case "key":
		return "key " + a.Key
	default:
		return a.Method
	}
}
