// Package config loads the static startup configuration for the preview
// server: toolchain paths, default device, snapshot locations and timeouts.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Defaults    DefaultsConfig   `koanf:"defaults"`
	Build       BuildConfig      `koanf:"build"`
	Tools       ToolsConfig      `koanf:"tools"`
	Screenshots ScreenshotConfig `koanf:"screenshots"`
	Locator     LocatorConfig    `koanf:"locator"`
	Log         LogConfig        `koanf:"log"`
}

// DefaultsConfig holds per-call parameter defaults. They are applied at the
// tool boundary so every call stays independently constructible from its
// inputs; nothing here mutates between calls.
type DefaultsConfig struct {
	Device       string `koanf:"device"`
	SnapshotsDir string `koanf:"snapshots_dir"`
}

type BuildConfig struct {
	Timeout      int `koanf:"timeout"`        // xcodebuild budget in seconds
	BootDelay    int `koanf:"boot_delay"`     // settle time after a fresh simulator boot
	LogTailBytes int `koanf:"log_tail_bytes"` // max build log returned on failure
}

// ToolsConfig names the external toolchain binaries. Overridable so tests
// and non-standard Xcode installs can point elsewhere.
type ToolsConfig struct {
	Xcodebuild string `koanf:"xcodebuild"`
	Xcrun      string `koanf:"xcrun"`
}

type ScreenshotConfig struct {
	OutputDir string `koanf:"output_dir"` // empty means <tmp>/ios_screenshots
}

type LocatorConfig struct {
	FallbackDirs []string `koanf:"fallback_dirs"` // extra search dirs relative to the project root
}

type LogConfig struct {
	Level string `koanf:"level"`
}

// Load builds the configuration from defaults, an optional YAML file and
// IOS_PREVIEW_* environment variables ("__" maps to a key separator, e.g.
// IOS_PREVIEW_DEFAULTS__DEVICE).
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(NewDefaultProvider(), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath != "" {
		configPath = expandPath(configPath)

		if _, err := os.Stat(configPath); err == nil {
			if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("failed to load config file: %w", err)
			}
		}
	}

	if err := k.Load(env.Provider("IOS_PREVIEW_", ".", func(s string) string {
		s = strings.ToLower(strings.TrimPrefix(s, "IOS_PREVIEW_"))
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.Screenshots.OutputDir = expandPath(cfg.Screenshots.OutputDir)

	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Defaults.Device == "" {
		return fmt.Errorf("defaults.device is required")
	}

	if c.Defaults.SnapshotsDir == "" {
		return fmt.Errorf("defaults.snapshots_dir is required")
	}

	if c.Build.Timeout <= 0 {
		return fmt.Errorf("build.timeout must be positive")
	}

	if c.Build.LogTailBytes <= 0 {
		return fmt.Errorf("build.log_tail_bytes must be positive")
	}

	if c.Tools.Xcodebuild == "" || c.Tools.Xcrun == "" {
		return fmt.Errorf("tools.xcodebuild and tools.xcrun are required")
	}

	return nil
}

func expandPath(path string) string {
	if path == "" {
		return path
	}

	if len(path) >= 2 && path[:2] == "~/" {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}

	return path
}
