package config

import (
	"github.com/knadh/koanf/providers/confmap"
)

func DefaultConfig() map[string]interface{} {
	return map[string]interface{}{
		"defaults": map[string]interface{}{
			"device":        "iPhone 15 Pro",
			"snapshots_dir": "./__Snapshots__",
		},
		"build": map[string]interface{}{
			"timeout":        300, // first-time builds can take a while
			"boot_delay":     2,
			"log_tail_bytes": 4096,
		},
		"tools": map[string]interface{}{
			"xcodebuild": "xcodebuild",
			"xcrun":      "xcrun",
		},
		"screenshots": map[string]interface{}{
			"output_dir": "",
		},
		"locator": map[string]interface{}{
			"fallback_dirs": []string{},
		},
		"log": map[string]interface{}{
			"level": "info",
		},
	}
}

func NewDefaultProvider() *confmap.Confmap {
	return confmap.Provider(DefaultConfig(), ".")
}

func GetDefaultConfigPath() string {
	return "~/.ios-preview/config.yaml"
}
