// Package config resolves the widget's host-facing configuration from
// files, environment and flags. Only tenant id and base URL ever reach the
// lifecycle state machine; the rest is display and plumbing.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// Config is the merged configuration. Zero values mean "unset" so later
// sources can fill them in.
type Config struct {
	// TenantID scopes thread storage and all requests. Required to chat.
	TenantID string `json:"tenantId" yaml:"tenantId"`
	// BaseURL is the chat API origin. Required to chat.
	BaseURL string `json:"apiBaseUrl" yaml:"apiBaseUrl"`
	// Lang is the display language. Display-only.
	Lang string `json:"lang" yaml:"lang"`
	// Inline selects inline vs floating display mode. Display-only.
	Inline *bool `json:"inline,omitempty" yaml:"inline,omitempty"`
	// LogLevel is the minimum log level (DEBUG|INFO|WARN|ERROR).
	LogLevel string `json:"logLevel" yaml:"logLevel"`
	// StateFile overrides where the CLI persists thread ids.
	StateFile string `json:"stateFile" yaml:"stateFile"`
}

// IsInline resolves the display mode, defaulting to floating.
func (c *Config) IsInline() bool {
	return c.Inline != nil && *c.Inline
}

// Load resolves configuration from all sources, later sources winning:
//
//  1. global config dir (~/.config/radikari/)
//  2. project config (dir/.radikari/)
//  3. RADIKARI_CONFIG file override
//  4. RADIKARI_CONFIG_CONTENT inline JSON
//  5. environment variables
//
// Flags are merged on top by the caller. Missing files are skipped.
func Load(dir string) (*Config, error) {
	cfg := &Config{Lang: "en"}

	loaded := make(map[string]bool)
	loadOnce := func(path string) {
		abs, err := filepath.Abs(path)
		if err != nil || loaded[abs] {
			return
		}
		if loadFile(path, cfg) == nil {
			loaded[abs] = true
		}
	}

	for _, name := range configNames() {
		loadOnce(filepath.Join(GlobalConfigDir(), name))
	}
	if dir != "" {
		for _, name := range configNames() {
			loadOnce(filepath.Join(dir, ".radikari", name))
		}
	}

	if path := os.Getenv("RADIKARI_CONFIG"); path != "" {
		loadOnce(path)
	}

	if content := os.Getenv("RADIKARI_CONFIG_CONTENT"); content != "" {
		var inline Config
		if err := json.Unmarshal(jsonc.ToJSON([]byte(content)), &inline); err == nil {
			merge(cfg, &inline)
		}
	}

	applyEnv(cfg)
	return cfg, nil
}

// configNames lists the recognized config file names, in load order.
func configNames() []string {
	return []string{"radikari.json", "radikari.jsonc", "radikari.yaml", "radikari.yml"}
}

// loadFile parses one config file by extension and merges it in.
func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var next Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &next); err != nil {
			return fmt.Errorf("failed to parse %s: %w", path, err)
		}
	default:
		// JSON and JSONC; comments are stripped before decoding.
		if err := json.Unmarshal(jsonc.ToJSON(data), &next); err != nil {
			return fmt.Errorf("failed to parse %s: %w", path, err)
		}
	}

	merge(cfg, &next)
	return nil
}

// merge overlays src onto dst, set fields only.
func merge(dst, src *Config) {
	if src.TenantID != "" {
		dst.TenantID = src.TenantID
	}
	if src.BaseURL != "" {
		dst.BaseURL = src.BaseURL
	}
	if src.Lang != "" {
		dst.Lang = src.Lang
	}
	if src.Inline != nil {
		dst.Inline = src.Inline
	}
	if src.LogLevel != "" {
		dst.LogLevel = src.LogLevel
	}
	if src.StateFile != "" {
		dst.StateFile = src.StateFile
	}
}

// applyEnv overlays environment variables, the highest-priority source
// below flags.
func applyEnv(cfg *Config) {
	if v := os.Getenv("RADIKARI_TENANT"); v != "" {
		cfg.TenantID = v
	}
	if v := os.Getenv("RADIKARI_BASE_URL"); v != "" {
		cfg.BaseURL = v
	}
	if v := os.Getenv("RADIKARI_LANG"); v != "" {
		cfg.Lang = v
	}
	if v := os.Getenv("RADIKARI_INLINE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Inline = &b
		}
	}
	if v := os.Getenv("RADIKARI_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("RADIKARI_STATE_FILE"); v != "" {
		cfg.StateFile = v
	}
}
