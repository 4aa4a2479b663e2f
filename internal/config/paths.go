package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// GlobalConfigDir returns the XDG config directory for the widget CLI.
func GlobalConfigDir() string {
	return filepath.Join(getEnvOrDefault("XDG_CONFIG_HOME", defaultConfigHome()), "radikari")
}

// DefaultStateFile returns where the CLI persists thread ids when the
// config does not say otherwise. State, not config: losing it only costs
// a thread recreation.
func DefaultStateFile() string {
	stateHome := getEnvOrDefault("XDG_STATE_HOME", defaultStateHome())
	return filepath.Join(stateHome, "radikari", "threads.json")
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func defaultConfigHome() string {
	if runtime.GOOS == "windows" {
		return os.Getenv("APPDATA")
	}
	return filepath.Join(os.Getenv("HOME"), ".config")
}

func defaultStateHome() string {
	if runtime.GOOS == "windows" {
		return os.Getenv("APPDATA")
	}
	return filepath.Join(os.Getenv("HOME"), ".local", "state")
}
