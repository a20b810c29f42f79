package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// xdgDir returns $env/ani-tui, or ~/fallback/ani-tui when env is unset.
func xdgDir(env, fallback string) (string, error) {
	if dir := os.Getenv(env); dir != "" {
		return filepath.Join(dir, appName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}
	return filepath.Join(home, fallback, appName), nil
}

// Path returns the path to the config file.
func Path() (string, error) {
	dir, err := xdgDir("XDG_CONFIG_HOME", ".config")
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// DefaultHistoryPath returns the default history file location.
func DefaultHistoryPath() (string, error) {
	dir, err := xdgDir("XDG_DATA_HOME", filepath.Join(".local", "share"))
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "history.json"), nil
}

// DefaultLogPath returns the default log file location.
func DefaultLogPath() (string, error) {
	dir, err := xdgDir("XDG_STATE_HOME", filepath.Join(".local", "state"))
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, appName+".log"), nil
}
