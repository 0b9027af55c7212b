// Package paths provides centralized path resolution for mcprompt.
// This package has NO internal imports (only stdlib) to avoid import cycles.
// All functions return errors to allow callers to log appropriately.
package paths

import (
	"fmt"
	"os"
	"path/filepath"
)

// AppName is used for the base directory and config file names.
const AppName = "mcprompt"

// ConfigExtensions lists the supported config file extensions in lookup order.
var ConfigExtensions = []string{".json", ".yaml", ".yml", ".toml"}

// BaseDir returns the mcprompt base directory (~/.mcprompt).
func BaseDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, "."+AppName), nil
}

// ConfigPath returns the active config file path.
// Priority: ./mcprompt.<ext> (current dir) > ~/.mcprompt/mcprompt.<ext>,
// with extensions tried in ConfigExtensions order.
// Returns ("", nil) if no config exists - this is a valid state, not an error.
func ConfigPath() (string, error) {
	for _, ext := range ConfigExtensions {
		localPath := AppName + ext
		if _, err := os.Stat(localPath); err == nil {
			absPath, err := filepath.Abs(localPath)
			if err != nil {
				return "", fmt.Errorf("failed to get absolute path: %w", err)
			}
			return absPath, nil
		}
	}

	base, err := BaseDir()
	if err != nil {
		return "", err
	}
	return findIn(base)
}

// findIn returns the first config file found in dir, or "" if none.
func findIn(dir string) (string, error) {
	for _, ext := range ConfigExtensions {
		p := filepath.Join(dir, AppName+ext)
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", nil
}

// ExpandTilde expands a path that starts with ~ to the user's home directory.
// Returns the path unchanged if it doesn't start with ~.
func ExpandTilde(path string) (string, error) {
	if len(path) == 0 || path[0] != '~' {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	if len(path) == 1 {
		return home, nil
	}
	return filepath.Join(home, path[1:]), nil
}
