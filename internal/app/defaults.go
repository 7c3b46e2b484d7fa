package app

import (
	"fmt"
	"os"
	"path/filepath"
)

// GetDefaults returns application default paths, checking environment variables first.
// Environment variables:
//   - PDM_CONFIG_PATH: config file location (default: ~/.config/pdm.toml)
//   - PDM_HOME: base directory for pdm data (default: ~/.local/share/pdm)
func GetDefaults() (map[string]string, error) {
	configPath, err := getConfigPath()
	if err != nil {
		return nil, err
	}

	baseDir, err := getBaseDir()
	if err != nil {
		return nil, err
	}

	return map[string]string{
		"config_path": configPath,
		"base_dir":    baseDir,
		"log_dir":     filepath.Join(baseDir, "log"),
	}, nil
}

// getConfigPath returns the config file path, checking PDM_CONFIG_PATH env var first,
// then falling back to the default ~/.config/pdm.toml.
func getConfigPath() (string, error) {
	if path := os.Getenv("PDM_CONFIG_PATH"); path != "" {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "pdm.toml"), nil
}

// getBaseDir returns the base directory for pdm data, checking PDM_HOME env var first,
// then falling back to the XDG default ~/.local/share/pdm.
func getBaseDir() (string, error) {
	if path := os.Getenv("PDM_HOME"); path != "" {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "pdm"), nil
}
