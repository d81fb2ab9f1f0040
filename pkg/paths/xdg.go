// Package paths provides XDG-compliant path resolution for halyard.
//
// Resolution order:
// 1. HALYARD_HOME (portable root) → $HALYARD_HOME/{config,data,state}
// 2. XDG env vars → $XDG_*_HOME/halyard
// 3. Platform defaults → ~/.config/halyard, ~/.local/share/halyard, etc.
package paths

import (
	"os"
	"path/filepath"
)

// getConfigHome returns the base config home directory.
func getConfigHome() string {
	if halyardHome := os.Getenv("HALYARD_HOME"); halyardHome != "" {
		return filepath.Join(halyardHome, "config")
	}
	if xdgConfigHome := os.Getenv("XDG_CONFIG_HOME"); xdgConfigHome != "" {
		return xdgConfigHome
	}
	if homeDir, err := os.UserHomeDir(); err == nil {
		return filepath.Join(homeDir, ".config")
	}
	return ""
}

// getDataHome returns the base data home directory.
func getDataHome() string {
	if halyardHome := os.Getenv("HALYARD_HOME"); halyardHome != "" {
		return filepath.Join(halyardHome, "data")
	}
	if xdgDataHome := os.Getenv("XDG_DATA_HOME"); xdgDataHome != "" {
		return xdgDataHome
	}
	if homeDir, err := os.UserHomeDir(); err == nil {
		return filepath.Join(homeDir, ".local", "share")
	}
	return ""
}

// getStateHome returns the base state home directory.
func getStateHome() string {
	if halyardHome := os.Getenv("HALYARD_HOME"); halyardHome != "" {
		return filepath.Join(halyardHome, "state")
	}
	if xdgStateHome := os.Getenv("XDG_STATE_HOME"); xdgStateHome != "" {
		return xdgStateHome
	}
	if homeDir, err := os.UserHomeDir(); err == nil {
		return filepath.Join(homeDir, ".local", "state")
	}
	return ""
}

// ConfigDir returns the halyard configuration directory.
// Used for config files like halyard.toml.
func ConfigDir() string {
	base := getConfigHome()
	if base == "" {
		return ""
	}
	return filepath.Join(base, "halyard")
}

// DataDir returns the halyard data directory.
// Used for persisted server material like the host key.
func DataDir() string {
	base := getDataHome()
	if base == "" {
		return ""
	}
	return filepath.Join(base, "halyard")
}

// StateDir returns the halyard state directory.
// Used for runtime state, the pidfile, and logs.
func StateDir() string {
	base := getStateHome()
	if base == "" {
		return ""
	}
	return filepath.Join(base, "halyard")
}

// HostKeyPath returns the default location of the server host key.
func HostKeyPath() string {
	data := DataDir()
	if data == "" {
		return ""
	}
	return filepath.Join(data, "host_key")
}

// LogDir returns the directory for log files.
func LogDir() string {
	state := StateDir()
	if state == "" {
		return ""
	}
	return filepath.Join(state, "logs")
}

// PidFilePath returns the path to the halyard daemon PID file.
func PidFilePath() string {
	return filepath.Join(StateDir(), "halyard.pid")
}

// EnsureDirs creates all halyard directories if they don't exist.
func EnsureDirs() error {
	dirs := []string{
		ConfigDir(),
		DataDir(),
		StateDir(),
		LogDir(),
	}

	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return nil
}
