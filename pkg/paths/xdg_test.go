package paths

import (
	"path/filepath"
	"testing"
)

func TestHalyardHomeOverridesEverything(t *testing.T) {
	t.Setenv("HALYARD_HOME", "/opt/halyard")
	t.Setenv("XDG_CONFIG_HOME", "/xdg/config")
	t.Setenv("XDG_DATA_HOME", "/xdg/data")
	t.Setenv("XDG_STATE_HOME", "/xdg/state")

	if got := ConfigDir(); got != filepath.Join("/opt/halyard", "config", "halyard") {
		t.Errorf("ConfigDir = %s", got)
	}
	if got := DataDir(); got != filepath.Join("/opt/halyard", "data", "halyard") {
		t.Errorf("DataDir = %s", got)
	}
	if got := StateDir(); got != filepath.Join("/opt/halyard", "state", "halyard") {
		t.Errorf("StateDir = %s", got)
	}
}

func TestXDGEnvVars(t *testing.T) {
	t.Setenv("HALYARD_HOME", "")
	t.Setenv("XDG_CONFIG_HOME", "/xdg/config")
	t.Setenv("XDG_STATE_HOME", "/xdg/state")

	if got := ConfigDir(); got != filepath.Join("/xdg/config", "halyard") {
		t.Errorf("ConfigDir = %s", got)
	}
	if got := PidFilePath(); got != filepath.Join("/xdg/state", "halyard", "halyard.pid") {
		t.Errorf("PidFilePath = %s", got)
	}
}

func TestDerivedPaths(t *testing.T) {
	t.Setenv("HALYARD_HOME", "/h")

	if got := HostKeyPath(); got != filepath.Join("/h", "data", "halyard", "host_key") {
		t.Errorf("HostKeyPath = %s", got)
	}
	if got := LogDir(); got != filepath.Join("/h", "state", "halyard", "logs") {
		t.Errorf("LogDir = %s", got)
	}
}
