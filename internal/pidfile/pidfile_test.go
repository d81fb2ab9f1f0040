package pidfile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAcquireRelease(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run", "halyard.pid")

	require.NoError(t, Acquire(path))

	pid, err := Read(path)
	require.NoError(t, err)
	require.Equal(t, os.Getpid(), pid)

	running, pid, err := IsRunning(path)
	require.NoError(t, err)
	require.True(t, running)
	require.Equal(t, os.Getpid(), pid)

	// Second acquire by the same live process must fail
	require.Error(t, Acquire(path))

	require.NoError(t, Release(path))

	running, _, err = IsRunning(path)
	require.NoError(t, err)
	require.False(t, running)
}

func TestAcquireCleansStaleFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "halyard.pid")

	// A PID that cannot be alive
	require.NoError(t, os.WriteFile(path, []byte("999999999"), 0644))

	require.NoError(t, Acquire(path))

	pid, err := Read(path)
	require.NoError(t, err)
	require.Equal(t, os.Getpid(), pid)
}
