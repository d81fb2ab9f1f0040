package hostkey

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/halyard/halyard/errors"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"
)

func TestLoadOrGeneratePersistsKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys", "host_key")

	first, err := LoadOrGenerate(path)
	require.NoError(t, err)

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0600), info.Mode().Perm(), "host key must be private")

	// A second load must present the same public key
	second, err := LoadOrGenerate(path)
	require.NoError(t, err)
	require.Equal(t,
		ssh.FingerprintSHA256(first.PublicKey()),
		ssh.FingerprintSHA256(second.PublicKey()),
		"restart must keep the host identity")
}

func TestLoadOrGenerateEphemeral(t *testing.T) {
	a, err := LoadOrGenerate("")
	require.NoError(t, err)
	b, err := LoadOrGenerate("")
	require.NoError(t, err)

	require.NotEqual(t,
		ssh.FingerprintSHA256(a.PublicKey()),
		ssh.FingerprintSHA256(b.PublicKey()),
		"ephemeral keys must differ per start")
}

func TestLoadMissing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
	require.Equal(t, errors.ErrCodeHostKeyNotFound, errors.GetCode(err))
}

func TestLoadCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "host_key")
	require.NoError(t, os.WriteFile(path, []byte("not a pem key"), 0600))

	_, err := Load(path)
	require.Error(t, err)
	require.Equal(t, errors.ErrCodeHostKeyInvalid, errors.GetCode(err))
}
