// Package testutil provides shared helpers for halyard package tests.
package testutil

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"
)

// GenerateClientKey creates a fresh ed25519 key pair for use as an SSH
// client identity in tests. It returns the signer plus the authorized_keys
// line and SHA256 fingerprint of the public key.
func GenerateClientKey(t *testing.T) (ssh.Signer, string, string) {
	t.Helper()

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err, "failed to generate ed25519 key")

	signer, err := ssh.NewSignerFromKey(priv)
	require.NoError(t, err, "failed to build ssh signer")

	authorized := string(ssh.MarshalAuthorizedKey(signer.PublicKey()))
	fingerprint := ssh.FingerprintSHA256(signer.PublicKey())

	return signer, authorized, fingerprint
}

// WriteConfig writes config content to halyard.toml in a temp dir and
// returns the file path.
func WriteConfig(t *testing.T, content string) string {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "halyard.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

// FreePort asks the kernel for an unused TCP port on the loopback interface.
func FreePort(t *testing.T) int {
	t.Helper()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err, "failed to grab a free port")
	defer l.Close()

	return l.Addr().(*net.TCPAddr).Port
}

// RandomString generates a random hex string of the specified length.
func RandomString(length int) string {
	bytes := make([]byte, length/2+1)
	if _, err := rand.Read(bytes); err != nil {
		panic(err)
	}
	return hex.EncodeToString(bytes)[:length]
}
