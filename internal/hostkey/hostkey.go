// Package hostkey manages the server's ed25519 host key.
//
// Keys are stored in OpenSSH PEM format. A server pointed at the same key
// path across restarts presents the same host key; an empty path means a
// fresh ephemeral key per start.
package hostkey

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"

	"github.com/halyard/halyard/errors"
	"golang.org/x/crypto/ssh"
)

// Load reads an OpenSSH PEM private key from disk.
func Load(path string) (ssh.Signer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New(errors.ErrCodeHostKeyNotFound, fmt.Sprintf("host key not found: %s", path)).
				WithDetail("path", path)
		}
		return nil, errors.HostKeyInvalid(path, err)
	}

	signer, err := ssh.ParsePrivateKey(data)
	if err != nil {
		return nil, errors.HostKeyInvalid(path, err)
	}
	return signer, nil
}

// Generate creates a new ed25519 host key.
func Generate() (ssh.Signer, ed25519.PrivateKey, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to generate host key")
	}

	signer, err := ssh.NewSignerFromKey(priv)
	if err != nil {
		return nil, nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to build signer from generated key")
	}
	return signer, priv, nil
}

// Write persists a private key in OpenSSH PEM format with 0600 permissions.
func Write(path string, priv ed25519.PrivateKey) error {
	block, err := ssh.MarshalPrivateKey(priv, "halyard host key")
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to marshal host key")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to create host key directory").
			WithDetail("path", path)
	}

	if err := os.WriteFile(path, pem.EncodeToMemory(block), 0600); err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to write host key").
			WithDetail("path", path)
	}
	return nil
}

// LoadOrGenerate loads the key at path when it exists, otherwise generates
// one. A generated key is persisted when path is non-empty; an empty path
// yields an ephemeral key.
func LoadOrGenerate(path string) (ssh.Signer, error) {
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}

	signer, priv, err := Generate()
	if err != nil {
		return nil, err
	}

	if path != "" {
		if err := Write(path, priv); err != nil {
			return nil, err
		}
	}
	return signer, nil
}
