package server

import (
	"bytes"
	"crypto/subtle"
	"strings"
	"sync"
	"time"

	"github.com/halyard/halyard/config"
	"github.com/halyard/halyard/errors"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/crypto/ssh"
)

// authTable holds the user table behind a RWMutex so the config watcher can
// swap it while connections are authenticating.
type authTable struct {
	mu    sync.RWMutex
	users map[string]config.UserConfig
}

func newAuthTable(users map[string]config.UserConfig) *authTable {
	return &authTable{users: users}
}

// swap replaces the whole user table atomically.
func (a *authTable) swap(users map[string]config.UserConfig) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.users = users
}

func (a *authTable) lookup(name string) (config.UserConfig, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	user, ok := a.users[name]
	return user, ok
}

func (a *authTable) len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.users)
}

// passwordCallback validates a password attempt against the user table.
// Rejections are held for the configured auth delay before returning.
func (s *Server) passwordCallback(conn ssh.ConnMetadata, password []byte) (*ssh.Permissions, error) {
	user := conn.User()

	userCfg, ok := s.auth.lookup(user)
	if !ok {
		s.rejectAuth(conn, "password")
		return nil, errors.UserUnknown(user)
	}
	if userCfg.Password == "" {
		s.rejectAuth(conn, "password")
		return nil, errors.AuthFailed(user, "password")
	}

	if !passwordMatches(userCfg.Password, password) {
		s.rejectAuth(conn, "password")
		return nil, errors.AuthFailed(user, "password")
	}

	s.logger.WithField("user", user).WithField("remote", conn.RemoteAddr().String()).
		Info("Password authentication succeeded")

	return &ssh.Permissions{
		Extensions: map[string]string{
			"auth-method": "password",
		},
	}, nil
}

// publicKeyCallback validates a public key attempt against the user table.
// Stored entries are either full authorized_keys lines or SHA256
// fingerprints.
func (s *Server) publicKeyCallback(conn ssh.ConnMetadata, key ssh.PublicKey) (*ssh.Permissions, error) {
	user := conn.User()

	userCfg, ok := s.auth.lookup(user)
	if !ok {
		s.rejectAuth(conn, "publickey")
		return nil, errors.UserUnknown(user)
	}

	fingerprint := ssh.FingerprintSHA256(key)
	marshaled := key.Marshal()

	for _, entry := range userCfg.Keys {
		if config.IsFingerprint(entry) {
			if subtle.ConstantTimeCompare([]byte(entry), []byte(fingerprint)) == 1 {
				return s.acceptKey(conn, fingerprint), nil
			}
			continue
		}

		parsed, _, _, _, err := ssh.ParseAuthorizedKey([]byte(entry))
		if err != nil {
			// Validated at config load, but the table can be hot-swapped;
			// skip entries that no longer parse.
			s.logger.WithField("user", user).Warn("Skipping unparseable key entry")
			continue
		}
		if bytes.Equal(parsed.Marshal(), marshaled) {
			return s.acceptKey(conn, fingerprint), nil
		}
	}

	s.rejectAuth(conn, "publickey")
	return nil, errors.AuthFailed(user, "publickey")
}

func (s *Server) acceptKey(conn ssh.ConnMetadata, fingerprint string) *ssh.Permissions {
	s.logger.WithField("user", conn.User()).WithField("fingerprint", fingerprint).
		Info("Public key authentication succeeded")

	return &ssh.Permissions{
		Extensions: map[string]string{
			"auth-method": "publickey",
			"pubkey-fp":   fingerprint,
		},
	}
}

// rejectAuth logs a failed attempt and holds the rejection for the
// configured delay to slow down credential guessing.
func (s *Server) rejectAuth(conn ssh.ConnMetadata, method string) {
	s.logger.WithField("user", conn.User()).
		WithField("method", method).
		WithField("remote", conn.RemoteAddr().String()).
		Debug("Authentication rejected")

	if delay := s.limits.AuthDelay(); delay > 0 {
		time.Sleep(delay)
	}
}

// passwordMatches compares an attempt against a stored credential, which is
// either a bcrypt hash or a plaintext password.
func passwordMatches(stored string, attempt []byte) bool {
	if isBcryptHash(stored) {
		return bcrypt.CompareHashAndPassword([]byte(stored), attempt) == nil
	}
	return subtle.ConstantTimeCompare([]byte(stored), attempt) == 1
}

// isBcryptHash recognizes the standard bcrypt prefixes.
func isBcryptHash(s string) bool {
	return strings.HasPrefix(s, "$2a$") || strings.HasPrefix(s, "$2b$") || strings.HasPrefix(s, "$2y$")
}
