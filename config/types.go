package config

import (
	"fmt"
	"net"
	"time"

	"github.com/halyard/halyard/errors"
	"github.com/mitchellh/mapstructure"
	"golang.org/x/crypto/ssh"
)

// Config is the root halyard configuration.
//
// The same struct is decoded from halyard.toml or halyard.yml; every field
// carries both tags. Unknown top-level sections are preserved in Extensions
// so tools layered on halyard (e.g. the logging sink configuration) can
// declare their own sections without schema changes here.
type Config struct {
	// HostKey is the path to the server's private host key. When empty a
	// fresh ephemeral key is generated on every start. When set but the file
	// does not exist, a key is generated and persisted there.
	HostKey string `toml:"host_key" yaml:"host_key" json:"host_key,omitempty"`

	// Address is the address to bind to.
	Address string `toml:"address" yaml:"address" json:"address"`

	// Port is the TCP port to listen on.
	Port int `toml:"port" yaml:"port" json:"port"`

	// Users is the authentication table, keyed by login name.
	Users map[string]UserConfig `toml:"users" yaml:"users" json:"users"`

	// Limits bounds server resource usage.
	Limits LimitsConfig `toml:"limits" yaml:"limits" json:"limits"`

	// Extensions captures unknown top-level sections.
	Extensions map[string]interface{} `toml:"-" yaml:"-" json:"-"`
}

// UserConfig describes one login.
type UserConfig struct {
	// Password is either a plaintext password or a bcrypt hash
	// (recognized by its $2a$/$2b$/$2y$ prefix). Empty disables
	// password authentication for the user.
	Password string `toml:"password" yaml:"password" json:"password,omitempty"`

	// Keys lists acceptable public keys, either as authorized_keys lines
	// or as SHA256: fingerprints.
	Keys []string `toml:"keys" yaml:"keys" json:"keys,omitempty"`
}

// LimitsConfig bounds server resource usage.
type LimitsConfig struct {
	// MaxSessions is the maximum number of concurrent client connections.
	MaxSessions int `toml:"max_sessions" yaml:"max_sessions" json:"max_sessions"`

	// IdleTimeoutSec closes connections with no traffic for this long.
	// Zero disables the idle deadline.
	IdleTimeoutSec int `toml:"idle_timeout_sec" yaml:"idle_timeout_sec" json:"idle_timeout_sec"`

	// AuthDelayMs is how long a rejected authentication attempt is held
	// before the rejection is sent.
	AuthDelayMs int `toml:"auth_delay_ms" yaml:"auth_delay_ms" json:"auth_delay_ms"`

	// MaxAuthTries is the number of authentication attempts permitted
	// per connection.
	MaxAuthTries int `toml:"max_auth_tries" yaml:"max_auth_tries" json:"max_auth_tries"`
}

const (
	DefaultAddress        = "0.0.0.0"
	DefaultPort           = 22
	DefaultMaxSessions    = 64
	DefaultIdleTimeoutSec = 3600
	DefaultAuthDelayMs    = 3000
	DefaultMaxAuthTries   = 6
)

// SetDefaults fills in zero-valued fields with their defaults.
func (c *Config) SetDefaults() {
	if c.Address == "" {
		c.Address = DefaultAddress
	}
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.Users == nil {
		c.Users = make(map[string]UserConfig)
	}
	if c.Limits.MaxSessions == 0 {
		c.Limits.MaxSessions = DefaultMaxSessions
	}
	if c.Limits.IdleTimeoutSec == 0 {
		c.Limits.IdleTimeoutSec = DefaultIdleTimeoutSec
	}
	if c.Limits.AuthDelayMs == 0 {
		c.Limits.AuthDelayMs = DefaultAuthDelayMs
	}
	if c.Limits.MaxAuthTries == 0 {
		c.Limits.MaxAuthTries = DefaultMaxAuthTries
	}
}

// Validate performs semantic validation beyond the schema check.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return errors.ConfigInvalid(fmt.Sprintf("port %d out of range", c.Port)).
			WithDetail("port", c.Port)
	}
	if net.ParseIP(c.Address) == nil {
		// Hostnames are allowed too; reject only strings the resolver
		// cannot possibly accept.
		if c.Address == "" {
			return errors.ConfigInvalid("address must not be empty")
		}
	}
	if c.Limits.MaxSessions < 0 || c.Limits.IdleTimeoutSec < 0 || c.Limits.AuthDelayMs < 0 {
		return errors.ConfigInvalid("limits must not be negative")
	}
	if c.Limits.MaxAuthTries < 1 {
		return errors.ConfigInvalid("max_auth_tries must be at least 1")
	}

	for name, user := range c.Users {
		if name == "" {
			return errors.ConfigInvalid("user name must not be empty")
		}
		for i, key := range user.Keys {
			if err := validateUserKey(key); err != nil {
				return errors.ConfigInvalid(fmt.Sprintf("user '%s' key %d: %v", name, i, err)).
					WithDetail("user", name)
			}
		}
	}
	return nil
}

// validateUserKey accepts either a SHA256: fingerprint or a parseable
// authorized_keys line.
func validateUserKey(key string) error {
	if key == "" {
		return fmt.Errorf("empty key entry")
	}
	if IsFingerprint(key) {
		return nil
	}
	if _, _, _, _, err := ssh.ParseAuthorizedKey([]byte(key)); err != nil {
		return fmt.Errorf("not a fingerprint or authorized_keys line: %w", err)
	}
	return nil
}

// IsFingerprint reports whether a user key entry is a SHA256 fingerprint
// rather than a full public key.
func IsFingerprint(key string) bool {
	return len(key) > 7 && key[:7] == "SHA256:"
}

// ListenAddr returns the host:port string the server binds to.
func (c *Config) ListenAddr() string {
	return net.JoinHostPort(c.Address, fmt.Sprintf("%d", c.Port))
}

// IdleTimeout returns the idle deadline as a duration.
func (l LimitsConfig) IdleTimeout() time.Duration {
	return time.Duration(l.IdleTimeoutSec) * time.Second
}

// AuthDelay returns the rejection hold time as a duration.
func (l LimitsConfig) AuthDelay() time.Duration {
	return time.Duration(l.AuthDelayMs) * time.Millisecond
}

// UnmarshalExtension decodes a specific extension's configuration from the
// loaded config file into the provided target struct. The target must be a
// pointer. This provides a type-safe way for subsystems to access their
// custom configuration sections.
//
// Example:
//
//	var logCfg logging.Config
//	err := cfg.UnmarshalExtension("logging", &logCfg)
func (c *Config) UnmarshalExtension(key string, target interface{}) error {
	extensionConfig, ok := c.Extensions[key]
	if !ok {
		// It's not an error if the key doesn't exist.
		// The target struct will simply remain zero-valued.
		return nil
	}

	// Use mapstructure to decode the generic map[string]interface{}
	// into the strongly-typed target struct. Tags follow the yaml names
	// so extension structs only need one tag set.
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:  target,
		TagName: "yaml",
	})
	if err != nil {
		return fmt.Errorf("failed to create mapstructure decoder: %w", err)
	}

	if err := decoder.Decode(extensionConfig); err != nil {
		return fmt.Errorf("failed to decode extension config for '%s': %w", key, err)
	}
	return nil
}
