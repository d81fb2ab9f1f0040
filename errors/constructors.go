package errors

import (
	"fmt"
)

// ConfigNotFound creates a configuration not found error
func ConfigNotFound(path string) *HalyardError {
	return New(ErrCodeConfigNotFound, fmt.Sprintf("configuration file not found: %s", path)).
		WithDetail("path", path)
}

// ConfigInvalid creates an invalid configuration error
func ConfigInvalid(reason string) *HalyardError {
	return New(ErrCodeConfigInvalid, fmt.Sprintf("invalid configuration: %s", reason))
}

// HostKeyInvalid creates a host key parse/type error
func HostKeyInvalid(path string, err error) *HalyardError {
	return Wrap(err, ErrCodeHostKeyInvalid, fmt.Sprintf("unusable host key: %s", path)).
		WithDetail("path", path)
}

// UserUnknown creates an unknown user error
func UserUnknown(user string) *HalyardError {
	return New(ErrCodeUserUnknown, fmt.Sprintf("user '%s' is not configured", user)).
		WithDetail("user", user)
}

// AuthFailed creates an authentication failure error
func AuthFailed(user, method string) *HalyardError {
	return New(ErrCodeAuthFailed, fmt.Sprintf("%s authentication failed for user '%s'", method, user)).
		WithDetail("user", user).
		WithDetail("method", method)
}

// ListenFailed creates a listener bind failure error
func ListenFailed(addr string, err error) *HalyardError {
	return Wrap(err, ErrCodeListenFailed, fmt.Sprintf("failed to listen on %s", addr)).
		WithDetail("address", addr)
}

// SessionLimit creates a session limit exceeded error
func SessionLimit(limit int) *HalyardError {
	return New(ErrCodeSessionLimit, fmt.Sprintf("session limit of %d reached", limit)).
		WithDetail("limit", limit)
}

// ForwardDenied creates a forwarding denied error
func ForwardDenied(addr string, port uint32, err error) *HalyardError {
	return Wrap(err, ErrCodeForwardDenied, fmt.Sprintf("cannot forward to %s:%d", addr, port)).
		WithDetail("address", addr).
		WithDetail("port", port)
}
