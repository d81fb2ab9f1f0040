package errors

import (
	"encoding/json"
	"fmt"
)

// ErrorCode represents a specific error condition
type ErrorCode string

const (
	// Configuration errors
	ErrCodeConfigNotFound   ErrorCode = "CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid    ErrorCode = "CONFIG_INVALID"
	ErrCodeConfigValidation ErrorCode = "CONFIG_VALIDATION"

	// Host key errors
	ErrCodeHostKeyInvalid  ErrorCode = "HOSTKEY_INVALID"
	ErrCodeHostKeyNotFound ErrorCode = "HOSTKEY_NOT_FOUND"
	ErrCodeHostKeyExists   ErrorCode = "HOSTKEY_EXISTS"

	// Authentication errors
	ErrCodeUserUnknown ErrorCode = "USER_UNKNOWN"
	ErrCodeAuthFailed  ErrorCode = "AUTH_FAILED"

	// Server errors
	ErrCodeListenFailed  ErrorCode = "LISTEN_FAILED"
	ErrCodeSessionLimit  ErrorCode = "SESSION_LIMIT"
	ErrCodeForwardDenied ErrorCode = "FORWARD_DENIED"

	// General errors
	ErrCodeInternal         ErrorCode = "INTERNAL_ERROR"
	ErrCodeInvalidInput     ErrorCode = "INVALID_INPUT"
	ErrCodePermissionDenied ErrorCode = "PERMISSION_DENIED"
)

// HalyardError represents a structured error with context
type HalyardError struct {
	Code    ErrorCode              `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
	Cause   error                  `json:"-"`
}

// Error implements the error interface
func (e *HalyardError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap implements the errors.Unwrap interface
func (e *HalyardError) Unwrap() error {
	return e.Cause
}

// WithDetail adds a detail to the error
func (e *HalyardError) WithDetail(key string, value interface{}) *HalyardError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// ToJSON converts the error to JSON
func (e *HalyardError) ToJSON() string {
	data, _ := json.MarshalIndent(e, "", "  ")
	return string(data)
}

// New creates a new HalyardError
func New(code ErrorCode, message string) *HalyardError {
	return &HalyardError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with a HalyardError
func Wrap(err error, code ErrorCode, message string) *HalyardError {
	return &HalyardError{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// Is checks if an error is a specific HalyardError code
func Is(err error, code ErrorCode) bool {
	if err == nil {
		return false
	}

	halErr, ok := err.(*HalyardError)
	if !ok {
		// Try to unwrap
		if unwrapper, ok := err.(interface{ Unwrap() error }); ok {
			return Is(unwrapper.Unwrap(), code)
		}
		return false
	}

	return halErr.Code == code
}

// GetCode extracts the error code from an error
func GetCode(err error) ErrorCode {
	if err == nil {
		return ""
	}

	halErr, ok := err.(*HalyardError)
	if !ok {
		// Try to unwrap
		if unwrapper, ok := err.(interface{ Unwrap() error }); ok {
			return GetCode(unwrapper.Unwrap())
		}
		return ""
	}

	return halErr.Code
}
