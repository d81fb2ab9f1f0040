package cli

import (
	"fmt"
	"os"

	"github.com/halyard/halyard/errors"
)

// ErrorHandler provides user-friendly error messages
type ErrorHandler struct {
	Verbose bool
}

// NewErrorHandler creates a new error handler
func NewErrorHandler(verbose bool) *ErrorHandler {
	return &ErrorHandler{
		Verbose: verbose,
	}
}

// Handle provides user-friendly error messages based on error type
func (h *ErrorHandler) Handle(err error) error {
	switch errors.GetCode(err) {
	case errors.ErrCodeConfigNotFound:
		fmt.Fprintf(os.Stderr, "❌ Configuration not found. Create a halyard.toml or pass --config.\n")
		return err

	case errors.ErrCodeConfigInvalid, errors.ErrCodeConfigValidation:
		fmt.Fprintf(os.Stderr, "❌ Configuration error: %v\n", err)
		fmt.Fprintf(os.Stderr, "Run 'halyard config check' for details.\n")
		return err

	case errors.ErrCodeHostKeyInvalid:
		if halErr, ok := err.(*errors.HalyardError); ok {
			fmt.Fprintf(os.Stderr, "❌ Host key at %s is not usable\n", halErr.Details["path"])
			fmt.Fprintf(os.Stderr, "Generate a fresh one with 'halyard keygen'.\n")
		}
		return err

	case errors.ErrCodeListenFailed:
		if halErr, ok := err.(*errors.HalyardError); ok {
			fmt.Fprintf(os.Stderr, "❌ Cannot listen on %s\n", halErr.Details["address"])
			fmt.Fprintf(os.Stderr, "Check that the port is free and that you may bind it.\n")
		}
		return err

	default:
		fmt.Fprintf(os.Stderr, "❌ Error: %v\n", err)

		if h.Verbose {
			if halErr, ok := err.(*errors.HalyardError); ok {
				fmt.Fprintf(os.Stderr, "\nError details:\n%s\n", halErr.ToJSON())
			}
		}
		return err
	}
}
