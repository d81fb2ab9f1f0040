package cmd

import (
	"bytes"
	"fmt"
	"os"

	"github.com/halyard/halyard/errors"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/term"
)

// NewPasswdCmd returns the passwd command, which produces a bcrypt hash
// suitable for the password field of the user table.
func NewPasswdCmd() *cobra.Command {
	var cost int

	cmd := &cobra.Command{
		Use:   "passwd",
		Short: "Hash a password for the user table",
		Long: `Prompt for a password and print its bcrypt hash.

Paste the hash into the password field of a user entry; halyard
recognizes bcrypt hashes by their prefix and never logs either form.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			fd := int(os.Stdin.Fd())
			if !term.IsTerminal(fd) {
				return errors.New(errors.ErrCodeInvalidInput, "stdin is not a terminal")
			}

			fmt.Fprint(os.Stderr, "Password: ")
			first, err := term.ReadPassword(fd)
			fmt.Fprintln(os.Stderr)
			if err != nil {
				return errors.Wrap(err, errors.ErrCodeInternal, "failed to read password")
			}

			fmt.Fprint(os.Stderr, "Repeat password: ")
			second, err := term.ReadPassword(fd)
			fmt.Fprintln(os.Stderr)
			if err != nil {
				return errors.Wrap(err, errors.ErrCodeInternal, "failed to read password")
			}

			if !bytes.Equal(first, second) {
				return errors.New(errors.ErrCodeInvalidInput, "passwords do not match")
			}
			if len(first) == 0 {
				return errors.New(errors.ErrCodeInvalidInput, "empty password")
			}

			hash, err := bcrypt.GenerateFromPassword(first, cost)
			if err != nil {
				return errors.Wrap(err, errors.ErrCodeInternal, "failed to hash password")
			}

			fmt.Println(string(hash))
			return nil
		},
	}

	cmd.Flags().IntVar(&cost, "cost", bcrypt.DefaultCost, "bcrypt cost factor")

	return cmd
}
