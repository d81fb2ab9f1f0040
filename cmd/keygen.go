package cmd

import (
	"fmt"
	"os"

	"github.com/halyard/halyard/errors"
	"github.com/halyard/halyard/internal/hostkey"
	"github.com/halyard/halyard/pkg/paths"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/ssh"
)

// NewKeygenCmd returns the keygen command.
func NewKeygenCmd() *cobra.Command {
	var output string
	var force bool

	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate a server host key",
		Long:  "Generate an ed25519 host key and write it in OpenSSH PEM format.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if output == "" {
				output = paths.HostKeyPath()
			}
			if output == "" {
				return errors.New(errors.ErrCodeInvalidInput, "no output path; pass --output")
			}

			if _, err := os.Stat(output); err == nil && !force {
				return errors.New(errors.ErrCodeHostKeyExists,
					fmt.Sprintf("host key already exists at %s (use --force to overwrite)", output)).
					WithDetail("path", output)
			}

			signer, priv, err := hostkey.Generate()
			if err != nil {
				return err
			}
			if err := hostkey.Write(output, priv); err != nil {
				return err
			}

			fmt.Printf("Host key written to %s\n", output)
			fmt.Printf("Public key:  %s", ssh.MarshalAuthorizedKey(signer.PublicKey()))
			fmt.Printf("Fingerprint: %s\n", ssh.FingerprintSHA256(signer.PublicKey()))
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Where to write the key (default: data dir)")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite an existing key")

	return cmd
}
