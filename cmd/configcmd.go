package cmd

import (
	"fmt"

	"github.com/halyard/halyard/cli"
	"github.com/halyard/halyard/config"
	toml "github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"
)

// NewConfigCmd returns the config command with check/show subcommands.
func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the halyard configuration",
	}

	cmd.AddCommand(newConfigCheckCmd())
	cmd.AddCommand(newConfigShowCmd())

	return cmd
}

func newConfigCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate the configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			handler := cli.NewErrorHandler(true)
			logger := cli.GetLogger(cmd)

			path, err := cli.ResolveConfigFile(cmd)
			if err != nil {
				return handler.Handle(err)
			}
			logger.WithField("path", path).Debug("Validating configuration")

			cfg, err := config.Load(path)
			if err != nil {
				return handler.Handle(err)
			}

			fmt.Printf("OK: %s (%d users, listening on %s)\n", path, len(cfg.Users), cfg.ListenAddr())
			return nil
		},
	}
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Long:  "Print the configuration with defaults applied. Passwords are redacted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			handler := cli.NewErrorHandler(true)

			path, err := cli.ResolveConfigFile(cmd)
			if err != nil {
				return handler.Handle(err)
			}

			cfg, err := config.Load(path)
			if err != nil {
				return handler.Handle(err)
			}

			out, err := toml.Marshal(redact(cfg))
			if err != nil {
				return err
			}
			fmt.Print(string(out))
			return nil
		},
	}
}

// redact returns a copy of the config safe to print.
func redact(cfg *config.Config) *config.Config {
	clone := *cfg
	clone.Users = make(map[string]config.UserConfig, len(cfg.Users))
	for name, user := range cfg.Users {
		if user.Password != "" {
			user.Password = "<redacted>"
		}
		clone.Users[name] = user
	}
	return &clone
}
