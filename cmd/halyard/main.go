package main

import (
	"os"

	"github.com/halyard/halyard/cli"
	"github.com/halyard/halyard/cmd"
	"github.com/halyard/halyard/version"
)

func main() {
	rootCmd := cli.NewStandardCommand(
		"halyard",
		"A small configurable SSH server",
	)
	cli.SetVersionTemplate(rootCmd, version.GetInfo())

	rootCmd.AddCommand(cmd.NewServeCmd())
	rootCmd.AddCommand(cmd.NewKeygenCmd())
	rootCmd.AddCommand(cmd.NewPasswdCmd())
	rootCmd.AddCommand(cmd.NewConfigCmd())
	rootCmd.AddCommand(cmd.NewVersionCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
