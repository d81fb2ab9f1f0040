package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/halyard/halyard/cli"
	"github.com/halyard/halyard/config"
	"github.com/halyard/halyard/internal/hostkey"
	"github.com/halyard/halyard/internal/pidfile"
	"github.com/halyard/halyard/internal/server"
	"github.com/halyard/halyard/internal/watcher"
	"github.com/halyard/halyard/logging"
	"github.com/halyard/halyard/pkg/paths"
	"github.com/spf13/cobra"
)

// NewServeCmd returns the serve command with its lifecycle subcommands.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the halyard SSH server",
	}

	cmd.AddCommand(newServeStartCmd())
	cmd.AddCommand(newServeStopCmd())
	cmd.AddCommand(newServeStatusCmd())

	return cmd
}

func newServeStartCmd() *cobra.Command {
	var address string
	var port int

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the server",
		Long:  "Start the halyard SSH server in foreground mode.",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := logging.NewLogger("halyard")
			opts := cli.GetOptions(cmd)
			handler := cli.NewErrorHandler(opts.Verbose)
			pidPath := paths.PidFilePath()

			// HALYARD_ADDRESS, HALYARD_PORT, HALYARD_CONFIG fill unset flags
			cli.BindEnv(cmd.Flags())

			// 1. Resolve and load configuration
			cfgPath, err := cli.ResolveConfigFile(cmd)
			if err != nil {
				return handler.Handle(err)
			}
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return handler.Handle(err)
			}

			// Flags override the file
			if cmd.Flags().Changed("address") {
				cfg.Address = address
			}
			if cmd.Flags().Changed("port") {
				cfg.Port = port
			}

			// 2. Host key
			if cfg.HostKey == "" {
				logger.Debug("No host key configured, generating an ephemeral key")
			} else {
				logger.WithField("path", cfg.HostKey).Debug("Loading host key")
			}
			signer, err := hostkey.LoadOrGenerate(cfg.HostKey)
			if err != nil {
				return handler.Handle(err)
			}

			// 3. Acquire lock
			if err := pidfile.Acquire(pidPath); err != nil {
				return fmt.Errorf("failed to start: %w", err)
			}
			defer func() {
				if err := pidfile.Release(pidPath); err != nil {
					logger.Errorf("Failed to release pidfile: %v", err)
				}
			}()

			// 4. Server and config watcher
			srv := server.New(cfg, signer, logger)

			w, err := watcher.New(cfgPath, 0, logging.NewLogger("config-watcher"), func(next *config.Config) {
				srv.SetUsers(next.Users)
			})
			if err != nil {
				logger.WithError(err).Warn("Config watcher unavailable, user table is fixed until restart")
			}

			// 5. Handle signals
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			stop := make(chan os.Signal, 1)
			signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

			go func() {
				<-stop
				logger.Info("Received stop signal")
				cancel()

				shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer shutdownCancel()

				if err := srv.Shutdown(shutdownCtx); err != nil {
					logger.Errorf("Server shutdown error: %v", err)
				}
			}()

			if w != nil {
				go w.Start(ctx)
			}

			// 6. Serve (blocking)
			logger.WithField("pid", os.Getpid()).Info("Starting halyard")
			if err := srv.ListenAndServe(ctx); err != nil {
				return handler.Handle(err)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&address, "address", "a", config.DefaultAddress, "Address to bind to (overrides config)")
	cmd.Flags().IntVarP(&port, "port", "p", config.DefaultPort, "Port to listen on (overrides config)")

	return cmd
}

func newServeStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the running server",
		RunE: func(cmd *cobra.Command, args []string) error {
			pidPath := paths.PidFilePath()

			running, pid, err := pidfile.IsRunning(pidPath)
			if err != nil {
				return fmt.Errorf("error checking status: %w", err)
			}

			if !running {
				fmt.Println("halyard is not running")
				return nil
			}

			process, err := os.FindProcess(pid)
			if err != nil {
				return fmt.Errorf("failed to find process %d: %w", pid, err)
			}

			if err := process.Signal(syscall.SIGTERM); err != nil {
				return fmt.Errorf("failed to send stop signal: %w", err)
			}

			fmt.Printf("Sent SIGTERM to process %d\n", pid)
			return nil
		},
	}
}

func newServeStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Check server status",
		RunE: func(cmd *cobra.Command, args []string) error {
			pidPath := paths.PidFilePath()
			running, pid, err := pidfile.IsRunning(pidPath)

			if err != nil {
				return fmt.Errorf("error: %w", err)
			}

			if running {
				fmt.Printf("Running (PID: %d)\n", pid)
			} else {
				fmt.Println("Stopped")
				os.Exit(1) // Non-zero for stopped state (useful for scripts)
			}
			return nil
		},
	}
}
