// Gray Logic Purifier - push-status air purifier coordinator
//
// purifierd keeps one long-lived session per configured air purifier,
// merges the status deltas each device pushes and exposes the merged view
// over a REST and WebSocket API.
//
// Subcommands:
//
//	purifierd serve      run the service (default)
//	purifierd migrate    apply, roll back or list schema migrations
//	purifierd devices    list, add or remove stored entries
//	purifierd token      issue an API bearer token
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// configPath is bound to the persistent --config flag.
var configPath string

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "purifierd",
		Short:         "Coordinator for push-status air purifiers",
		Version:       fmt.Sprintf("%s (commit %s, built %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to config file (default $PURIFIER_CONFIG or "+defaultConfigPath+")")

	serve := newServeCmd()
	root.RunE = serve.RunE
	root.Flags().AddFlagSet(serve.Flags())

	root.AddCommand(
		serve,
		newMigrateCmd(),
		newDevicesCmd(),
		newTokenCmd(),
	)
	return root
}

func main() {
	// Cancel on interrupt signals (Ctrl+C, SIGTERM) for graceful shutdown.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// getConfigPath returns the configuration file path.
// The --config flag wins, then PURIFIER_CONFIG, then the default.
func getConfigPath() string {
	if configPath != "" {
		return configPath
	}
	if path := os.Getenv("PURIFIER_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
