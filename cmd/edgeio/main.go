package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "edgeio: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "edgeio",
		Short: "Relay a local bot host to a remote relay service over WebSocket",
		Long: `edgeio keeps one authenticated WebSocket session to a relay service,
mirrors selected host events to it and applies the commands it sends back.

Examples:
  EDGEIO_TOKEN=... edgeio run
  edgeio run --config edgeio.toml --admin 127.0.0.1:7070
  edgeio config init --format yaml --output edgeio.yaml`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.AddCommand(
		runCmd(),
		configCmd(),
		versionCmd(),
	)
	return rootCmd
}
