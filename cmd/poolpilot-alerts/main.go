// poolpilot-alerts delivers pending pool alerts over SMS and email and
// acknowledges what was delivered.
//
// Usage:
//
//	poolpilot-alerts serve --config poolpilot.toml
//	poolpilot-alerts run --max-age 60
//	poolpilot-alerts migrate
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version    = "dev"
	configPath string
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "poolpilot-alerts",
		Short: "Dispatch pending pool alerts",
		Long: `poolpilot-alerts selects unacknowledged alerts, sends each one to its
contacts and acknowledges the alerts that were delivered.

Settings come from an optional TOML file overlaid with POOLPILOT_*
environment variables.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("POOLPILOT_CONFIG"), "Path to a TOML config file")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(migrateCmd())
	return rootCmd
}
