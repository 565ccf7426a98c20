// Package cli wires the loop's commands together.
package cli

import (
	"github.com/spf13/cobra"
)

var version = "dev"

// SetVersion injects the build version from main.
func SetVersion(v string) {
	version = v
}

var rootCmd = &cobra.Command{
	Use:   "autoloop",
	Short: "Run a coding agent in a loop until the work is done",
	Long: `autoloop repeatedly invokes a coding agent against a tracked backlog of
tasks, rotating in periodic cleanup, deploy, and review iterations, and stops
when the backlog is exhausted, progress stalls, or the operator says so.

Tasks live in the external tracker under a configurable tag. Configuration is
read from ./autoloop.yaml or ~/.autoloop/config.yaml.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(serveCmd)
}
