package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "arena-cli",
	Short: "Hex Arena command-line tool",
	Long: `arena-cli runs and inspects Hex Arena battles without a server.

Available commands:
  simulate    Run a complete local battle with bots and print its event stream
  topics      List the bus topics battles publish on
  version     Print the version number

Use "arena-cli [command] --help" for more information about a specific command.`,
	SilenceUsage: true,
}

// Execute executes the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
