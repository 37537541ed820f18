package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nfrund/hexarena/cmd/arena-cli/internal/output"
	"github.com/nfrund/hexarena/internal/topics"
)

var (
	topicsFormat string
	topicsModule string
)

// topicsCmd represents the topics command
var topicsCmd = &cobra.Command{
	Use:   "topics",
	Short: "List the bus topics battles publish on",
	Long: `List every topic registered for event-driven communication: the battle
event stream, completion summaries and decision script reloads.

Examples:
  arena-cli topics                    # table of all topics
  arena-cli topics --module battle    # only battle topics
  arena-cli topics --format json      # machine-readable`,
	RunE: func(cmd *cobra.Command, args []string) error {
		list := topics.Default().List()
		if topicsModule != "" {
			list = topics.Default().ListByModule(topicsModule)
		}
		if len(list) == 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "No topics found matching: module '%s'\n", topicsModule)
			return nil
		}
		switch topicsFormat {
		case "json":
			return output.TopicsJSON(cmd.OutOrStdout(), list)
		case "table":
			output.TopicsTable(cmd.OutOrStdout(), list)
			return nil
		default:
			return fmt.Errorf("unsupported output format '%s'. Use 'table' or 'json'", topicsFormat)
		}
	},
}

func init() {
	rootCmd.AddCommand(topicsCmd)
	topicsCmd.Flags().StringVarP(&topicsFormat, "format", "f", "table", "Output format (table, json)")
	topicsCmd.Flags().StringVarP(&topicsModule, "module", "m", "", "Filter topics by module name")
}
