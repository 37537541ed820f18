package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nfrund/hexarena/cmd/arena-cli/internal/output"
	"github.com/nfrund/hexarena/cmd/arena-cli/internal/sim"
)

var simOpts sim.Options

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run a complete local battle with bots",
	Long: `Run a battle from lobby to completion in memory, with every participant
played by the built-in bots or a Tengo decision script, and print the ordered
event stream.

Examples:
  arena-cli simulate                               # 5 bots, random seed
  arena-cli simulate --players 8 --seed 42         # reproducible 8-way battle
  arena-cli simulate --script bundled:hunter       # use the bundled hunter script
  arena-cli simulate --format json > events.jsonl  # one JSON event per line`,
	RunE: func(cmd *cobra.Command, args []string) error {
		var printer sim.Printer
		switch simOpts.Format {
		case "json":
			printer = output.EventJSON
		case "table", "":
			printer = output.EventLine
		default:
			return fmt.Errorf("unsupported output format '%s'. Use 'table' or 'json'", simOpts.Format)
		}
		for i, a := range simOpts.Assets {
			simOpts.Assets[i] = strings.ToUpper(a)
		}

		final, err := sim.Run(cmd.Context(), simOpts, cmd.OutOrStdout(), printer)
		if err != nil {
			return err
		}
		if simOpts.Format != "json" {
			output.Summary(cmd.OutOrStdout(), final)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(simulateCmd)
	f := simulateCmd.Flags()
	f.IntVarP(&simOpts.Players, "players", "n", 5, "Number of participants (2-8)")
	f.Uint64Var(&simOpts.Seed, "seed", 0, "Battle seed; 0 picks one at random")
	f.StringSliceVar(&simOpts.Assets, "assets", []string{"BTC", "ETH", "SOL"}, "Assets to predict on")
	f.StringVar(&simOpts.Script, "script", "", "Decision script path or bundled:<name>; empty uses bots")
	f.StringVarP(&simOpts.Format, "format", "f", "table", "Output format (table, json)")
}
