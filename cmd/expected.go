package cmd

import (
	"os"

	"github.com/encodeous/loom/sim"
	"github.com/encodeous/loom/state"
	"github.com/spf13/cobra"
)

// expectedCmd represents the expected command
var expectedCmd = &cobra.Command{
	Use:   "expected [topology.yaml]",
	Short: "Show the acceptable routes of a topology",
	Long:  `Prints the acceptable route table a simulation of this topology would be scored against, without running it.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := state.LoadConfig(args[0])
		if err != nil {
			return err
		}
		sim.RenderExpected(os.Stdout, cfg)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(expectedCmd)
}
