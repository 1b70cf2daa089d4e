package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	verbose bool
	logPath string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "loom",
	Short: "Loom Routing Simulator CLI",
	Long: `Loom simulates intradomain routing: independent router nodes exchange
protocol messages over simulated links and converge on shortest-path
forwarding tables, under distance-vector or link-state routing.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().StringVarP(&logPath, "log", "l", "", "Also write logs to this file")
}
