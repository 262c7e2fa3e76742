// Package cmd wires the cobra command tree: a root command whose flags
// configure logging, a start subcommand that runs the transaction pipeline,
// and a version subcommand.
package cmd

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

const (
	logFormatJSON = "json"
	logFormatText = "text"

	flagLogLevel  = "log-level"
	flagLogFormat = "log-format"
)

var rootCmd = &cobra.Command{
	Use:   "oracle-price-feeder",
	Short: "drives DEX price feeds and alarm dispatch for a CosmWasm oracle deployment",
	Long: `oracle-price-feeder is the off-chain agent that keeps an oracle contract's
prices fresh and pokes time/price alarm contracts when alarms come due. It holds
a single on-chain signing identity and serializes every contract call through
one transaction pipeline.`,
}

func init() {
	rootCmd.PersistentFlags().String(flagLogLevel, zerolog.InfoLevel.String(), "logging level")
	rootCmd.PersistentFlags().String(flagLogFormat, logFormatText, "logging format; must be either json or text")

	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(versionCmd)
}

// Execute runs the root command, exiting the process with a nonzero code
// on any fatal error — the only exit-code contract spec.md §6 names.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
