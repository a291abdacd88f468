package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var rootCmd = &cobra.Command{
	Use:   "settlement-engine",
	Short: "Prediction market settlement engine",
	Long: `Settlement engine for binary, multi-outcome and scalar prediction markets.

Markets are priced by an LMSR market maker, funded by liquidity providers,
charged a trade fee split between protocol, creator and LPs, and resolved by
an optimistic oracle with bonded proposals and disputes. The node runs the
contracts on an in-process ledger and serves a read API and a live event stream.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// Environment variables always win over the .env file.
		if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "Warning: load .env: %v\n", err)
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}
