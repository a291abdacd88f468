package cmd

import (
	"fmt"
	"os"

	"github.com/goccy/go-json"
	"github.com/holiman/uint256"
	"github.com/mselser95/settlement-engine/internal/ledger"
	"github.com/mselser95/settlement-engine/internal/market"
	"github.com/mselser95/settlement-engine/internal/protocol"
	"github.com/mselser95/settlement-engine/pkg/config"
	"github.com/mselser95/settlement-engine/pkg/fixed"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Play a binary market lifecycle on a scratch ledger",
	Long: `Deploys the protocol on an in-memory ledger with a manual clock and runs one
binary market end to end: creation, a YES and a NO buy, close, oracle proposal,
liveness, finalization, redemption, fee claims and LP withdrawal.

Prints the resulting summary as JSON.`,
	RunE: runSimulate,
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(simulateCmd)
	simulateCmd.Flags().String("liquidity", "1000", "Initial liquidity in collateral units")
	simulateCmd.Flags().Uint64("fee-bps", 100, "Trade fee in basis points")
	simulateCmd.Flags().String("yes", "50", "YES shares bought")
	simulateCmd.Flags().String("no", "100", "NO shares bought")
	simulateCmd.Flags().Bool("no-wins", false, "Resolve the market to NO instead of YES")
}

func runSimulate(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := config.NewLogger()
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	s := protocol.DefaultScenario()
	if s.Liquidity, err = amountFlag(cmd, "liquidity"); err != nil {
		return err
	}
	if s.YesShares, err = amountFlag(cmd, "yes"); err != nil {
		return err
	}
	if s.NoShares, err = amountFlag(cmd, "no"); err != nil {
		return err
	}
	s.FeeBps, _ = cmd.Flags().GetUint64("fee-bps")
	if noWins, _ := cmd.Flags().GetBool("no-wins"); noWins {
		s.Winner = market.No
	}

	chain := ledger.New(ledger.Config{StartTime: cfg.ChainStartTime, Logger: logger.Named("ledger")})
	p, err := protocol.Deploy(chain, protocol.Config{
		Admin:          cfg.Admin(),
		Liveness:       cfg.OracleLiveness,
		ReporterBond:   cfg.OracleReporterBond,
		DisputerBond:   cfg.OracleDisputerBond,
		WinnerShareBps: cfg.OracleWinnerShareBps,
		Reporters:      append(cfg.ReporterAddresses(), s.Reporter),
		Logger:         logger,
	})
	if err != nil {
		return fmt.Errorf("deploy protocol: %w", err)
	}

	sum, err := protocol.RunBinary(p, s, logger)
	if err != nil {
		return fmt.Errorf("run scenario: %w", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(sum)
}

func amountFlag(cmd *cobra.Command, name string) (*uint256.Int, error) {
	raw, _ := cmd.Flags().GetString(name)
	v, err := fixed.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("--%s: %w", name, err)
	}
	return v, nil
}
