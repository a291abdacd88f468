package cmd

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/holiman/uint256"
	"github.com/mselser95/settlement-engine/internal/amm"
	"github.com/mselser95/settlement-engine/pkg/fixed"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var quoteCmd = &cobra.Command{
	Use:   "quote",
	Short: "Price outcome shares on an LMSR curve",
	Long: `Builds the LMSR curve a market funded with --liquidity would use and prints,
for every outcome, the marginal price and the cost of buying --shares shares
given the quantities already sold (--sold, comma separated).

Example:
  settlement-engine quote --liquidity 1000 --sold 50,100 --shares 10`,
	RunE: runQuote,
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(quoteCmd)
	quoteCmd.Flags().String("liquidity", "1000", "Initial liquidity (subsidy) in collateral units")
	quoteCmd.Flags().IntP("outcomes", "n", 2, "Number of outcomes, ignored when --sold is set")
	quoteCmd.Flags().String("sold", "", "Shares already sold per outcome, comma separated")
	quoteCmd.Flags().String("shares", "1", "Shares to quote per outcome")
	quoteCmd.Flags().Uint64("fee-bps", 0, "Trade fee in basis points added on top of the cost")
}

func runQuote(cmd *cobra.Command, args []string) error {
	liquidity, err := amountFlag(cmd, "liquidity")
	if err != nil {
		return err
	}
	shares, err := amountFlag(cmd, "shares")
	if err != nil {
		return err
	}
	feeBps, _ := cmd.Flags().GetUint64("fee-bps")
	n, _ := cmd.Flags().GetInt("outcomes")
	soldRaw, _ := cmd.Flags().GetString("sold")

	q, err := parseSold(soldRaw, n)
	if err != nil {
		return err
	}

	curve, err := amm.NewFromSubsidy(liquidity, len(q))
	if err != nil {
		return fmt.Errorf("build curve: %w", err)
	}
	prices, err := curve.Prices(q)
	if err != nil {
		return fmt.Errorf("prices: %w", err)
	}
	maxLoss, err := curve.MaxLoss()
	if err != nil {
		return fmt.Errorf("max loss: %w", err)
	}

	fmt.Printf("b=%s max-loss=%s\n\n", fixed.Format(curve.B()), fixed.Format(maxLoss))

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "OUTCOME\tSOLD\tPRICE\tCOST\tFEE\tTOTAL")
	for i := range q {
		cost, err := curve.BuyCost(q, i, shares)
		if err != nil {
			return fmt.Errorf("cost of outcome %d: %w", i, err)
		}
		fee, err := fixed.BpsUp(cost, feeBps)
		if err != nil {
			return fmt.Errorf("fee of outcome %d: %w", i, err)
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n", i,
			fixed.Format(q[i]),
			fixed.Format(prices[i]),
			fixed.Format(cost),
			fixed.Format(fee),
			fixed.Format(new(uint256.Int).Add(cost, fee)))
	}
	return w.Flush()
}

func parseSold(raw string, n int) ([]*uint256.Int, error) {
	if raw == "" {
		q := make([]*uint256.Int, n)
		for i := range q {
			q[i] = fixed.Zero()
		}
		return q, nil
	}

	parts := strings.Split(raw, ",")
	q := make([]*uint256.Int, len(parts))
	for i, p := range parts {
		v, err := fixed.Parse(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("--sold[%d]: %w", i, err)
		}
		q[i] = v
	}
	return q, nil
}
