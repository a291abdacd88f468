package cmd

import (
	"fmt"

	"github.com/mselser95/settlement-engine/internal/app"
	"github.com/mselser95/settlement-engine/pkg/config"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the settlement node",
	Long: `Starts the settlement node, which will:
1. Deploy the collateral, fee router, oracles, curation registry and factories
2. Keep block time in step with the wall clock (CLOCK_MODE=wall)
3. Persist every committed event (STORAGE_MODE=postgres|console|none)
4. Serve the read API under /api and the event stream at /ws/events`,
	RunE: runNode,
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(runCmd)
}

func runNode(cmd *cobra.Command, args []string) error {
	// Load config
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Create logger
	logger, err := config.NewLogger()
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	application, err := app.New(cfg, logger, &app.Options{})
	if err != nil {
		return fmt.Errorf("create app: %w", err)
	}

	err = application.Run()
	if err != nil {
		return fmt.Errorf("run app: %w", err)
	}

	return nil
}
