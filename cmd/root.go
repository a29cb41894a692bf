package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/history-cli/internal/config"
	"github.com/sells-group/history-cli/internal/migration"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "history-cli",
	Short: "Grading history maintenance",
	Long:  "Bootstraps the history database, adds and backfills the derived score column, and manages history records.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if err := c.Validate(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	err := rootCmd.Execute()
	os.Exit(migration.ExitCode(err))
}
