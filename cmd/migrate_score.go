package main

import (
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/history-cli/internal/comment"
	"github.com/sells-group/history-cli/internal/migration"
	"github.com/sells-group/history-cli/internal/store"
)

var migrateScoreCmd = &cobra.Command{
	Use:   "migrate-score",
	Short: "Add the score column and backfill it from comments",
	Long: "Adds the score column to histories when it is missing, then parses every comment whose score " +
		"is unset or the sentinel and commits all derived scores in one transaction. Safe to re-run.",
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		out := cmd.OutOrStdout()

		// One connection for the whole run.
		st, err := initStore(ctx, &store.PoolConfig{MaxConns: 1, MinConns: 1})
		if err != nil {
			return eris.Wrap(err, "migrate-score: open store")
		}
		defer st.Close() //nolint:errcheck

		if bootstrap, _ := cmd.Flags().GetBool("bootstrap"); bootstrap {
			version, err := st.Bootstrap(ctx)
			if err != nil {
				return eris.Wrap(err, "migrate-score: bootstrap")
			}
			fmt.Fprintf(out, "Base schema at version %d\n", version)
		}

		o := migration.New(st, comment.NewParser(), cfg.Migration.Descriptor(),
			migration.WithSentinel(cfg.Migration.Sentinel),
			migration.WithProgressEvery(cfg.Migration.ProgressEvery),
			migration.WithOutput(out),
		)
		report, err := o.Run(ctx)
		if err != nil {
			return eris.Wrapf(err, "migrate-score: %s", report.State)
		}

		fmt.Fprintf(out, "Migration finished in %s\n", report.Duration.Round(time.Millisecond))
		return nil
	},
}

func init() {
	migrateScoreCmd.Flags().Bool("bootstrap", false, "apply the base schema before migrating")
	rootCmd.AddCommand(migrateScoreCmd)
}
