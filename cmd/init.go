package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var initCmd = &cobra.Command{
	Use:          "init",
	Short:        "Create the users and histories tables",
	Long:         "Applies the embedded base schema migrations and optionally creates a user.",
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		out := cmd.OutOrStdout()

		st, err := initStore(ctx, nil)
		if err != nil {
			return eris.Wrap(err, "init: open store")
		}
		defer st.Close() //nolint:errcheck

		version, err := st.Bootstrap(ctx)
		if err != nil {
			return eris.Wrap(err, "init: bootstrap")
		}
		fmt.Fprintf(out, "Base schema at version %d\n", version)

		username, _ := cmd.Flags().GetString("seed-user")
		if username == "" {
			return nil
		}
		email, _ := cmd.Flags().GetString("seed-email")

		u, created, err := st.EnsureUser(ctx, username, email)
		if err != nil {
			return eris.Wrap(err, "init: seed user")
		}
		if created {
			fmt.Fprintf(out, "Created user %s (%s)\n", u.Username, u.ID)
		} else {
			fmt.Fprintf(out, "User %s already exists\n", u.Username)
		}
		zap.L().Info("seed user ready", zap.String("username", u.Username), zap.Bool("created", created))
		return nil
	},
}

func init() {
	initCmd.Flags().String("seed-user", "", "create this user if it does not exist")
	initCmd.Flags().String("seed-email", "", "email for the seeded user")
	rootCmd.AddCommand(initCmd)
}
