package main

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/history-cli/internal/model"
	"github.com/sells-group/history-cli/internal/store"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Manage a user's grading history",
}

// withUser opens the store and resolves the --user flag.
func withUser(cmd *cobra.Command, fn func(st store.Store, u *model.User) error) error {
	ctx := cmd.Context()
	username, _ := cmd.Flags().GetString("user")
	if username == "" {
		return eris.New("--user is required")
	}

	st, err := initStore(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "history: open store")
	}
	defer st.Close() //nolint:errcheck

	u, err := st.GetUser(ctx, username)
	if errors.Is(err, store.ErrUserNotFound) {
		return eris.Errorf("user %q does not exist (create it with init --seed-user)", username)
	}
	if err != nil {
		return err
	}
	return fn(st, u)
}

var historyAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Save a graded answer",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withUser(cmd, func(st store.Store, u *model.User) error {
			answer, _ := cmd.Flags().GetString("answer")
			if answer == "" {
				return eris.New("--answer is required")
			}
			questionFile, _ := cmd.Flags().GetString("question-file")

			h := &model.History{UserID: u.ID, Answer: answer, QuestionFile: questionFile}
			if cmd.Flags().Changed("comment") {
				c, _ := cmd.Flags().GetString("comment")
				h.Comment = &c
			}
			if cmd.Flags().Changed("polished-answer") {
				p, _ := cmd.Flags().GetString("polished-answer")
				h.PolishedAnswer = &p
			}

			if err := st.SaveHistory(cmd.Context(), h); err != nil {
				return eris.Wrap(err, "history add")
			}
			fmt.Fprintln(cmd.OutOrStdout(), h.ID)
			return nil
		})
	},
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List histories, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withUser(cmd, func(st store.Store, u *model.User) error {
			page, _ := cmd.Flags().GetInt("page")
			perPage, _ := cmd.Flags().GetInt("per-page")

			result, err := st.ListHistories(cmd.Context(), u.ID, page, perPage)
			if err != nil {
				return eris.Wrap(err, "history list")
			}
			formatHistoryPage(cmd.OutOrStdout(), result)
			return nil
		})
	},
}

var historyShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Print one history as YAML",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withUser(cmd, func(st store.Store, u *model.User) error {
			h, err := st.GetHistory(cmd.Context(), args[0], u.ID)
			if err != nil {
				return eris.Wrapf(err, "history show %s", args[0])
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(h); err != nil {
				return eris.Wrap(err, "history show: encode")
			}
			return enc.Close()
		})
	},
}

var historyDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete one history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withUser(cmd, func(st store.Store, u *model.User) error {
			if err := st.DeleteHistory(cmd.Context(), args[0], u.ID); err != nil {
				return eris.Wrapf(err, "history delete %s", args[0])
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
			return nil
		})
	},
}

// formatHistoryPage writes a tabular page of histories to out.
func formatHistoryPage(out io.Writer, p *model.HistoryPage) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tQUESTION\tSCORE\tCREATED")
	_, _ = fmt.Fprintln(w, "--\t--------\t-----\t-------")

	for _, h := range p.Histories {
		score := "-"
		if h.Score != nil {
			score = strconv.Itoa(*h.Score)
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			h.ID,
			h.QuestionFile,
			score,
			h.CreatedAt.Format("2006-01-02 15:04"),
		)
	}
	_ = w.Flush()

	pg := p.Pagination
	_, _ = fmt.Fprintf(out, "page %d of %d (%d total)\n", pg.Page, pg.Pages, pg.Total)
}

func init() {
	historyCmd.PersistentFlags().String("user", "", "username that owns the histories")

	historyAddCmd.Flags().String("answer", "", "answer text")
	historyAddCmd.Flags().String("question-file", "", "question file name")
	historyAddCmd.Flags().String("comment", "", "grading comment")
	historyAddCmd.Flags().String("polished-answer", "", "polished answer text")

	historyListCmd.Flags().Int("page", 1, "page number")
	historyListCmd.Flags().Int("per-page", store.DefaultPerPage, "histories per page")

	historyCmd.AddCommand(historyAddCmd, historyListCmd, historyShowCmd, historyDeleteCmd)
	rootCmd.AddCommand(historyCmd)
}
