package cmd

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/giantswarm/llm-judge/internal/record"
)

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect and edit saved judging runs",
	}
	cmd.AddCommand(newHistoryListCmd())
	cmd.AddCommand(newHistoryShowCmd())
	cmd.AddCommand(newHistoryDeleteCmd())
	cmd.AddCommand(newHistoryRemoveAnswerCmd())
	return cmd
}

func newHistoryListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List saved runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			records, err := store.List(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to list records: %w", err)
			}
			return writeRecordTable(cmd.OutOrStdout(), records)
		},
	}
}

func newHistoryShowCmd() *cobra.Command {
	var plain bool
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a saved run with its answers and judge report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseRecordID(args[0])
			if err != nil {
				return err
			}
			store, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			rec, err := store.Get(cmd.Context(), id)
			if err != nil {
				return err
			}
			return renderRecord(cmd.OutOrStdout(), rec, plain)
		},
	}
	cmd.Flags().BoolVar(&plain, "plain", false, "Print the record as plain markdown")
	return cmd
}

func newHistoryDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a saved run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseRecordID(args[0])
			if err != nil {
				return err
			}
			store, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			remaining, err := store.Remove(cmd.Context(), id)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Deleted record %d (%d remaining).\n", id, len(remaining))
			return nil
		},
	}
}

func newHistoryRemoveAnswerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove-answer <id> <model>",
		Short: "Remove one model's answer from a saved run",
		Long: `Remove one model's answer from a saved run. The model is matched by answer id
first and by model name otherwise. The judge report is left unchanged.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseRecordID(args[0])
			if err != nil {
				return err
			}
			store, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			if err := store.RemoveAnswer(cmd.Context(), id, args[1]); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Removed %s from record %d.\n", args[1], id)
			return nil
		},
	}
}

func parseRecordID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid record id %q", s)
	}
	return id, nil
}

func writeRecordTable(w io.Writer, records []record.Record) error {
	if len(records) == 0 {
		_, err := fmt.Fprintln(w, "No saved runs.")
		return err
	}

	table := newTable(w, []string{"ID", "Created", "Prompt", "Models", "Judge", "Best"})
	for _, rec := range records {
		models := make([]string, 0, len(rec.ModelAnswer.Models))
		for _, m := range rec.ModelAnswer.Models {
			models = append(models, m.Model)
		}
		_ = table.Append([]string{
			strconv.FormatInt(rec.ID, 10),
			rec.CreatedAt.Local().Format(time.DateTime),
			truncate(rec.Prompt, 48),
			strings.Join(models, ", "),
			rec.ModelAnswer.Judge.Model,
			rec.BestModel,
		})
	}
	return table.Render()
}

func renderRecord(w io.Writer, rec *record.Record, plain bool) error {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", rec.Prompt)
	fmt.Fprintf(&b, "_Record %d, %s_\n\n", rec.ID, rec.CreatedAt.Local().Format(time.DateTime))
	for _, m := range rec.ModelAnswer.Models {
		fmt.Fprintf(&b, "## %s\n\n%s\n\n", m.Model, m.Answer)
	}
	j := rec.ModelAnswer.Judge
	fmt.Fprintf(&b, "## Judge: %s (%s, full marks %d)\n\n%s\n\n", j.Model, j.Format, j.FullMarks, j.Answer)
	if rec.BestModel != "" {
		fmt.Fprintf(&b, "**Best model:** %s\n", rec.BestModel)
	}
	return writeMarkdown(w, b.String(), plain)
}

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
