package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"

	"github.com/giantswarm/llm-judge/internal/judge"
	"github.com/giantswarm/llm-judge/internal/prompt"
)

func newRunCmd() *cobra.Command {
	var (
		question     string
		answerModels []string
		judgeModel   string
		fullMarks    int
		format       string
		locale       string
		timeout      time.Duration
		plain        bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Ask several models a question and let a judge compare the answers",
		Long: `Send the prompt to every answer model, wait for their answers, ask the judge
model to compare them and save the judged run to the history.

Models are given as 'name' or 'name=api-model-id'. The name identifies the
model in the report; the API model id is what the gateway is asked for.`,
		Example: `  llm-judge run --prompt "Which is larger, 9.11 or 9.9?" \
    --answer-model gpt-4o --answer-model fast=gpt-4o-mini \
    --judge-model claude-sonnet --full-marks 10 --format multiDimensional`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}

			cfg := judge.RunConfig{
				Prompt:     question,
				JudgeModel: judge.ParseModelSelection(judgeModel),
				FullMarks:  fullMarks,
				Locale:     locale,
			}
			for _, m := range answerModels {
				cfg.AnswerModels = append(cfg.AnswerModels, judge.ParseModelSelection(m))
			}
			if format != "" {
				f, err := prompt.ParseFormat(format)
				if err != nil {
					return err
				}
				cfg.ReportFormat = f
			}

			a, err := newApp(ctx, cmd)
			if err != nil {
				return err
			}
			defer a.close()

			loopCtx, stopLoop := context.WithCancel(ctx)
			defer stopLoop()
			go func() {
				_ = a.coordinator.Run(loopCtx)
			}()

			events, unsubscribe := a.coordinator.Subscribe(0)
			progressDone := make(chan struct{})
			go func() {
				defer close(progressDone)
				printProgress(cmd.ErrOrStderr(), events)
			}()

			snap, err := a.coordinator.RunAndWait(ctx, cfg)
			unsubscribe()
			<-progressDone
			if err != nil {
				return fmt.Errorf("run failed: %w", err)
			}
			if snap.Status != judge.StatusComplete {
				return fmt.Errorf("run ended without a judge report")
			}
			return renderReport(cmd.OutOrStdout(), snap, plain)
		},
	}

	cmd.Flags().StringVarP(&question, "prompt", "p", "", "Question sent to every answer model (default: configured example question)")
	cmd.Flags().StringArrayVarP(&answerModels, "answer-model", "a", nil, "Answer model as name or name=api-model-id (repeatable)")
	cmd.Flags().StringVarP(&judgeModel, "judge-model", "j", "", "Judge model as name or name=api-model-id")
	cmd.Flags().IntVar(&fullMarks, "full-marks", 0, "Maximum score per answer (default: configured value)")
	cmd.Flags().StringVar(&format, "format", "", "Report format: prosAndCons or multiDimensional")
	cmd.Flags().StringVar(&locale, "locale", "", "Judge prompt language: en, zh or ja")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Overall timeout for the run (e.g. 5m). 0 means no timeout")
	cmd.Flags().BoolVar(&plain, "plain", false, "Print the report as plain markdown")
	_ = cmd.MarkFlagRequired("answer-model")
	_ = cmd.MarkFlagRequired("judge-model")

	return cmd
}

// printProgress reports answer completions, stage changes and notifications
// until events is closed.
func printProgress(w io.Writer, events <-chan judge.RunEvent) {
	var status judge.Status
	seen := map[string]bool{}
	for ev := range events {
		switch ev.Type {
		case judge.RunEventNotification:
			n := ev.Notification
			if n.ModelID != "" {
				_, _ = fmt.Fprintf(w, "  [%s] %s: %s\n", n.Level, n.ModelID, n.Message)
			} else {
				_, _ = fmt.Fprintf(w, "  [%s] %s\n", n.Level, n.Message)
			}
		case judge.RunEventState:
			snap := ev.State
			if snap.Status == judge.StatusFetchingAnswers && status != judge.StatusFetchingAnswers {
				seen = map[string]bool{}
				_, _ = fmt.Fprintf(w, "Fetching answers from %d models...\n", len(snap.Config.AnswerModels))
			}
			failed := map[string]bool{}
			for _, id := range snap.FailedIDs {
				failed[id] = true
			}
			for _, id := range snap.CompletedIDs {
				if seen[id] {
					continue
				}
				seen[id] = true
				mark := "done"
				if failed[id] {
					mark = "failed"
				}
				_, _ = fmt.Fprintf(w, "  %s: %s\n", id, mark)
			}
			if snap.Status == judge.StatusJudging && status != judge.StatusJudging {
				_, _ = fmt.Fprintf(w, "Judging with %s...\n", snap.Config.JudgeModel.DisplayID)
			}
			status = snap.Status
		}
	}
}

// renderReport writes the answers and the judge report as markdown,
// rendered for the terminal unless plain is set.
func renderReport(w io.Writer, snap judge.Snapshot, plain bool) error {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", snap.Config.Prompt)
	for _, a := range snap.Answers {
		fmt.Fprintf(&b, "## %s\n\n%s\n\n", a.ModelID, a.FinalText)
	}
	if snap.Judge != nil {
		fmt.Fprintf(&b, "## Judge: %s\n\n%s\n\n", snap.Judge.Model, snap.Judge.Text)
	}
	switch {
	case snap.BestMatch != "":
		fmt.Fprintf(&b, "**Best model:** %s\n\n", snap.BestMatch)
	case snap.BestModel != "":
		fmt.Fprintf(&b, "**Best model (unmatched):** %s\n\n", snap.BestModel)
	}
	if snap.RecordID != 0 {
		fmt.Fprintf(&b, "_Saved as record %d._\n", snap.RecordID)
	}

	return writeMarkdown(w, b.String(), plain)
}

// writeMarkdown writes md rendered for the terminal, or as is when plain.
func writeMarkdown(w io.Writer, md string, plain bool) error {
	if plain {
		_, err := io.WriteString(w, md)
		return err
	}

	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		return fmt.Errorf("failed to create markdown renderer: %w", err)
	}
	out, err := renderer.Render(md)
	if err != nil {
		return fmt.Errorf("failed to render markdown: %w", err)
	}
	_, err = io.WriteString(w, out)
	return err
}
