package cmd

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/giantswarm/llm-judge/internal/catalog"
)

func newModelsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List models available for answering and judging",
		Long: `List the models reported by the gateway, the models named in the
configuration and, when KServe discovery is enabled, the models served by
InferenceServices in the cluster.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			c := newCatalog(cmd.Context(), cfg, newLLMClient(cfg.LLM))
			models, err := c.Models(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to list models: %w", err)
			}
			return writeModelTable(cmd.OutOrStdout(), models)
		},
	}
}

func writeModelTable(w io.Writer, models []catalog.Model) error {
	if len(models) == 0 {
		_, err := fmt.Fprintln(w, "No models found.")
		return err
	}
	table := newTable(w, []string{"Model", "Source", "Ready", "Endpoint"})
	for _, m := range models {
		_ = table.Append([]string{m.ID, m.Source, strconv.FormatBool(m.Ready), m.Endpoint})
	}
	return table.Render()
}
