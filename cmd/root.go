package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/giantswarm/llm-judge/internal/logging"
)

// logger is the process logger, built once flags are parsed.
var logger = slog.Default()

var flushLogs logging.ShutdownFunc

var rootCmd = &cobra.Command{
	Use:   "llm-judge",
	Short: "Compare LLM answers with an LLM judge",
	Long: `llm-judge sends one question to several models, asks a judge model to
compare their answers and keeps every judged run in a history.

Runs are available from the command line, through an MCP server and through a
REST API with a live event stream.

When run without subcommands, it starts the MCP server (equivalent to 'llm-judge serve').`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, _ []string) {
		verbose, _ := cmd.Flags().GetBool("verbose")
		l, flush, err := logging.NewLogger(verbose)
		if err != nil {
			l = logging.FallbackLogger()
			l.Warn("failed to build logger, using fallback", "error", err)
		}
		logger = l
		flushLogs = flush
		slog.SetDefault(logger)
	},
	PersistentPostRun: func(_ *cobra.Command, _ []string) {
		if flushLogs != nil {
			_ = flushLogs()
		}
	},
}

// serveCmd is stored so the root command can delegate to it by default.
var serveCmd *cobra.Command

var (
	buildCommit = "unknown"
	buildDate   = "unknown"
)

// SetVersion sets the version for the root command.
func SetVersion(v string) {
	rootCmd.Version = v
}

// SetBuildInfo sets the commit and build date for the version command.
func SetBuildInfo(commit, date string) {
	buildCommit = commit
	buildDate = date
}

// Execute is the main entry point for the CLI application.
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "llm-judge version %s\n" .Version}}`)

	// Serve-specific flags are not parsed by the root command, so the
	// default is always the stdio transport.
	rootCmd.RunE = func(cmd *cobra.Command, args []string) error {
		fmt.Fprintln(os.Stderr, "No subcommand specified. Defaulting to 'serve' (stdio transport).")
		fmt.Fprintln(os.Stderr, "For HTTP transport or OAuth, use: llm-judge serve --transport streamable-http")
		fmt.Fprintln(os.Stderr)
		serveCmd.SetContext(cmd.Context())
		return serveCmd.RunE(serveCmd, args)
	}

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	serveCmd = newServeCmd()
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newHistoryCmd())
	rootCmd.AddCommand(newModelsCmd())

	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to a YAML configuration file")
}
