package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/giantswarm/llm-judge/internal/catalog"
	"github.com/giantswarm/llm-judge/internal/config"
	"github.com/giantswarm/llm-judge/internal/judge"
	"github.com/giantswarm/llm-judge/internal/kserve"
	"github.com/giantswarm/llm-judge/internal/llm"
	"github.com/giantswarm/llm-judge/internal/metrics"
	"github.com/giantswarm/llm-judge/internal/prompt"
	"github.com/giantswarm/llm-judge/internal/record"
	"github.com/giantswarm/llm-judge/internal/session"
)

var errMissingAPIKey = errors.New("API key is not configured (set LLM_JUDGE_API_KEY or OPENAI_API_KEY)")

// app holds the components shared by the commands.
type app struct {
	cfg         *config.Config
	logger      *slog.Logger
	store       *record.SQLStore
	client      *llm.OpenAIClient
	catalog     *catalog.Catalog
	metrics     *metrics.Recorder
	coordinator *judge.Coordinator
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := rootCmd.PersistentFlags().GetString("config")
	cfg, err := config.Load(cmd.Context(), path)
	if err != nil {
		return nil, err
	}
	if cfg.LLM.APIKey == "" {
		cfg.LLM.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	return cfg, nil
}

// newLLMClient creates the gateway client from the LLM settings.
func newLLMClient(cfg config.LLMConfig) *llm.OpenAIClient {
	var opts []llm.Option
	if cfg.BaseURL != "" {
		opts = append(opts, llm.WithBaseURL(cfg.BaseURL))
	}
	if cfg.APIKey != "" {
		opts = append(opts, llm.WithAPIKey(cfg.APIKey))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, llm.WithRequestTimeout(cfg.Timeout))
	}
	if cfg.MaxRetries > 0 {
		opts = append(opts, llm.WithMaxRetries(cfg.MaxRetries))
	}
	return llm.NewOpenAIClient(opts...)
}

// openStore opens the record store only, for history commands.
func openStore(cmd *cobra.Command) (*record.SQLStore, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	store, err := record.Open(cmd.Context(), cfg.Store, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open record store: %w", err)
	}
	return store, nil
}

// newCatalog lists the gateway, configured and, when enabled, KServe
// models. KServe discovery failures are logged and leave the catalog
// without cluster models.
func newCatalog(ctx context.Context, cfg *config.Config, gateway llm.Client) *catalog.Catalog {
	opts := []catalog.Option{
		catalog.WithLogger(logger),
		catalog.WithClientBuilder(func(baseURL string) llm.Client {
			llmCfg := cfg.LLM
			llmCfg.BaseURL = baseURL
			return newLLMClient(llmCfg)
		}),
	}
	if cfg.KServe.Enabled {
		discovery, err := kserve.NewDiscovery(cfg.KServe.Namespace, cfg.KServe.Kubeconfig, cfg.KServe.InCluster, logger)
		if err != nil {
			logger.Warn("KServe discovery not available", "error", err)
		} else if err := discovery.CheckAvailable(ctx); err != nil {
			logger.Warn("KServe InferenceService API not reachable", "error", err)
		} else {
			opts = append(opts, catalog.WithEndpoints(discovery))
		}
	}
	return catalog.New(gateway, cfg.Catalog.Models, opts...)
}

// newApp wires the store, catalog, sessions and coordinator. The caller
// runs the coordinator loop and calls close when done.
func newApp(ctx context.Context, cmd *cobra.Command) (*app, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:     cfg,
		logger:  logger,
		metrics: metrics.NewRecorder(),
	}

	a.store, err = record.Open(ctx, cfg.Store, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open record store: %w", err)
	}

	a.client = newLLMClient(cfg.LLM)

	a.catalog = newCatalog(ctx, cfg, a.client)
	if cfg.KServe.Enabled {
		// Routes for KServe-served models come from the latest listing.
		if _, err := a.catalog.Models(ctx); err != nil {
			logger.Warn("failed to list models", "error", err)
		}
	}

	selectorCfg := cfg.LLM
	selectorCfg.Timeout = cfg.Selector.Timeout
	selectorCfg.MaxRetries = cfg.Selector.MaxRetries
	selector := judge.NewLLMSelector(newLLMClient(selectorCfg), cfg.Selector.Model)

	factory := session.NewLLMFactory(a.client,
		session.WithClientResolver(a.catalog.Resolve),
		session.WithLogger(logger),
	)
	driver := judge.NewDriver(factory, selector, a.store,
		judge.WithDriverLogger(logger),
		judge.WithDriverMetrics(a.metrics),
	)

	format, err := prompt.ParseFormat(cfg.Defaults.ReportFormat)
	if err != nil {
		_ = a.store.Close()
		return nil, fmt.Errorf("invalid default report format: %w", err)
	}
	a.coordinator = judge.NewCoordinator(factory, driver,
		judge.WithLogger(logger),
		judge.WithMetrics(a.metrics),
		judge.WithRunDefaults(judge.Defaults{
			Prompt:       cfg.Defaults.Prompt,
			FullMarks:    cfg.Defaults.FullMarks,
			ReportFormat: format,
			Locale:       cfg.Defaults.Locale,
		}),
		judge.WithCredentialCheck(func() error {
			if cfg.LLM.APIKey == "" {
				return errMissingAPIKey
			}
			return nil
		}),
	)

	return a, nil
}

func (a *app) close() {
	if err := a.store.Close(); err != nil {
		a.logger.Warn("failed to close record store", "error", err)
	}
}
