// Package config loads llm-judge settings from an optional YAML file and the
// environment.
package config

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/sethvargo/go-envconfig"
	"gopkg.in/yaml.v3"

	"github.com/giantswarm/llm-judge/internal/record"
)

// Config is the top-level configuration.
type Config struct {
	LLM      LLMConfig      `mapstructure:"llm"`
	Selector SelectorConfig `mapstructure:"selector"`
	Store    record.Config  `mapstructure:"store"`
	Defaults RunDefaults    `mapstructure:"defaults"`
	KServe   KServeConfig   `mapstructure:"kserve"`
	Catalog  CatalogConfig  `mapstructure:"catalog"`
}

// LLMConfig configures the OpenAI-compatible gateway used for answer and
// judge sessions.
type LLMConfig struct {
	BaseURL    string        `mapstructure:"base_url" env:"LLM_JUDGE_BASE_URL"`
	APIKey     string        `mapstructure:"api_key" env:"LLM_JUDGE_API_KEY"`
	Timeout    time.Duration `mapstructure:"timeout" env:"LLM_JUDGE_TIMEOUT"`
	MaxRetries int           `mapstructure:"max_retries" env:"LLM_JUDGE_MAX_RETRIES"`
}

// SelectorConfig configures the best-model extraction request. An empty
// Model means the judge model is reused.
type SelectorConfig struct {
	Model      string        `mapstructure:"model" env:"LLM_JUDGE_SELECTOR_MODEL"`
	Timeout    time.Duration `mapstructure:"timeout" env:"LLM_JUDGE_SELECTOR_TIMEOUT"`
	MaxRetries int           `mapstructure:"max_retries" env:"LLM_JUDGE_SELECTOR_MAX_RETRIES"`
}

// RunDefaults fill unset run parameters.
type RunDefaults struct {
	Prompt       string `mapstructure:"prompt" env:"LLM_JUDGE_DEFAULT_PROMPT"`
	FullMarks    int    `mapstructure:"full_marks" env:"LLM_JUDGE_FULL_MARKS"`
	ReportFormat string `mapstructure:"report_format" env:"LLM_JUDGE_REPORT_FORMAT"`
	Locale       string `mapstructure:"locale" env:"LLM_JUDGE_LOCALE"`
}

// KServeConfig enables discovery of models served by KServe InferenceServices.
type KServeConfig struct {
	Enabled    bool   `mapstructure:"enabled" env:"LLM_JUDGE_KSERVE_ENABLED"`
	Namespace  string `mapstructure:"namespace" env:"LLM_JUDGE_KSERVE_NAMESPACE"`
	Kubeconfig string `mapstructure:"kubeconfig" env:"KUBECONFIG"`
	InCluster  bool   `mapstructure:"in_cluster" env:"LLM_JUDGE_KSERVE_IN_CLUSTER"`
}

// CatalogConfig lists models offered in addition to what the gateway reports.
type CatalogConfig struct {
	Models []string `mapstructure:"models"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		LLM: LLMConfig{
			BaseURL:    "http://localhost:8000/v1",
			Timeout:    25 * time.Second,
			MaxRetries: 2,
		},
		Selector: SelectorConfig{
			Timeout:    20 * time.Second,
			MaxRetries: 2,
		},
		Store: record.Config{
			Driver: record.SQLiteDriver,
			URL:    "file:llm-judge.db?_pragma=busy_timeout(5000)",
		},
		Defaults: RunDefaults{
			Prompt:       "Which number is larger, 9.11 or 9.9? Explain your reasoning.",
			FullMarks:    5,
			ReportFormat: "prosAndCons",
			Locale:       "en",
		},
		KServe: KServeConfig{
			Namespace: "llm-judge",
		},
	}
}

// Load reads the configuration file at path (optional) on top of the
// defaults and then applies environment overrides.
func Load(ctx context.Context, path string) (*Config, error) {
	return LoadWithLookuper(ctx, path, envconfig.OsLookuper())
}

// LoadWithLookuper is Load with an explicit environment source.
func LoadWithLookuper(ctx context.Context, path string, lookuper envconfig.Lookuper) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := decodeYAML(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:           cfg,
		Lookuper:         lookuper,
		DefaultOverwrite: true,
	}); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}

	return cfg, nil
}

func decodeYAML(data []byte, cfg *Config) error {
	raw := map[string]any{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return err
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:  mapstructure.StringToTimeDurationHookFunc(),
		Result:      cfg,
		ErrorUnused: true,
	})
	if err != nil {
		return err
	}
	return decoder.Decode(raw)
}
