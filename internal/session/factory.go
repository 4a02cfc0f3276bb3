package session

import (
	"log/slog"

	"github.com/giantswarm/llm-judge/internal/llm"
)

// ClientResolver returns a dedicated client for model, or false to use the
// default client.
type ClientResolver func(model string) (llm.Client, bool)

// LLMFactory creates LLMSessions.
type LLMFactory struct {
	client   llm.Client
	resolver ClientResolver
	logger   *slog.Logger
}

var _ Factory = (*LLMFactory)(nil)

// FactoryOption configures an LLMFactory.
type FactoryOption func(*LLMFactory)

// WithClientResolver routes selected models to their own endpoints.
func WithClientResolver(r ClientResolver) FactoryOption {
	return func(f *LLMFactory) {
		f.resolver = r
	}
}

// WithLogger sets the logger handed to created sessions.
func WithLogger(logger *slog.Logger) FactoryOption {
	return func(f *LLMFactory) {
		f.logger = logger
	}
}

// NewLLMFactory creates a factory whose sessions use client.
func NewLLMFactory(client llm.Client, opts ...FactoryOption) *LLMFactory {
	f := &LLMFactory{client: client, logger: slog.Default()}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// New creates a session for model.
func (f *LLMFactory) New(model string) (Session, error) {
	client := f.client
	if f.resolver != nil {
		if c, ok := f.resolver(model); ok {
			client = c
		}
	}
	return NewLLMSession(client, model, f.logger), nil
}
