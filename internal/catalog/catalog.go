// Package catalog merges the models offered for judging runs from the
// gateway, the configuration and KServe.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/giantswarm/llm-judge/internal/kserve"
	"github.com/giantswarm/llm-judge/internal/llm"
)

// Model sources.
const (
	SourceGateway = "gateway"
	SourceConfig  = "config"
	SourceKServe  = "kserve"
)

// Model is a selectable model.
type Model struct {
	ID       string `json:"id"`
	Source   string `json:"source"`
	Ready    bool   `json:"ready"`
	Endpoint string `json:"endpoint,omitempty"`
}

// EndpointLister lists models served outside the gateway.
type EndpointLister interface {
	List(ctx context.Context) ([]kserve.Endpoint, error)
}

// ClientBuilder creates a client for a dedicated endpoint.
type ClientBuilder func(baseURL string) llm.Client

// Catalog lists models and routes sessions for KServe-served models to
// their own endpoints.
type Catalog struct {
	gateway   llm.Client
	static    []string
	endpoints EndpointLister
	build     ClientBuilder
	logger    *slog.Logger

	mu      sync.RWMutex
	routes  map[string]string
	clients map[string]llm.Client
}

// Option configures a Catalog.
type Option func(*Catalog)

// WithEndpoints adds models discovered by lister.
func WithEndpoints(lister EndpointLister) Option {
	return func(c *Catalog) {
		c.endpoints = lister
	}
}

// WithClientBuilder sets how clients for dedicated endpoints are created.
func WithClientBuilder(b ClientBuilder) Option {
	return func(c *Catalog) {
		c.build = b
	}
}

// WithLogger sets the catalog's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Catalog) {
		c.logger = logger
	}
}

// New creates a catalog over gateway and the statically configured models.
func New(gateway llm.Client, static []string, opts ...Option) *Catalog {
	c := &Catalog{
		gateway: gateway,
		static:  append([]string(nil), static...),
		logger:  slog.Default(),
		routes:  map[string]string{},
		clients: map[string]llm.Client{},
		build: func(baseURL string) llm.Client {
			return llm.NewOpenAIClient(llm.WithBaseURL(baseURL))
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Models returns every known model sorted by id. A source that fails is
// logged and skipped; an error is returned only when no model is known.
func (c *Catalog) Models(ctx context.Context) ([]Model, error) {
	byID := map[string]Model{}
	var errs []error

	for _, id := range c.static {
		if id != "" {
			byID[id] = Model{ID: id, Source: SourceConfig, Ready: true}
		}
	}

	if c.gateway != nil {
		ids, err := c.gateway.ListModels(ctx)
		if err != nil {
			c.logger.Warn("failed to list gateway models", "error", err)
			errs = append(errs, err)
		}
		for _, id := range ids {
			byID[id] = Model{ID: id, Source: SourceGateway, Ready: true}
		}
	}

	routes := map[string]string{}
	if c.endpoints != nil {
		endpoints, err := c.endpoints.List(ctx)
		if err != nil {
			c.logger.Warn("failed to list KServe endpoints", "error", err)
			errs = append(errs, err)
		}
		for _, ep := range endpoints {
			byID[ep.Model] = Model{ID: ep.Model, Source: SourceKServe, Ready: ep.Ready, Endpoint: ep.URL}
			if ep.Ready {
				routes[ep.Model] = ep.URL
			}
		}
		c.mu.Lock()
		c.routes = routes
		c.mu.Unlock()
	}

	if len(byID) == 0 && len(errs) > 0 {
		return nil, fmt.Errorf("failed to list models: %w", errors.Join(errs...))
	}

	models := make([]Model, 0, len(byID))
	for _, m := range byID {
		models = append(models, m)
	}
	sort.Slice(models, func(i, j int) bool { return models[i].ID < models[j].ID })
	return models, nil
}

// IDs returns the ids of the ready models.
func (c *Catalog) IDs(ctx context.Context) ([]string, error) {
	models, err := c.Models(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(models))
	for _, m := range models {
		if m.Ready {
			ids = append(ids, m.ID)
		}
	}
	return ids, nil
}

// Resolve returns the dedicated client for model, if the last listing
// routed it to its own endpoint.
func (c *Catalog) Resolve(model string) (llm.Client, bool) {
	c.mu.RLock()
	url, ok := c.routes[model]
	client, cached := c.clients[url]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if cached {
		return client, true
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if client, cached = c.clients[url]; !cached {
		client = c.build(url)
		c.clients[url] = client
		c.logger.Debug("routing model to dedicated endpoint", "model", model, "endpoint", url)
	}
	return client, true
}
