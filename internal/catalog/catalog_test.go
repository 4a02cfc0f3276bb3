package catalog

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giantswarm/llm-judge/internal/kserve"
	"github.com/giantswarm/llm-judge/internal/llm"
	"github.com/giantswarm/llm-judge/internal/testutil"
)

type fakeLister struct {
	endpoints []kserve.Endpoint
	err       error
}

func (f fakeLister) List(context.Context) ([]kserve.Endpoint, error) {
	return f.endpoints, f.err
}

type failingGateway struct {
	testutil.MockLLMClient
}

func (*failingGateway) ListModels(context.Context) ([]string, error) {
	return nil, errors.New("gateway down")
}

func TestModelsMergesSources(t *testing.T) {
	gateway := &testutil.MockLLMClient{Models: []string{"gpt-4o", "claude"}}
	lister := fakeLister{endpoints: []kserve.Endpoint{
		{Model: "qwen", Ready: true, URL: "http://qwen/v1"},
		{Model: "mistral", Ready: false},
	}}
	c := New(gateway, []string{"deepseek", "gpt-4o"}, WithEndpoints(lister))

	models, err := c.Models(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []Model{
		{ID: "claude", Source: SourceGateway, Ready: true},
		{ID: "deepseek", Source: SourceConfig, Ready: true},
		{ID: "gpt-4o", Source: SourceGateway, Ready: true},
		{ID: "mistral", Source: SourceKServe},
		{ID: "qwen", Source: SourceKServe, Ready: true, Endpoint: "http://qwen/v1"},
	}, models)

	ids, err := c.IDs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"claude", "deepseek", "gpt-4o", "qwen"}, ids)
}

func TestModelsToleratesFailingSource(t *testing.T) {
	c := New(&failingGateway{}, []string{"local"})

	models, err := c.Models(context.Background())
	require.NoError(t, err)
	require.Len(t, models, 1)
	assert.Equal(t, "local", models[0].ID)
}

func TestModelsFailsWhenNothingIsKnown(t *testing.T) {
	c := New(&failingGateway{}, nil, WithEndpoints(fakeLister{err: errors.New("forbidden")}))

	_, err := c.Models(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gateway down")
	assert.Contains(t, err.Error(), "forbidden")
}

func TestResolveRoutesKServeModels(t *testing.T) {
	var built []string
	c := New(&testutil.MockLLMClient{Models: []string{"gpt-4o"}}, nil,
		WithEndpoints(fakeLister{endpoints: []kserve.Endpoint{{Model: "qwen", Ready: true, URL: "http://qwen/v1"}}}),
		WithClientBuilder(func(baseURL string) llm.Client {
			built = append(built, baseURL)
			return &testutil.MockLLMClient{}
		}),
	)

	_, ok := c.Resolve("qwen")
	assert.False(t, ok, "nothing is routed before the first listing")

	_, err := c.Models(context.Background())
	require.NoError(t, err)

	first, ok := c.Resolve("qwen")
	require.True(t, ok)
	second, ok := c.Resolve("qwen")
	require.True(t, ok)
	assert.Same(t, first, second)
	assert.Equal(t, []string{"http://qwen/v1"}, built)

	_, ok = c.Resolve("gpt-4o")
	assert.False(t, ok)
}
