// Package testutil provides shared test helpers.
package testutil

import (
	"context"
	"io"
	"sync"

	"github.com/giantswarm/llm-judge/internal/llm"
)

// MockLLMClient is a configurable mock for llm.Client used across test packages.
type MockLLMClient struct {
	mu sync.Mutex

	// Responses maps user messages to canned completion responses.
	Responses map[string]string

	// DefaultResponse is returned when no matching key is found in Responses.
	DefaultResponse string

	// CompletionErr fails every ChatCompletion call.
	CompletionErr error

	// StreamChunks maps model names to the chunks their stream yields.
	StreamChunks map[string][]string

	// StreamErrs maps model names to an error returned after their chunks.
	StreamErrs map[string]error

	// OpenErrs maps model names to an error returned when opening a stream.
	OpenErrs map[string]error

	// Block, when set, holds every stream before its first chunk until it
	// is closed or the request context ends.
	Block chan struct{}

	// Models is returned by ListModels.
	Models []string

	// Calls tracks the number of ChatCompletion invocations.
	Calls int

	// StreamCalls tracks the number of ChatCompletionStream invocations.
	StreamCalls int

	// LastRequest stores the most recent request for inspection.
	LastRequest llm.ChatRequest
}

func (m *MockLLMClient) ChatCompletion(_ context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls++
	m.LastRequest = req

	if m.CompletionErr != nil {
		return nil, m.CompletionErr
	}
	if resp, ok := m.Responses[req.UserMessage]; ok {
		return &llm.ChatResponse{Content: resp}, nil
	}
	if m.DefaultResponse != "" {
		return &llm.ChatResponse{Content: m.DefaultResponse}, nil
	}
	return &llm.ChatResponse{Content: "mock response"}, nil
}

func (m *MockLLMClient) ChatCompletionStream(ctx context.Context, req llm.ChatRequest) (*llm.StreamReader, error) {
	m.mu.Lock()
	m.StreamCalls++
	m.LastRequest = req
	if err := m.OpenErrs[req.Model]; err != nil {
		m.mu.Unlock()
		return nil, err
	}
	chunks := append([]string(nil), m.StreamChunks[req.Model]...)
	streamErr := m.StreamErrs[req.Model]
	block := m.Block
	m.mu.Unlock()

	i := 0
	return llm.NewStreamReader(func() (string, error) {
		if i == 0 && block != nil {
			select {
			case <-block:
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if i < len(chunks) {
			i++
			return chunks[i-1], nil
		}
		if streamErr != nil {
			return "", streamErr
		}
		return "", io.EOF
	}, nil), nil
}

func (m *MockLLMClient) ListModels(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.Models...), nil
}

// StreamCallCount returns StreamCalls under the lock.
func (m *MockLLMClient) StreamCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.StreamCalls
}

// LastChatRequest returns LastRequest under the lock.
func (m *MockLLMClient) LastChatRequest() llm.ChatRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.LastRequest
}
