package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
)

// Client abstracts an OpenAI-compatible LLM gateway.
type Client interface {
	// ChatCompletion sends a chat completion request and returns the response.
	ChatCompletion(ctx context.Context, req ChatRequest) (*ChatResponse, error)
	// ChatCompletionStream sends a streaming chat completion request.
	ChatCompletionStream(ctx context.Context, req ChatRequest) (*StreamReader, error)
	// ListModels returns the model identifiers served by the gateway.
	ListModels(ctx context.Context) ([]string, error)
}

// Conversation roles accepted in ChatRequest.History.
const (
	RoleUser      = openai.ChatMessageRoleUser
	RoleAssistant = openai.ChatMessageRoleAssistant
)

// Message is a single turn of a conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is a simplified chat request. History is sent between the
// system message and the user message.
type ChatRequest struct {
	Model         string
	SystemMessage string
	History       []Message
	UserMessage   string
	Temperature   float64
}

// ChatResponse holds the result of a chat completion.
type ChatResponse struct {
	Content string
}

// StreamReader wraps a streaming response.
type StreamReader struct {
	recv  func() (string, error)
	close func()
}

// NewStreamReader builds a StreamReader from a chunk source. Recv must return
// io.EOF once the stream is exhausted.
func NewStreamReader(recv func() (string, error), closeFn func()) *StreamReader {
	if closeFn == nil {
		closeFn = func() {}
	}
	return &StreamReader{recv: recv, close: closeFn}
}

// Recv reads the next chunk from the stream.
func (s *StreamReader) Recv() (string, error) {
	return s.recv()
}

// Close closes the stream.
func (s *StreamReader) Close() {
	s.close()
}

// OpenAIClient implements Client using the OpenAI-compatible API.
type OpenAIClient struct {
	client         *openai.Client
	model          string
	temperature    *float64
	maxRetries     int
	requestTimeout time.Duration
	retryBackoff   time.Duration
}

// NewOpenAIClient creates a new OpenAI-compatible client.
func NewOpenAIClient(opts ...Option) *OpenAIClient {
	cfg := &clientConfig{
		baseURL:        "http://localhost:8000/v1",
		apiKey:         "not-needed",
		maxRetries:     DefaultMaxRetries,
		requestTimeout: DefaultRequestTimeout,
		retryBackoff:   time.Second,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	config := openai.DefaultConfig(cfg.apiKey)
	config.BaseURL = cfg.baseURL
	httpClient := cfg.httpClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	config.HTTPClient = &backendErrorDoer{next: httpClient}

	return &OpenAIClient{
		client:         openai.NewClientWithConfig(config),
		model:          cfg.model,
		temperature:    cfg.temperature,
		maxRetries:     cfg.maxRetries,
		requestTimeout: cfg.requestTimeout,
		retryBackoff:   cfg.retryBackoff,
	}
}

// ChatCompletion sends a non-streaming chat completion request. Each attempt
// is bounded by the request timeout and failed attempts are retried.
func (c *OpenAIClient) ChatCompletion(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	req = c.applyDefaults(req)

	var content string
	err := c.withRetry(ctx, "chat completion", func(ctx context.Context) error {
		attemptCtx, cancel := context.WithTimeout(ctx, c.requestTimeout)
		defer cancel()

		resp, err := c.client.CreateChatCompletion(attemptCtx, c.buildRequest(req))
		if err != nil {
			return err
		}
		if len(resp.Choices) == 0 {
			return fmt.Errorf("no choices returned")
		}
		content = resp.Choices[0].Message.Content
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("chat completion failed: %w", err)
	}

	return &ChatResponse{Content: content}, nil
}

// ChatCompletionStream opens a streaming chat completion request. The request
// timeout bounds opening the stream only; once the first response arrives the
// stream lives as long as ctx.
func (c *OpenAIClient) ChatCompletionStream(ctx context.Context, req ChatRequest) (*StreamReader, error) {
	req = c.applyDefaults(req)

	var reader *StreamReader
	err := c.withRetry(ctx, "chat completion stream", func(ctx context.Context) error {
		attemptCtx, cancel := context.WithCancel(ctx)
		timer := time.AfterFunc(c.requestTimeout, cancel)

		stream, err := c.client.CreateChatCompletionStream(attemptCtx, c.buildRequest(req))
		if !timer.Stop() {
			if err == nil {
				stream.Close()
			}
			cancel()
			return fmt.Errorf("timed out after %s opening stream", c.requestTimeout)
		}
		if err != nil {
			cancel()
			return err
		}

		reader = NewStreamReader(func() (string, error) {
			resp, err := stream.Recv()
			if err != nil {
				return "", err
			}
			if len(resp.Choices) > 0 {
				return resp.Choices[0].Delta.Content, nil
			}
			return "", nil
		}, func() {
			stream.Close()
			cancel()
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("chat completion stream failed: %w", err)
	}

	return reader, nil
}

// ListModels returns the sorted model identifiers the gateway advertises.
func (c *OpenAIClient) ListModels(ctx context.Context) ([]string, error) {
	var ids []string
	err := c.withRetry(ctx, "list models", func(ctx context.Context) error {
		attemptCtx, cancel := context.WithTimeout(ctx, c.requestTimeout)
		defer cancel()

		list, err := c.client.ListModels(attemptCtx)
		if err != nil {
			return err
		}
		ids = make([]string, 0, len(list.Models))
		for _, m := range list.Models {
			ids = append(ids, m.ID)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list models: %w", err)
	}
	sort.Strings(ids)
	return ids, nil
}

func (c *OpenAIClient) buildRequest(req ChatRequest) openai.ChatCompletionRequest {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.History)+2)
	if req.SystemMessage != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.SystemMessage})
	}
	for _, m := range req.History {
		messages = append(messages, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: req.UserMessage})

	return openai.ChatCompletionRequest{
		Model:       req.Model,
		Messages:    messages,
		Temperature: float32(req.Temperature),
	}
}

// withRetry runs fn up to maxRetries+1 times, backing off linearly between
// attempts. Errors the backend will keep returning are not retried.
func (c *OpenAIClient) withRetry(ctx context.Context, op string, fn func(context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			slog.Debug("retrying LLM request",
				"operation", op,
				"attempt", attempt,
				"error", lastErr,
			)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt) * c.retryBackoff):
			}
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if ctx.Err() != nil || !isRetryable(lastErr) {
			return lastErr
		}
	}
	return lastErr
}

// isRetryable reports whether err may succeed on another attempt. Client
// errors other than rate limiting are permanent.
func isRetryable(err error) bool {
	var backendErr *BackendError
	if errors.As(err, &backendErr) {
		return backendErr.StatusCode == 0 || backendErr.StatusCode == http.StatusTooManyRequests || backendErr.StatusCode >= 500
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == http.StatusTooManyRequests || apiErr.HTTPStatusCode >= 500
	}
	return true
}

// applyDefaults applies client-level defaults to a request where
// the request does not specify its own values.
func (c *OpenAIClient) applyDefaults(req ChatRequest) ChatRequest {
	if req.Model == "" && c.model != "" {
		req.Model = c.model
	}
	if req.Temperature == 0 && c.temperature != nil {
		req.Temperature = *c.temperature
	}
	return req
}

// CollectStream reads all chunks from a StreamReader and returns the full content.
// On error the content received so far is returned alongside it.
func CollectStream(sr *StreamReader) (string, error) {
	defer sr.Close()
	var b strings.Builder
	for {
		chunk, err := sr.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return b.String(), err
		}
		b.WriteString(chunk)
	}
	return b.String(), nil
}
