package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/oklog/ulid/v2"

	"github.com/giantswarm/llm-judge/internal/llm"
)

// LLMSession streams replies from an OpenAI-compatible model.
type LLMSession struct {
	client llm.Client
	model  string
	logger *slog.Logger

	// emitMu is held while an event is checked and delivered so that Reset
	// never returns with a stale event still on its way to a sink.
	emitMu sync.Mutex

	mu      sync.Mutex
	history []llm.Message
	gen     uint64
	cancel  context.CancelFunc
	done    chan struct{}
	closed  bool
}

var _ Session = (*LLMSession)(nil)

// NewLLMSession creates a session for model.
func NewLLMSession(client llm.Client, model string, logger *slog.Logger) *LLMSession {
	if logger == nil {
		logger = slog.Default()
	}
	return &LLMSession{
		client: client,
		model:  model,
		logger: logger.With("model", model),
	}
}

// Model returns the API model identifier.
func (s *LLMSession) Model() string {
	return s.model
}

// Send starts streaming the reply to message.
func (s *LLMSession) Send(ctx context.Context, message string, sink Sink) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if s.done != nil {
		select {
		case <-s.done:
		default:
			return ErrBusy
		}
	}

	history := make([]llm.Message, len(s.history))
	copy(history, s.history)

	streamCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done
	gen := s.gen

	go s.stream(streamCtx, cancel, done, gen, history, message, sink)
	return nil
}

func (s *LLMSession) stream(ctx context.Context, cancel context.CancelFunc, done chan struct{}, gen uint64, history []llm.Message, message string, sink Sink) {
	defer close(done)
	defer cancel()

	emit := func(ev Event) bool {
		s.emitMu.Lock()
		defer s.emitMu.Unlock()
		s.mu.Lock()
		current := s.gen == gen
		s.mu.Unlock()
		if current {
			sink(ev)
		}
		return current
	}

	var content strings.Builder
	fail := func(err error) {
		s.logger.Warn("model reply failed", "error", err, "received", content.Len())
		emit(Event{
			Kind:     EventFailed,
			Content:  content.String(),
			RecordID: "error-" + ulid.Make().String(),
			Err:      err,
		})
	}

	sr, err := s.client.ChatCompletionStream(ctx, llm.ChatRequest{
		Model:       s.model,
		History:     history,
		UserMessage: message,
	})
	if err != nil {
		fail(err)
		return
	}
	defer sr.Close()

	for {
		chunk, err := sr.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			fail(fmt.Errorf("stream interrupted: %w", err))
			return
		}
		if chunk == "" {
			continue
		}
		content.WriteString(chunk)
		if !emit(Event{Kind: EventDelta, Delta: chunk}) {
			return
		}
	}

	reply := content.String()
	s.mu.Lock()
	if s.gen == gen {
		s.history = append(s.history,
			llm.Message{Role: llm.RoleUser, Content: message},
			llm.Message{Role: llm.RoleAssistant, Content: reply},
		)
	}
	s.mu.Unlock()

	s.logger.Debug("model reply completed", "length", len(reply))
	emit(Event{
		Kind:     EventCompleted,
		Content:  reply,
		RecordID: ulid.Make().String(),
	})
}

// Reset cancels any in-flight reply, waits for it to stop and clears the
// history.
func (s *LLMSession) Reset(ctx context.Context) error {
	s.emitMu.Lock()
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.emitMu.Unlock()
		return ErrClosed
	}
	s.gen++
	s.history = nil
	if s.cancel != nil {
		s.cancel()
	}
	done := s.done
	s.mu.Unlock()
	s.emitMu.Unlock()

	if done != nil {
		select {
		case <-done:
		case <-ctx.Done():
			return fmt.Errorf("failed to reset session for %s: %w", s.model, ctx.Err())
		}
	}

	s.mu.Lock()
	if s.done == done {
		s.cancel = nil
		s.done = nil
	}
	s.mu.Unlock()
	return nil
}

// Messages returns a copy of the conversation history.
func (s *LLMSession) Messages() []llm.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]llm.Message, len(s.history))
	copy(out, s.history)
	return out
}

// Close cancels any in-flight reply and marks the session closed. It does
// not wait for an event being delivered, so it is safe to call from the
// goroutine a sink posts to.
func (s *LLMSession) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.gen++
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()
	return nil
}
