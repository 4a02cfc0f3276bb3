package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/giantswarm/llm-judge/internal/llm"
	"github.com/giantswarm/llm-judge/internal/session"
)

// FakeReply scripts a FakeSession's answer.
type FakeReply struct {
	// Content is streamed as a single delta before the terminal event.
	Content string
	// Err turns the terminal event into a failure carrying Content.
	Err error
	// Hold delays the reply until it is closed.
	Hold chan struct{}
}

// FakeFactory creates FakeSessions and logs every reset, send and close in
// call order.
type FakeFactory struct {
	mu sync.Mutex

	// Replies maps model names to scripted replies.
	Replies map[string]FakeReply
	// NewErrs maps model names to an error returned by New.
	NewErrs map[string]error

	ops     []string
	sent    map[string][]string
	created map[string]int
}

var _ session.Factory = (*FakeFactory)(nil)

// NewFakeFactory creates a factory answering with replies.
func NewFakeFactory(replies map[string]FakeReply) *FakeFactory {
	return &FakeFactory{Replies: replies, created: map[string]int{}}
}

// New creates a session for model.
func (f *FakeFactory) New(model string) (session.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.NewErrs[model]; err != nil {
		return nil, err
	}
	if f.created == nil {
		f.created = map[string]int{}
	}
	f.created[model]++
	return &FakeSession{factory: f, model: model}, nil
}

// SetReply replaces the scripted reply for model.
func (f *FakeFactory) SetReply(model string, reply FakeReply) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Replies == nil {
		f.Replies = map[string]FakeReply{}
	}
	f.Replies[model] = reply
}

// Ops returns the logged operations, formatted as "op:model".
func (f *FakeFactory) Ops() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.ops...)
}

// Created returns how many sessions were created for model.
func (f *FakeFactory) Created(model string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.created[model]
}

// Sent returns the messages sent to model's sessions, in order.
func (f *FakeFactory) Sent(model string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent[model]...)
}

func (f *FakeFactory) recordSend(model, message string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sent == nil {
		f.sent = map[string][]string{}
	}
	f.sent[model] = append(f.sent[model], message)
}

func (f *FakeFactory) log(op, model string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ops = append(f.ops, op+":"+model)
}

func (f *FakeFactory) reply(model string) FakeReply {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Replies[model]
}

// FakeSession answers every message with its factory's scripted reply.
type FakeSession struct {
	factory *FakeFactory
	model   string

	mu      sync.Mutex
	gen     int
	closed  bool
	history []llm.Message
}

var _ session.Session = (*FakeSession)(nil)

// Model returns the model name.
func (s *FakeSession) Model() string {
	return s.model
}

// Reset drops pending replies and clears the history.
func (s *FakeSession) Reset(context.Context) error {
	s.factory.log("reset", s.model)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return session.ErrClosed
	}
	s.gen++
	s.history = nil
	return nil
}

// Send replies to message asynchronously.
func (s *FakeSession) Send(ctx context.Context, message string, sink session.Sink) error {
	s.factory.log("send", s.model)
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return session.ErrClosed
	}
	gen := s.gen
	s.mu.Unlock()
	s.factory.recordSend(s.model, message)

	reply := s.factory.reply(s.model)
	go func() {
		if reply.Hold != nil {
			select {
			case <-reply.Hold:
			case <-ctx.Done():
				return
			}
		}

		s.mu.Lock()
		current := s.gen == gen
		if current && reply.Err == nil {
			s.history = append(s.history,
				llm.Message{Role: llm.RoleUser, Content: message},
				llm.Message{Role: llm.RoleAssistant, Content: reply.Content},
			)
		}
		s.mu.Unlock()
		if !current {
			return
		}

		if reply.Content != "" {
			sink(session.Event{Kind: session.EventDelta, Delta: reply.Content})
		}
		if reply.Err != nil {
			sink(session.Event{Kind: session.EventFailed, Content: reply.Content, RecordID: "error-" + s.model, Err: reply.Err})
			return
		}
		sink(session.Event{Kind: session.EventCompleted, Content: reply.Content, RecordID: fmt.Sprintf("rec-%s", s.model)})
	}()
	return nil
}

// Messages returns a copy of the history.
func (s *FakeSession) Messages() []llm.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]llm.Message(nil), s.history...)
}

// Close marks the session closed.
func (s *FakeSession) Close() error {
	s.factory.log("close", s.model)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.gen++
	return nil
}
