// Package session provides streaming conversations with a single model.
package session

import (
	"context"
	"errors"

	"github.com/giantswarm/llm-judge/internal/llm"
)

var (
	// ErrClosed is returned when using a closed session.
	ErrClosed = errors.New("session closed")
	// ErrBusy is returned when Send is called while a reply is streaming.
	ErrBusy = errors.New("session busy")
)

// EventKind identifies a streaming event.
type EventKind int

const (
	// EventDelta carries a chunk of the assistant reply.
	EventDelta EventKind = iota
	// EventCompleted is emitted once the reply finished streaming.
	EventCompleted
	// EventFailed is emitted when the reply could not be completed.
	EventFailed
)

func (k EventKind) String() string {
	switch k {
	case EventDelta:
		return "delta"
	case EventCompleted:
		return "completed"
	case EventFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Event is emitted by a session while it streams a reply. Delta events
// carry only the new chunk. Content is the full reply and RecordID
// identifies it; both are set for terminal events.
type Event struct {
	Kind     EventKind
	Delta    string
	Content  string
	RecordID string
	Err      error
}

// Terminal reports whether no further events follow for this send.
func (e Event) Terminal() bool {
	return e.Kind == EventCompleted || e.Kind == EventFailed
}

// Sink receives session events. It is called from the streaming goroutine.
type Sink func(Event)

// Session is a conversation with one model.
type Session interface {
	// Model returns the API model identifier the session talks to.
	Model() string
	// Reset cancels any in-flight reply and clears the history. It returns
	// once the session is idle; events of the cancelled reply are dropped.
	Reset(ctx context.Context) error
	// Send appends message to the conversation and streams the reply to
	// sink. It returns once streaming has started; exactly one terminal
	// event follows unless the session is reset or closed first.
	Send(ctx context.Context, message string, sink Sink) error
	// Messages returns a copy of the conversation history.
	Messages() []llm.Message
	// Close resets the session and releases it.
	Close() error
}

// Factory creates sessions.
type Factory interface {
	New(model string) (Session, error)
}
