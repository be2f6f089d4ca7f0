// Package messagequeue defines the message queue port (interface).
package messagequeue

import "context"

// Handler processes a message received from the queue.
type Handler func(ctx context.Context, subject string, data []byte) error

// Queue is the port interface for publishing and subscribing to messages.
type Queue interface {
	// Publish sends a message to the given subject.
	Publish(ctx context.Context, subject string, data []byte) error

	// Subscribe registers a handler for messages on the given subject.
	// The returned function cancels the subscription.
	Subscribe(ctx context.Context, subject string, handler Handler) (cancel func(), err error)

	// Drain gracefully drains all subscriptions before closing.
	Drain() error

	// Close shuts down the queue connection immediately.
	Close() error

	// IsConnected reports whether the queue is currently connected.
	IsConnected() bool
}

// Subject patterns for the engine transport. Each session gets its own pair
// of subjects derived from its id.
const (
	// SubjectSessionStart announces a new engine connection with its config.
	SubjectSessionStart = "sessions.start"

	// SubjectSessionPromptPrefix + sessionID carries inbound user prompts.
	SubjectSessionPromptPrefix = "sessions.prompt."

	// SubjectSessionEventsPrefix + sessionID carries raw engine events back.
	SubjectSessionEventsPrefix = "sessions.events."

	// SubjectSessionClosePrefix + sessionID tells the engine worker to tear
	// down the connection.
	SubjectSessionClosePrefix = "sessions.close."
)
