// Package bus provides event bus implementations for publishing chunk records
// and diagnostics downstream.
package bus

import (
	"context"
	"time"
)

// Handler is a function that handles events.
type Handler func(ctx context.Context, event Event) error

// Bus defines the interface for event bus implementations.
type Bus interface {
	// Publish publishes an event to a topic.
	Publish(ctx context.Context, topic string, event Event) error

	// Subscribe subscribes to events on a topic.
	Subscribe(ctx context.Context, topic string, handler Handler) error

	// Close closes the bus and releases resources.
	Close() error
}

// Event represents a bus event.
type Event struct {
	// ID is the unique event identifier. Kafka uses it as the partition key.
	ID string `json:"id"`

	// Type is the event type (e.g., "chunk.record", "chunk.diagnostic").
	Type string `json:"type"`

	// Source is the component that generated the event.
	Source string `json:"source"`

	// Timestamp is when the event was created, in Unix milliseconds.
	Timestamp int64 `json:"timestamp"`

	// Payload contains the event data.
	Payload any `json:"payload"`
}

// NewEvent creates an event stamped with the current time.
func NewEvent(id, eventType, source string, payload any) Event {
	return Event{
		ID:        id,
		Type:      eventType,
		Source:    source,
		Timestamp: time.Now().UnixMilli(),
		Payload:   payload,
	}
}

// Topics.
const (
	TopicChunks      = "index.chunks"
	TopicDiagnostics = "index.diagnostic"
)

// Event types.
const (
	TypeChunkRecord  = "chunk.record"
	TypeChunkRemoved = "chunk.removed"
	TypeDiagnostic   = "chunk.diagnostic"
)
