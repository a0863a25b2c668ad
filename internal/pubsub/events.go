// Package pubsub provides a generic publish/subscribe event system used to
// carry background results (enrichment, search progress, log entries,
// repository changes) into the Bubble Tea update loop.
package pubsub

import (
	"context"
	"time"
)

// EventType represents the type of event being published.
type EventType string

const (
	// ResolvedEvent carries a finished background computation.
	ResolvedEvent EventType = "resolved"
	// ProgressEvent carries an intermediate progress report.
	ProgressEvent EventType = "progress"
	// ChangedEvent signals that watched state changed on disk.
	ChangedEvent EventType = "changed"
	// LoggedEvent carries a log entry.
	LoggedEvent EventType = "logged"
)

// Event represents a published event with a typed payload.
type Event[T any] struct {
	Type      EventType
	Payload   T
	Timestamp time.Time
}

// Subscriber provides a subscription channel for events.
type Subscriber[T any] interface {
	Subscribe(ctx context.Context) <-chan Event[T]
}

// Publisher allows publishing events with a typed payload.
type Publisher[T any] interface {
	Publish(eventType EventType, payload T)
}
