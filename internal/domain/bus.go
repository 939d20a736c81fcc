package domain

import (
	"context"
)

// EventBus defines the interface for event-driven communication.
// Supports Go channels (Community) or NATS (Pro).
// All methods require a scope so sessions never see each other's events.
type EventBus interface {
	// Publish sends a message to a topic.
	Publish(ctx context.Context, scope string, topic string, payload []byte) error

	// Subscribe registers a handler for a topic.
	// Returns a subscription that can be used to unsubscribe.
	Subscribe(ctx context.Context, scope string, topic string, handler MessageHandler) (Subscription, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// MessageHandler processes incoming messages.
type MessageHandler func(ctx context.Context, msg *Message) error

// Message represents an event message.
type Message struct {
	ID        string            `json:"id"`
	Scope     string            `json:"scope"`
	Topic     string            `json:"topic"`
	Payload   []byte            `json:"payload"`
	Metadata  map[string]string `json:"metadata"`
	Timestamp int64             `json:"timestamp"`
}

// Subscription represents an active subscription.
type Subscription interface {
	// Unsubscribe stops receiving messages.
	Unsubscribe() error

	// Topic returns the subscribed topic.
	Topic() string
}

// EventBusConfig holds configuration for event bus initialization.
type EventBusConfig struct {
	// Type is the bus type: "channel" or "nats"
	Type string

	// Channel settings (Community tier)
	ChannelBufferSize int

	// NATS settings (Pro tier)
	NATSUrl           string
	NATSToken         string
	NATSMaxReconnects int
	NATSReconnectWait int // seconds
}

// Topic names published by the session service and the views.
// On NATS they become subjects of the form riskview.<scope>.<topic>.
const (
	TopicSessionStarted    = "session.started"
	TopicSessionEnded      = "session.ended"
	TopicSnapshotRefreshed = "snapshot.refreshed"
	TopicFetchFailed       = "snapshot.failed"

	// Published by the development backend's scoring pipeline
	TopicTransactionIngested = "transaction.ingested"
	TopicTransactionScored   = "transaction.scored"
)

// SnapshotEvent is the payload of snapshot topics.
type SnapshotEvent struct {
	View     string `json:"view"`
	Sequence uint64 `json:"sequence"`
	Records  int    `json:"records,omitempty"`
	Error    string `json:"error,omitempty"`
}

// SessionEvent is the payload of session topics.
type SessionEvent struct {
	Email string `json:"email,omitempty"`
	At    int64  `json:"at"`
}

// TransactionEvent is the payload of transaction topics.
type TransactionEvent struct {
	ID       int64    `json:"id"`
	TraceID  string   `json:"traceId,omitempty"`
	Decision Decision `json:"decision,omitempty"`
	Score    float64  `json:"score,omitempty"`
}
