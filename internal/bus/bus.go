// Package bus is the broadcast channel transport for session control events.
// Delivery is best-effort: unordered across event types, at-most-once per
// send, no acknowledgment and no retry.
package bus

import (
	"context"
	"encoding/json"
)

// Message is the wire envelope for a single control event.
type Message struct {
	Type    string          `json:"type"`
	Sender  string          `json:"sender,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Subscription delivers messages for one topic until closed.
type Subscription interface {
	// C returns a read-only message channel. It is closed on Close.
	C() <-chan Message
	// Close unsubscribes.
	Close() error
}

// Bus is the event transport abstraction. Implementations must not block
// the publisher on slow subscribers; a full subscriber buffer drops the
// message instead.
type Bus interface {
	Publish(ctx context.Context, topic string, msg Message) error
	Subscribe(ctx context.Context, topic string) (Subscription, error)
}

// ControlTopic names the per-session control topic.
func ControlTopic(sessionID string) string {
	return "session_control_" + sessionID
}

const subscriberBuffer = 64
