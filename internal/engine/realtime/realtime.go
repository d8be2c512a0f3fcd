// Package realtime defines the change-notification channel API used to
// keep dashboard data live, plus the Redis and in-memory backends.
package realtime

import "context"

// Standard change event names. EventAll subscribes to every event on a
// channel.
const (
	EventAll    = "*"
	EventInsert = "INSERT"
	EventUpdate = "UPDATE"
	EventDelete = "DELETE"
)

// Message is one change notification delivered on a channel.
type Message struct {
	Event string         `json:"event"`
	Table string         `json:"table"`
	Row   map[string]any `json:"row,omitempty"`
}

// Handler consumes change notifications. Handlers must not block; slow
// work should be scheduled elsewhere.
type Handler func(Message)

// Handle is an active subscription. Unsubscribe is idempotent.
type Handle interface {
	Unsubscribe() error
}

// Channel is a named change-notification channel under construction.
// On registers a handler for an event and returns the channel for
// chaining; Subscribe opens the channel.
type Channel interface {
	On(event string, h Handler) Channel
	Subscribe(ctx context.Context) (Handle, error)
}

// Client creates channels and publishes change notifications.
type Client interface {
	Channel(name string) Channel
	Publish(ctx context.Context, name string, msg Message) error
	Close() error
}

// UserChannel returns the per-user channel name for a watched table,
// e.g. "changes:applications:01J...".
func UserChannel(table, userID string) string {
	return "changes:" + table + ":" + userID
}
