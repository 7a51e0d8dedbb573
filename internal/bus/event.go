package bus

import "time"

// Event represents a domain event published on the bus.
//
// Kinds are dot-namespaced so subscribers can filter by prefix:
// "chat.message", "chat.receipt", "chat.history", "conv.typing",
// "conv.read", "conv.snapshot", "presence.changed", "match.found",
// "push.connected", "push.disconnected", "session.status_changed",
// "cache.message_upserted". The payload type is owned by whichever
// package publishes the kind.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}
