// Package broadcast fans order-number claim announcements out to every
// counter replica, so peers can fast-forward their local counters
// without waiting to collide on the shared one.
package broadcast

import "context"

// TypeClaimed is the only message type on the claim channel today.
const TypeClaimed = "claimed"

// Message is one claim announcement.
type Message struct {
	Type   string `json:"type"`
	Number int64  `json:"number"`
}

// Broadcaster publishes and receives claim announcements. Subscribe
// delivers messages until the context is canceled; delivery is
// best-effort, peers that miss a message recover on their next
// counter collision.
type Broadcaster interface {
	Publish(ctx context.Context, msg Message) error
	Subscribe(ctx context.Context, handler func(Message)) error
}
