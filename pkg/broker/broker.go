package broker

import "context"

// Broker fans published payloads out to channel subscribers. State
// broadcasts are published on session-key-scoped channels; in room
// mode a connector holds a per-user and a per-room subscription at the
// same time.
type Broker interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (Subscription, error)
	Close() error
}

// Subscription is one listener on a channel.
type Subscription interface {
	// Channel returns the stream of published payloads.
	Channel() <-chan []byte
	// Close unsubscribes and closes the stream.
	Close() error
}
