// Package backbone provides the shared cache and publish/subscribe
// service used to coordinate server processes: TTL'd key-value entries,
// membership sets, and cross-process event channels.
package backbone

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get when a key is absent or expired.
var ErrNotFound = errors.New("backbone: key not found")

// ErrUnavailable is returned by Get when the backbone has given up on
// cross-process coordination, so key absence cannot be established.
var ErrUnavailable = errors.New("backbone: unavailable")

// Event is a single message received from a subscribed channel.
type Event struct {
	Channel string
	Payload []byte
}

// Backbone is the cross-process coordination contract.
// Implementations must make every operation idempotent or
// duplicate-tolerant; callers never rely on delivery guarantees
// stronger than at-most-once.
type Backbone interface {
	// Publish sends payload to all current subscribers of channel.
	Publish(ctx context.Context, channel string, payload []byte) error

	// Subscribe returns a stream of events for the given channel
	// patterns (a trailing '*' matches any suffix). The returned stop
	// function unsubscribes and closes the stream.
	Subscribe(ctx context.Context, patterns ...string) (<-chan Event, func())

	// Key-value with expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error

	// Membership sets.
	SetAdd(ctx context.Context, set, member string) error
	SetRemove(ctx context.Context, set, member string) error
	SetIsMember(ctx context.Context, set, member string) (bool, error)
	SetMembers(ctx context.Context, set string) ([]string, error)
	SetCard(ctx context.Context, set string) (int64, error)

	Ping(ctx context.Context) error
	Close() error
}
