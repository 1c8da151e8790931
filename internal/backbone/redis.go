package backbone

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/Dhruv-158/Backend-chatter/internal/metrics"
)

const (
	// maxReconnects is the hard ceiling on subscribe-loop reconnect
	// attempts. Beyond it the process runs in degraded single-process
	// mode: no cross-process relay, presence local-only.
	maxReconnects = 10

	reconnectBaseDelay = 500 * time.Millisecond
	reconnectMaxDelay  = 30 * time.Second
)

// Redis implements Backbone on a Redis server.
type Redis struct {
	client   *redis.Client
	logger   zerolog.Logger
	degraded atomic.Bool
}

// NewRedis connects to Redis and returns a Backbone backed by it.
func NewRedis(ctx context.Context, redisURL string, logger zerolog.Logger) (*Redis, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	// Bounded per-operation retry with a capped delay.
	opts.MaxRetries = 3
	opts.MinRetryBackoff = 50 * time.Millisecond
	opts.MaxRetryBackoff = 2 * time.Second

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &Redis{client: client, logger: logger}, nil
}

// Degraded reports whether the backbone has given up on cross-process
// coordination for the remainder of the process lifetime.
func (b *Redis) Degraded() bool {
	return b.degraded.Load()
}

// Close closes the Redis connection.
func (b *Redis) Close() error {
	return b.client.Close()
}

// Ping checks the Redis connection.
func (b *Redis) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

// Publish sends payload to all subscribers of channel.
func (b *Redis) Publish(ctx context.Context, channel string, payload []byte) error {
	if b.degraded.Load() {
		return nil
	}
	start := time.Now()
	err := b.client.Publish(ctx, channel, payload).Err()
	metrics.RedisLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.BackbonePublishErrors.Inc()
	}
	return err
}

// Subscribe consumes the given channel patterns until stop is called or
// the reconnect ceiling is reached.
func (b *Redis) Subscribe(ctx context.Context, patterns ...string) (<-chan Event, func()) {
	events := make(chan Event, 256)
	subCtx, cancel := context.WithCancel(ctx)

	go b.subscribeLoop(subCtx, patterns, events)

	return events, cancel
}

func (b *Redis) subscribeLoop(ctx context.Context, patterns []string, events chan<- Event) {
	defer close(events)

	attempts := 0
	for {
		if ctx.Err() != nil {
			return
		}

		pubsub := b.client.PSubscribe(ctx, patterns...)
		ch := pubsub.Channel()

		// Reset the attempt counter once a subscription delivers.
		delivered := false
		for msg := range ch {
			delivered = true
			select {
			case events <- Event{Channel: msg.Channel, Payload: []byte(msg.Payload)}:
			default:
				// Consumer stalled; drop rather than block the loop.
				// Every event is duplicate/loss tolerant.
				metrics.BackboneDroppedEvents.Inc()
			}
		}
		_ = pubsub.Close()

		if ctx.Err() != nil {
			return
		}
		if delivered {
			attempts = 0
		}

		attempts++
		if attempts > maxReconnects {
			b.degraded.Store(true)
			b.logger.Error().
				Int("attempts", attempts-1).
				Msg("backbone unreachable, entering degraded single-process mode")
			return
		}

		delay := reconnectBaseDelay << uint(attempts-1)
		if delay > reconnectMaxDelay {
			delay = reconnectMaxDelay
		}
		b.logger.Warn().
			Int("attempt", attempts).
			Dur("retry_in", delay).
			Msg("backbone subscription lost, reconnecting")

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return
		}
	}
}

// Set stores value under key with the given TTL.
func (b *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if b.degraded.Load() {
		return nil
	}
	return b.client.Set(ctx, key, value, ttl).Err()
}

// Get retrieves the value stored under key. In degraded mode it
// reports ErrUnavailable rather than ErrNotFound: absence cannot be
// distinguished from unreachability, and some callers treat the two
// differently.
func (b *Redis) Get(ctx context.Context, key string) ([]byte, error) {
	if b.degraded.Load() {
		return nil, ErrUnavailable
	}
	val, err := b.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	return val, err
}

// Delete removes key. Deleting an absent key is a no-op.
func (b *Redis) Delete(ctx context.Context, key string) error {
	if b.degraded.Load() {
		return nil
	}
	return b.client.Del(ctx, key).Err()
}

// SetAdd adds member to set. Adding twice is a no-op.
func (b *Redis) SetAdd(ctx context.Context, set, member string) error {
	if b.degraded.Load() {
		return nil
	}
	return b.client.SAdd(ctx, set, member).Err()
}

// SetRemove removes member from set. Removing a non-member is a no-op.
func (b *Redis) SetRemove(ctx context.Context, set, member string) error {
	if b.degraded.Load() {
		return nil
	}
	return b.client.SRem(ctx, set, member).Err()
}

// SetIsMember reports whether member is in set.
func (b *Redis) SetIsMember(ctx context.Context, set, member string) (bool, error) {
	if b.degraded.Load() {
		return false, nil
	}
	return b.client.SIsMember(ctx, set, member).Result()
}

// SetMembers returns all members of set.
func (b *Redis) SetMembers(ctx context.Context, set string) ([]string, error) {
	if b.degraded.Load() {
		return nil, nil
	}
	return b.client.SMembers(ctx, set).Result()
}

// SetCard returns the number of members in set.
func (b *Redis) SetCard(ctx context.Context, set string) (int64, error) {
	if b.degraded.Load() {
		return 0, nil
	}
	return b.client.SCard(ctx, set).Result()
}
