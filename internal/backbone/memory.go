package backbone

import (
	"context"
	"strings"
	"sync"
	"time"
)

// Memory implements Backbone in process memory. It is the development
// fallback when no Redis is configured, and the test double. Expiry is
// checked lazily on read, so no sweeper goroutine is needed.
type Memory struct {
	mu     sync.Mutex
	kv     map[string]memoryEntry
	sets   map[string]map[string]struct{}
	subs   []*memorySub
	closed bool
}

type memoryEntry struct {
	value    []byte
	deadline time.Time // zero means no expiry
}

type memorySub struct {
	patterns []string
	events   chan Event
}

// NewMemory creates an empty in-memory backbone.
func NewMemory() *Memory {
	return &Memory{
		kv:   make(map[string]memoryEntry),
		sets: make(map[string]map[string]struct{}),
	}
}

func (b *Memory) Ping(ctx context.Context) error { return nil }

// Close drops all subscribers.
func (b *Memory) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for _, sub := range b.subs {
		close(sub.events)
	}
	b.subs = nil
	return nil
}

// matchPattern reports whether channel matches pattern, where a
// trailing '*' matches any suffix.
func matchPattern(pattern, channel string) bool {
	if prefix, ok := strings.CutSuffix(pattern, "*"); ok {
		return strings.HasPrefix(channel, prefix)
	}
	return pattern == channel
}

// Publish delivers payload to matching subscribers without blocking.
func (b *Memory) Publish(ctx context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, sub := range b.subs {
		for _, pattern := range sub.patterns {
			if matchPattern(pattern, channel) {
				select {
				case sub.events <- Event{Channel: channel, Payload: payload}:
				default:
				}
				break
			}
		}
	}
	return nil
}

// Subscribe registers a subscriber for the given patterns.
func (b *Memory) Subscribe(ctx context.Context, patterns ...string) (<-chan Event, func()) {
	sub := &memorySub{patterns: patterns, events: make(chan Event, 256)}

	b.mu.Lock()
	b.subs = append(b.subs, sub)
	b.mu.Unlock()

	var once sync.Once
	stop := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			for i, s := range b.subs {
				if s == sub {
					b.subs = append(b.subs[:i], b.subs[i+1:]...)
					close(sub.events)
					break
				}
			}
		})
	}
	return sub.events, stop
}

// Set stores value under key with the given TTL (0 means no expiry).
func (b *Memory) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	entry := memoryEntry{value: value}
	if ttl > 0 {
		entry.deadline = time.Now().Add(ttl)
	}
	b.kv[key] = entry
	return nil
}

// Get retrieves the value stored under key, expiring it lazily.
func (b *Memory) Get(ctx context.Context, key string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	entry, ok := b.kv[key]
	if !ok {
		return nil, ErrNotFound
	}
	if !entry.deadline.IsZero() && time.Now().After(entry.deadline) {
		delete(b.kv, key)
		return nil, ErrNotFound
	}
	return entry.value, nil
}

// Delete removes key.
func (b *Memory) Delete(ctx context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.kv, key)
	return nil
}

// SetAdd adds member to set.
func (b *Memory) SetAdd(ctx context.Context, set, member string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sets[set] == nil {
		b.sets[set] = make(map[string]struct{})
	}
	b.sets[set][member] = struct{}{}
	return nil
}

// SetRemove removes member from set.
func (b *Memory) SetRemove(ctx context.Context, set, member string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if members, ok := b.sets[set]; ok {
		delete(members, member)
		if len(members) == 0 {
			delete(b.sets, set)
		}
	}
	return nil
}

// SetIsMember reports whether member is in set.
func (b *Memory) SetIsMember(ctx context.Context, set, member string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.sets[set][member]
	return ok, nil
}

// SetMembers returns all members of set.
func (b *Memory) SetMembers(ctx context.Context, set string) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	members := make([]string, 0, len(b.sets[set]))
	for m := range b.sets[set] {
		members = append(members, m)
	}
	return members, nil
}

// SetCard returns the number of members in set.
func (b *Memory) SetCard(ctx context.Context, set string) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return int64(len(b.sets[set])), nil
}
