package backbone

import (
	"context"
	"testing"
	"time"
)

func TestMemoryExpiry(t *testing.T) {
	ctx := context.Background()
	b := NewMemory()

	if err := b.Set(ctx, "k", []byte("v"), 30*time.Millisecond); err != nil {
		t.Fatal(err)
	}
	if val, err := b.Get(ctx, "k"); err != nil || string(val) != "v" {
		t.Fatalf("expected live entry, got %q, %v", val, err)
	}

	time.Sleep(50 * time.Millisecond)

	if _, err := b.Get(ctx, "k"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound after TTL, got %v", err)
	}
}

func TestMemorySetIdempotent(t *testing.T) {
	ctx := context.Background()
	b := NewMemory()

	// Adding twice and removing a non-member are no-ops.
	b.SetAdd(ctx, "online", "alice")
	b.SetAdd(ctx, "online", "alice")
	b.SetRemove(ctx, "online", "ghost")

	if n, _ := b.SetCard(ctx, "online"); n != 1 {
		t.Fatalf("expected cardinality 1, got %d", n)
	}

	b.SetRemove(ctx, "online", "alice")
	b.SetRemove(ctx, "online", "alice")
	if n, _ := b.SetCard(ctx, "online"); n != 0 {
		t.Fatalf("expected cardinality 0, got %d", n)
	}
}

func TestMemoryPublishPatterns(t *testing.T) {
	ctx := context.Background()
	b := NewMemory()

	events, stop := b.Subscribe(ctx, "chat:user:*", "chat:presence")
	defer stop()

	b.Publish(ctx, "chat:user:alice", []byte("hello"))
	b.Publish(ctx, "chat:presence", []byte("online"))
	b.Publish(ctx, "unrelated", []byte("nope"))

	got := map[string]string{}
	for i := 0; i < 2; i++ {
		select {
		case ev := <-events:
			got[ev.Channel] = string(ev.Payload)
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for events")
		}
	}

	if got["chat:user:alice"] != "hello" || got["chat:presence"] != "online" {
		t.Fatalf("unexpected events: %v", got)
	}

	select {
	case ev := <-events:
		t.Fatalf("unexpected extra event on %s", ev.Channel)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestMemoryStopUnsubscribes(t *testing.T) {
	ctx := context.Background()
	b := NewMemory()

	events, stop := b.Subscribe(ctx, "ch")
	stop()

	if _, ok := <-events; ok {
		t.Fatal("expected closed channel after stop")
	}

	// Publishing after stop must not panic.
	b.Publish(ctx, "ch", []byte("x"))
}
