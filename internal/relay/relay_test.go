package relay

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dhruv-158/Backend-chatter/internal/backbone"
	"github.com/Dhruv-158/Backend-chatter/internal/conversation"
	"github.com/Dhruv-158/Backend-chatter/internal/models"
	"github.com/Dhruv-158/Backend-chatter/internal/presence"
	"github.com/Dhruv-158/Backend-chatter/internal/store/storetest"
)

// sentEvent is one delivery recorded by fakeSender.
type sentEvent struct {
	UserID string // empty for broadcasts
	Event  string
	Data   interface{}
}

// fakeSender records deliveries in place of the gateway hub.
type fakeSender struct {
	mu     sync.Mutex
	events []sentEvent
}

func (f *fakeSender) SendToUser(userID, event string, data interface{}) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, sentEvent{UserID: userID, Event: event, Data: data})
	return true
}

func (f *fakeSender) Broadcast(event string, data interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, sentEvent{Event: event, Data: data})
}

func (f *fakeSender) snapshot() []sentEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentEvent(nil), f.events...)
}

// waitFor returns the first event matching name, waiting briefly for
// cross-goroutine delivery.
func (f *fakeSender) waitFor(t *testing.T, event string) sentEvent {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		for _, ev := range f.snapshot() {
			if ev.Event == event {
				return ev
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("no %q event delivered", event)
	return sentEvent{}
}

type fixture struct {
	relay    *Relay
	local    *fakeSender
	backbone *backbone.Memory
	store    *storetest.Store
	sender   *models.User
	receiver *models.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mem := backbone.NewMemory()
	t.Cleanup(func() { mem.Close() })

	ds := storetest.New()
	sender := ds.AddUser("alice")
	receiver := ds.AddUser("bob")
	ds.Befriend(sender.ID, receiver.ID)

	local := &fakeSender{}
	reg := presence.NewRegistry(mem, 5*time.Second, zerolog.Nop())
	return &fixture{
		relay:    New(local, mem, ds, reg, nil, time.Hour, zerolog.Nop()),
		local:    local,
		backbone: mem,
		store:    ds,
		sender:   sender,
		receiver: receiver,
	}
}

func (f *fixture) seedMessage(t *testing.T, body string) *models.Message {
	t.Helper()
	msg := &models.Message{
		ID:             ulid.Make().String(),
		ConversationID: conversation.ID(f.sender.ID.String(), f.receiver.ID.String()),
		SenderID:       f.sender.ID.String(),
		ReceiverID:     f.receiver.ID.String(),
		Type:           models.MessageText,
		Body:           body,
		CreatedAt:      time.Now(),
	}
	require.NoError(t, f.store.CreateMessage(context.Background(), msg))
	return msg
}

func TestMessageSentDeliversToReceiver(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	msg := f.seedMessage(t, "hello")

	require.NoError(t, f.relay.MessageSent(ctx, msg.ID))

	ev := f.local.waitFor(t, EventReceiveMessage)
	assert.Equal(t, f.receiver.ID.String(), ev.UserID)
	delivered, ok := ev.Data.(*models.Message)
	require.True(t, ok)
	assert.Equal(t, "hello", delivered.Body)
}

func TestMessageSentRepopulatesCache(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	msg := f.seedMessage(t, "hello")

	// Not cached yet: the relay falls back to the store and writes
	// the cache entry on the way out.
	_, err := f.backbone.Get(ctx, "message:"+msg.ID)
	require.ErrorIs(t, err, backbone.ErrNotFound)

	require.NoError(t, f.relay.MessageSent(ctx, msg.ID))

	data, err := f.backbone.Get(ctx, "message:"+msg.ID)
	require.NoError(t, err)
	var cached models.Message
	require.NoError(t, json.Unmarshal(data, &cached))
	assert.Equal(t, msg.ID, cached.ID)
}

func TestMessageSentUnknownMessage(t *testing.T) {
	f := newFixture(t)
	err := f.relay.MessageSent(context.Background(), ulid.Make().String())
	assert.ErrorIs(t, err, ErrMessageNotFound)
}

func TestMessageSentSkipsDeleted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	msg := f.seedMessage(t, "hello")
	_, err := f.store.SoftDeleteMessage(ctx, msg.ID, f.sender.ID)
	require.NoError(t, err)

	assert.ErrorIs(t, f.relay.MessageSent(ctx, msg.ID), ErrMessageNotFound)
	assert.Empty(t, f.local.snapshot())
}

func TestMessageReadNotifiesSenderOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	msg := f.seedMessage(t, "hello")

	require.NoError(t, f.relay.MessageRead(ctx, f.receiver.ID, msg.ID))

	ev := f.local.waitFor(t, EventMessageRead)
	assert.Equal(t, f.sender.ID.String(), ev.UserID)
	payload, ok := ev.Data.(ReadPayload)
	require.True(t, ok)
	assert.Equal(t, msg.ID, payload.MessageID)
	assert.NotZero(t, payload.ReadAt)

	// Marking again is a no-op: no second event, readAt unchanged.
	before := f.local.snapshot()
	require.NoError(t, f.relay.MessageRead(ctx, f.receiver.ID, msg.ID))
	assert.Equal(t, before, f.local.snapshot())

	stored, err := f.store.GetMessage(ctx, msg.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.ReadAt)
	assert.Equal(t, payload.ReadAt, stored.ReadAt.UnixMilli())
}

func TestMessageReadRejectsNonReceiver(t *testing.T) {
	f := newFixture(t)
	msg := f.seedMessage(t, "hello")

	err := f.relay.MessageRead(context.Background(), f.sender.ID, msg.ID)
	assert.ErrorIs(t, err, ErrNotReceiver)
	assert.Empty(t, f.local.snapshot())
}

func TestMessageDeletedNotifiesReceiverAndDropsCache(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	msg := f.seedMessage(t, "hello")
	f.relay.CacheMessage(ctx, msg)

	require.NoError(t, f.relay.MessageDeleted(ctx, f.sender.ID, msg.ID))

	_, err := f.backbone.Get(ctx, "message:"+msg.ID)
	assert.ErrorIs(t, err, backbone.ErrNotFound)

	ev := f.local.waitFor(t, EventMessageDeleted)
	assert.Equal(t, f.receiver.ID.String(), ev.UserID)
	payload, ok := ev.Data.(DeletedPayload)
	require.True(t, ok)
	assert.Equal(t, msg.ID, payload.MessageID)

	stored, err := f.store.GetMessageMeta(ctx, msg.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsDeleted)
}

func TestMessageDeletedRejectsNonSender(t *testing.T) {
	f := newFixture(t)
	msg := f.seedMessage(t, "hello")

	err := f.relay.MessageDeleted(context.Background(), f.receiver.ID, msg.ID)
	assert.ErrorIs(t, err, ErrNotSender)

	// Deleting twice is rejected the same way.
	require.NoError(t, f.relay.MessageDeleted(context.Background(), f.sender.ID, msg.ID))
	err = f.relay.MessageDeleted(context.Background(), f.sender.ID, msg.ID)
	assert.ErrorIs(t, err, ErrNotSender)
}

func TestTypingEventsReachFriend(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	convID := conversation.ID(f.sender.ID.String(), f.receiver.ID.String())

	f.relay.TypingStart(ctx, convID, f.sender.ID.String(), f.sender.Username, f.receiver.ID.String())
	ev := f.local.waitFor(t, EventTypingStart)
	assert.Equal(t, f.receiver.ID.String(), ev.UserID)
	payload := ev.Data.(TypingPayload)
	assert.Equal(t, f.sender.Username, payload.Username)
	assert.True(t, f.relay.presence.IsTyping(ctx, convID, f.sender.ID.String()))

	f.relay.TypingStop(ctx, convID, f.sender.ID.String(), f.receiver.ID.String())
	f.local.waitFor(t, EventTypingStop)
	assert.False(t, f.relay.presence.IsTyping(ctx, convID, f.sender.ID.String()))
}

func TestPresenceBroadcasts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.relay.UserOnline(ctx, f.sender.ID.String())
	ev := f.local.waitFor(t, EventUserOnline)
	assert.Empty(t, ev.UserID) // broadcast, not per-user

	f.relay.UserOffline(ctx, f.sender.ID.String())
	f.local.waitFor(t, EventUserOffline)
}

// Two relays share a backbone, standing in for two server processes.
// An event relayed on one process must reach the other's connections
// exactly once, and must not be re-delivered to its own.
func TestCrossProcessRelay(t *testing.T) {
	mem := backbone.NewMemory()
	defer mem.Close()

	ds := storetest.New()
	sender := ds.AddUser("alice")
	receiver := ds.AddUser("bob")
	ds.Befriend(sender.ID, receiver.ID)

	localA := &fakeSender{}
	localB := &fakeSender{}
	regA := presence.NewRegistry(mem, 5*time.Second, zerolog.Nop())
	regB := presence.NewRegistry(mem, 5*time.Second, zerolog.Nop())
	relayA := New(localA, mem, ds, regA, nil, time.Hour, zerolog.Nop())
	relayB := New(localB, mem, ds, regB, nil, time.Hour, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go relayA.Run(ctx)
	go relayB.Run(ctx)
	time.Sleep(20 * time.Millisecond) // let the subscriptions attach

	msg := &models.Message{
		ID:             ulid.Make().String(),
		ConversationID: conversation.ID(sender.ID.String(), receiver.ID.String()),
		SenderID:       sender.ID.String(),
		ReceiverID:     receiver.ID.String(),
		Type:           models.MessageText,
		Body:           "hello from A",
		CreatedAt:      time.Now(),
	}
	require.NoError(t, ds.CreateMessage(ctx, msg))

	require.NoError(t, relayA.MessageSent(ctx, msg.ID))

	// Process B receives the publication and hands it to its hub.
	evB := localB.waitFor(t, EventReceiveMessage)
	assert.Equal(t, receiver.ID.String(), evB.UserID)
	raw, ok := evB.Data.(json.RawMessage)
	require.True(t, ok)
	var delivered models.Message
	require.NoError(t, json.Unmarshal(raw, &delivered))
	assert.Equal(t, "hello from A", delivered.Body)

	// Process A delivered locally exactly once; its own publication
	// is skipped on the way back.
	time.Sleep(50 * time.Millisecond)
	var countA int
	for _, ev := range localA.snapshot() {
		if ev.Event == EventReceiveMessage {
			countA++
		}
	}
	assert.Equal(t, 1, countA)

	// Broadcasts cross processes the same way.
	relayB.UserOnline(ctx, receiver.ID.String())
	localA.waitFor(t, EventUserOnline)
}
