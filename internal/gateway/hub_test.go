package gateway

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dhruv-158/Backend-chatter/internal/models"
)

func testSession(t *testing.T, username string) *Session {
	t.Helper()
	return newSession(&models.User{ID: uuid.New(), Username: username}, nil)
}

func TestHubRegisterAndGet(t *testing.T) {
	hub := NewHub()
	s := testSession(t, "alice")

	replaced := hub.Register(s)
	assert.Nil(t, replaced)
	assert.Same(t, s, hub.Get(s.UserID))
	assert.Nil(t, hub.Get("nobody"))
}

func TestHubRegisterReplacesPriorSession(t *testing.T) {
	hub := NewHub()
	user := &models.User{ID: uuid.New(), Username: "alice"}
	first := newSession(user, nil)
	second := newSession(user, nil)

	require.Nil(t, hub.Register(first))
	replaced := hub.Register(second)

	assert.Same(t, first, replaced)
	assert.Same(t, second, hub.Get(user.ID.String()))
}

func TestHubUnregisterOnlyRemovesCurrentMapping(t *testing.T) {
	hub := NewHub()
	user := &models.User{ID: uuid.New(), Username: "alice"}
	first := newSession(user, nil)
	second := newSession(user, nil)

	hub.Register(first)
	hub.Register(second)

	// The replaced session's teardown must not evict its replacement.
	assert.False(t, hub.Unregister(first))
	assert.Same(t, second, hub.Get(user.ID.String()))

	assert.True(t, hub.Unregister(second))
	assert.Nil(t, hub.Get(user.ID.String()))
}

func TestHubCounts(t *testing.T) {
	hub := NewHub()
	a := testSession(t, "alice")
	b := testSession(t, "bob")

	hub.Register(a)
	hub.Register(b)

	current, peak, total := hub.Counts()
	assert.Equal(t, 2, current)
	assert.Equal(t, 2, peak)
	assert.Equal(t, 2, total)

	hub.Unregister(a)
	current, peak, total = hub.Counts()
	assert.Equal(t, 1, current)
	assert.Equal(t, 2, peak)
	assert.Equal(t, 2, total)
}

func TestHubSendToUser(t *testing.T) {
	hub := NewHub()
	s := testSession(t, "alice")
	hub.Register(s)

	assert.False(t, hub.SendToUser("nobody", "user-online", nil))
	require.True(t, hub.SendToUser(s.UserID, "user-online", map[string]string{"userId": "x"}))

	select {
	case raw := <-s.send:
		var frame Frame
		require.NoError(t, json.Unmarshal(raw, &frame))
		assert.Equal(t, "user-online", frame.Event)
	default:
		t.Fatal("expected a queued frame")
	}
}

func TestHubBroadcast(t *testing.T) {
	hub := NewHub()
	a := testSession(t, "alice")
	b := testSession(t, "bob")
	hub.Register(a)
	hub.Register(b)

	hub.Broadcast("user-offline", map[string]string{"userId": "x"})

	assert.Len(t, a.send, 1)
	assert.Len(t, b.send, 1)
}

func TestSessionSendAfterClose(t *testing.T) {
	s := testSession(t, "alice")
	require.True(t, s.Send("user-online", nil))

	s.close()
	assert.False(t, s.Send("user-online", nil))
}

func TestSessionRooms(t *testing.T) {
	s := testSession(t, "alice")

	assert.False(t, s.InRoom("a_b"))
	s.JoinRoom("a_b")
	s.JoinRoom("a_b")
	assert.True(t, s.InRoom("a_b"))
	assert.ElementsMatch(t, []string{"a_b"}, s.Rooms())

	s.LeaveRoom("a_b")
	s.LeaveRoom("a_b")
	assert.False(t, s.InRoom("a_b"))
}
