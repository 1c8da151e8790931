package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dhruv-158/Backend-chatter/internal/auth"
	"github.com/Dhruv-158/Backend-chatter/internal/backbone"
	"github.com/Dhruv-158/Backend-chatter/internal/conversation"
	"github.com/Dhruv-158/Backend-chatter/internal/models"
	"github.com/Dhruv-158/Backend-chatter/internal/presence"
	"github.com/Dhruv-158/Backend-chatter/internal/relay"
	"github.com/Dhruv-158/Backend-chatter/internal/store/storetest"
)

type testEnv struct {
	server *httptest.Server
	store  *storetest.Store
	auth   *auth.Authenticator
	hub    *Hub
	reg    *presence.Registry
	alice  *models.User
	bob    *models.User
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	mem := backbone.NewMemory()
	t.Cleanup(func() { mem.Close() })

	ds := storetest.New()
	alice := ds.AddUser("alice")
	bob := ds.AddUser("bob")
	ds.Befriend(alice.ID, bob.ID)

	a := auth.NewAuthenticator("test-secret", ds, mem, time.Hour, 24*time.Hour)
	reg := presence.NewRegistry(mem, 5*time.Second, zerolog.Nop())
	hub := NewHub()
	rl := relay.New(hub, mem, ds, reg, nil, time.Hour, zerolog.Nop())
	gw := New(hub, rl, reg, a, ds, zerolog.Nop())

	server := httptest.NewServer(http.HandlerFunc(gw.HandleWS))
	t.Cleanup(server.Close)

	return &testEnv{server: server, store: ds, auth: a, hub: hub, reg: reg, alice: alice, bob: bob}
}

func (e *testEnv) token(t *testing.T, user *models.User) string {
	t.Helper()
	pair, err := e.auth.IssuePair(context.Background(), user.ID)
	require.NoError(t, err)
	return pair.AccessToken
}

func (e *testEnv) dial(t *testing.T, user *models.User) *websocket.Conn {
	t.Helper()
	url := strings.Replace(e.server.URL, "http", "ws", 1) + "/?token=" + e.token(t, user)
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// waitFrame reads frames until one matches event, skipping interleaved
// presence traffic.
func waitFrame(t *testing.T, conn *websocket.Conn, event string) Frame {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		var frame Frame
		if err := conn.ReadJSON(&frame); err != nil {
			t.Fatalf("waiting for %q: %v", event, err)
		}
		if frame.Event == event {
			return frame
		}
	}
}

func sendFrame(t *testing.T, conn *websocket.Conn, event string, data interface{}) {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(Frame{Event: event, Data: raw}))
}

func TestHandshakeRejectsMissingToken(t *testing.T) {
	e := newTestEnv(t)
	resp, err := http.Get(e.server.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHandshakeRejectsBadToken(t *testing.T) {
	e := newTestEnv(t)
	resp, err := http.Get(e.server.URL + "/?token=garbage")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestConnectDeliversOnlineSnapshot(t *testing.T) {
	e := newTestEnv(t)
	conn := e.dial(t, e.alice)

	frame := waitFrame(t, conn, relay.EventOnlineUsers)
	var payload relay.OnlineUsersPayload
	require.NoError(t, json.Unmarshal(frame.Data, &payload))
	assert.Contains(t, payload.Users, e.alice.ID.String())
}

func TestConnectAnnouncesPresenceToOthers(t *testing.T) {
	e := newTestEnv(t)
	aliceConn := e.dial(t, e.alice)
	waitFrame(t, aliceConn, relay.EventOnlineUsers)

	e.dial(t, e.bob)

	frame := waitFrame(t, aliceConn, relay.EventUserOnline)
	var payload relay.PresencePayload
	require.NoError(t, json.Unmarshal(frame.Data, &payload))
	assert.Equal(t, e.bob.ID.String(), payload.UserID)
}

func TestJoinConversationRequiresFriendship(t *testing.T) {
	e := newTestEnv(t)
	stranger := e.store.AddUser("mallory")
	conn := e.dial(t, e.alice)
	waitFrame(t, conn, relay.EventOnlineUsers)

	sendFrame(t, conn, relay.EventJoinConversation, map[string]string{"friendId": stranger.ID.String()})
	frame := waitFrame(t, conn, relay.EventError)
	var errPayload relay.ErrorPayload
	require.NoError(t, json.Unmarshal(frame.Data, &errPayload))
	assert.Equal(t, "not friends with this user", errPayload.Message)

	sendFrame(t, conn, relay.EventJoinConversation, map[string]string{"friendId": e.bob.ID.String()})
	frame = waitFrame(t, conn, relay.EventConversationJoined)
	var joined struct {
		ConversationID string `json:"conversationId"`
	}
	require.NoError(t, json.Unmarshal(frame.Data, &joined))
	assert.Equal(t, conversation.ID(e.alice.ID.String(), e.bob.ID.String()), joined.ConversationID)
}

func TestTypingReachesFriend(t *testing.T) {
	e := newTestEnv(t)
	aliceConn := e.dial(t, e.alice)
	bobConn := e.dial(t, e.bob)
	waitFrame(t, aliceConn, relay.EventOnlineUsers)
	waitFrame(t, bobConn, relay.EventOnlineUsers)

	sendFrame(t, aliceConn, relay.EventTypingStart, map[string]string{"friendId": e.bob.ID.String()})

	frame := waitFrame(t, bobConn, relay.EventTypingStart)
	var payload relay.TypingPayload
	require.NoError(t, json.Unmarshal(frame.Data, &payload))
	assert.Equal(t, e.alice.ID.String(), payload.UserID)
	assert.Equal(t, "alice", payload.Username)

	sendFrame(t, aliceConn, relay.EventTypingStop, map[string]string{"friendId": e.bob.ID.String()})
	frame = waitFrame(t, bobConn, relay.EventTypingStop)
	var stopPayload relay.TypingPayload
	require.NoError(t, json.Unmarshal(frame.Data, &stopPayload))
	assert.Equal(t, e.alice.ID.String(), stopPayload.UserID)
	assert.Empty(t, stopPayload.Username)
}

func TestUnknownEventGetsScopedError(t *testing.T) {
	e := newTestEnv(t)
	conn := e.dial(t, e.alice)
	waitFrame(t, conn, relay.EventOnlineUsers)

	require.NoError(t, conn.WriteJSON(Frame{Event: "no-such-event"}))
	frame := waitFrame(t, conn, relay.EventError)
	var payload relay.ErrorPayload
	require.NoError(t, json.Unmarshal(frame.Data, &payload))
	assert.Contains(t, payload.Message, "no-such-event")
}

func TestHandshakeStoreFailureIsNotUnauthorized(t *testing.T) {
	e := newTestEnv(t)
	token := e.token(t, e.alice)
	e.store.FailWith = errors.New("store down")

	resp, err := http.Get(e.server.URL + "/?token=" + token)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestTypingRequiresFriendship(t *testing.T) {
	e := newTestEnv(t)
	stranger := e.store.AddUser("mallory")
	conn := e.dial(t, e.alice)
	waitFrame(t, conn, relay.EventOnlineUsers)

	sendFrame(t, conn, relay.EventTypingStart, map[string]string{"friendId": stranger.ID.String()})

	frame := waitFrame(t, conn, relay.EventError)
	var payload relay.ErrorPayload
	require.NoError(t, json.Unmarshal(frame.Data, &payload))
	assert.Equal(t, "not friends with this user", payload.Message)

	conv := conversation.ID(e.alice.ID.String(), stranger.ID.String())
	assert.False(t, e.reg.IsTyping(context.Background(), conv, e.alice.ID.String()))
}

func TestAbruptDisconnectClearsPresenceAndSession(t *testing.T) {
	e := newTestEnv(t)
	conn := e.dial(t, e.alice)
	waitFrame(t, conn, relay.EventOnlineUsers)

	ctx := context.Background()
	userID := e.alice.ID.String()
	require.NotNil(t, e.hub.Get(userID))
	require.True(t, e.reg.IsOnline(ctx, userID))

	// Sever the TCP connection without a close frame, as a crashed or
	// unplugged client would.
	require.NoError(t, conn.UnderlyingConn().Close())

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if e.hub.Get(userID) == nil && !e.reg.IsOnline(ctx, userID) {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("session or presence entry survived an abrupt disconnect")
}

func TestSecondConnectionReplacesFirst(t *testing.T) {
	e := newTestEnv(t)
	first := e.dial(t, e.alice)
	waitFrame(t, first, relay.EventOnlineUsers)

	second := e.dial(t, e.alice)
	waitFrame(t, second, relay.EventOnlineUsers)

	// The first connection is closed by the server.
	first.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		if _, _, err := first.ReadMessage(); err != nil {
			break
		}
	}

	// The replacement still works.
	sendFrame(t, second, relay.EventTypingStart, map[string]string{"friendId": e.bob.ID.String()})
	bobConn := e.dial(t, e.bob)
	waitFrame(t, bobConn, relay.EventOnlineUsers)
	sendFrame(t, second, relay.EventTypingStart, map[string]string{"friendId": e.bob.ID.String()})
	waitFrame(t, bobConn, relay.EventTypingStart)
}
