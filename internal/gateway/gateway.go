// Package gateway manages long-lived client connections: handshake
// authentication, the per-process session map, inbound event dispatch,
// and presence bookkeeping on connect and disconnect.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/Dhruv-158/Backend-chatter/internal/auth"
	"github.com/Dhruv-158/Backend-chatter/internal/conversation"
	"github.com/Dhruv-158/Backend-chatter/internal/metrics"
	"github.com/Dhruv-158/Backend-chatter/internal/presence"
	"github.com/Dhruv-158/Backend-chatter/internal/relay"
	"github.com/Dhruv-158/Backend-chatter/internal/store"
)

// handler processes one inbound event for a session.
type handler func(ctx context.Context, s *Session, data json.RawMessage) error

// Gateway is the central orchestrator of the realtime core.
type Gateway struct {
	hub      *Hub
	relay    *relay.Relay
	presence *presence.Registry
	auth     *auth.Authenticator
	store    store.DataStore
	logger   zerolog.Logger
	upgrader websocket.Upgrader
	handlers map[string]handler
}

// New creates a Gateway and wires its inbound-event dispatch table.
func New(hub *Hub, rl *relay.Relay, reg *presence.Registry, a *auth.Authenticator, ds store.DataStore, logger zerolog.Logger) *Gateway {
	g := &Gateway{
		hub:      hub,
		relay:    rl,
		presence: reg,
		auth:     a,
		store:    ds,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Browser clients connect from anywhere; auth is by token.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	g.handlers = map[string]handler{
		relay.EventJoinConversation:  g.handleJoinConversation,
		relay.EventLeaveConversation: g.handleLeaveConversation,
		relay.EventSendMessage:       g.handleSendMessage,
		relay.EventTypingStart:       g.handleTypingStart,
		relay.EventTypingStop:        g.handleTypingStop,
		relay.EventMarkAsRead:        g.handleMarkAsRead,
		relay.EventDeleteMessage:     g.handleDeleteMessage,
	}
	return g
}

// Hub exposes the session map for the health surface.
func (g *Gateway) Hub() *Hub {
	return g.hub
}

// bearerToken extracts the handshake credential from the query string
// or the Authorization header.
func bearerToken(r *http.Request) string {
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}
	header := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(header, "Bearer "); ok {
		return token
	}
	return ""
}

// HandleWS authenticates and upgrades a connection, then runs the
// session until disconnect. Authentication failures refuse the
// connection before the upgrade; nothing is mutated on failure.
func (g *Gateway) HandleWS(w http.ResponseWriter, r *http.Request) {
	user, err := g.auth.Authenticate(r.Context(), bearerToken(r))
	if err != nil {
		status := http.StatusUnauthorized
		reason := "invalid"
		switch {
		case errors.Is(err, auth.ErrMissingToken):
			reason = "missing"
		case errors.Is(err, auth.ErrUnknownUser):
			reason = "unknown_user"
		case errors.Is(err, auth.ErrInvalidToken):
		default:
			// The credential was never judged; the identity lookup
			// failed. Not a refusal the client can fix by re-logging-in.
			status = http.StatusServiceUnavailable
			reason = "store"
		}
		metrics.AuthFailures.WithLabelValues(reason).Inc()
		http.Error(w, err.Error(), status)
		return
	}

	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	s := newSession(user, conn)
	g.connect(r.Context(), s)

	go s.writePump()
	g.readPump(s)
}

// connect registers the session and runs the connect-time bookkeeping:
// presence registration, last-seen update, personal room membership,
// the user-online broadcast, and the online snapshot for the client.
func (g *Gateway) connect(ctx context.Context, s *Session) {
	if replaced := g.hub.Register(s); replaced != nil {
		replaced.close()
	}

	g.presence.Add(ctx, s.UserID)

	if id, err := uuid.Parse(s.UserID); err == nil {
		if err := g.store.UpdateLastSeen(ctx, id, time.Now().UTC()); err != nil {
			g.logger.Warn().Err(err).Str("user_id", s.UserID).Msg("last-seen update failed")
		}
	}

	// Personal room, always joined for the life of the session.
	s.JoinRoom(s.UserID)

	g.relay.UserOnline(ctx, s.UserID)
	s.Send(relay.EventOnlineUsers, relay.OnlineUsersPayload{Users: g.presence.List(ctx)})

	g.logger.Info().Str("user_id", s.UserID).Str("username", s.Username).Msg("session connected")
}

// disconnect runs the cleanup path. Every step executes regardless of
// earlier failures; removal from the presence registry is unconditional
// even when the connection died abruptly.
func (g *Gateway) disconnect(s *Session) {
	s.close()

	// A replaced session must not tear down the state its replacement
	// now owns.
	if !g.hub.Unregister(s) {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	g.presence.Remove(ctx, s.UserID)

	for _, room := range s.Rooms() {
		if room == s.UserID {
			continue
		}
		g.presence.ClearTyping(ctx, room, s.UserID)
	}

	if id, err := uuid.Parse(s.UserID); err == nil {
		if err := g.store.UpdateLastSeen(ctx, id, time.Now().UTC()); err != nil {
			g.logger.Warn().Err(err).Str("user_id", s.UserID).Msg("last-seen update failed")
		}
	}

	g.relay.UserOffline(ctx, s.UserID)

	g.logger.Info().Str("user_id", s.UserID).Msg("session disconnected")
}

// readPump consumes inbound frames until the connection drops, then
// runs the disconnect cleanup. Abrupt network loss surfaces here as a
// read error once the pong deadline passes.
func (g *Gateway) readPump(s *Session) {
	defer g.disconnect(s)

	s.conn.SetReadLimit(maxFrameSize)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				g.logger.Debug().Err(err).Str("user_id", s.UserID).Msg("connection lost")
			}
			return
		}

		var frame Frame
		if err := json.Unmarshal(raw, &frame); err != nil {
			s.Send(relay.EventError, relay.ErrorPayload{Message: "malformed frame"})
			continue
		}

		h, ok := g.handlers[frame.Event]
		if !ok {
			s.Send(relay.EventError, relay.ErrorPayload{Message: "unknown event: " + frame.Event})
			continue
		}

		// Handlers are independent tasks; a slow store call on one
		// event must not stall the read loop. Failures stay scoped to
		// this session.
		go func(frame Frame) {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := h(ctx, s, frame.Data); err != nil {
				s.Send(relay.EventError, relay.ErrorPayload{Message: err.Error()})
			}
		}(frame)
	}
}

// friendPayload is the body of conversation and typing events.
type friendPayload struct {
	FriendID string `json:"friendId"`
}

// messagePayload is the body of message-scoped inbound events.
type messagePayload struct {
	MessageID string `json:"messageId"`
}

// joinedPayload acknowledges a join-conversation.
type joinedPayload struct {
	ConversationID string `json:"conversationId"`
}

func parseFriend(data json.RawMessage) (uuid.UUID, error) {
	var p friendPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return uuid.Nil, errors.New("malformed payload")
	}
	id, err := uuid.Parse(p.FriendID)
	if err != nil {
		return uuid.Nil, errors.New("invalid friend id")
	}
	return id, nil
}

func parseMessageID(data json.RawMessage) (string, error) {
	var p messagePayload
	if err := json.Unmarshal(data, &p); err != nil || p.MessageID == "" {
		return "", errors.New("malformed payload")
	}
	return p.MessageID, nil
}

// handleJoinConversation admits the user to a conversation room, but
// only with a confirmed friend.
func (g *Gateway) handleJoinConversation(ctx context.Context, s *Session, data json.RawMessage) error {
	friendID, err := g.requireFriend(ctx, s, data)
	if err != nil {
		return err
	}

	room := conversation.ID(s.UserID, friendID.String())
	s.JoinRoom(room)
	s.Send(relay.EventConversationJoined, joinedPayload{ConversationID: room})
	return nil
}

// handleLeaveConversation always succeeds; leaving an unjoined room is
// a no-op.
func (g *Gateway) handleLeaveConversation(ctx context.Context, s *Session, data json.RawMessage) error {
	friendID, err := parseFriend(data)
	if err != nil {
		return err
	}
	s.LeaveRoom(conversation.ID(s.UserID, friendID.String()))
	return nil
}

func (g *Gateway) handleSendMessage(ctx context.Context, s *Session, data json.RawMessage) error {
	messageID, err := parseMessageID(data)
	if err != nil {
		return err
	}
	return g.relay.MessageSent(ctx, messageID)
}

// requireFriend resolves the friend payload and verifies the
// friendship, the same admission rule join-conversation applies.
func (g *Gateway) requireFriend(ctx context.Context, s *Session, data json.RawMessage) (uuid.UUID, error) {
	friendID, err := parseFriend(data)
	if err != nil {
		return uuid.Nil, err
	}
	userID, err := uuid.Parse(s.UserID)
	if err != nil {
		return uuid.Nil, err
	}
	friends, err := g.store.AreFriends(ctx, userID, friendID)
	if err != nil {
		return uuid.Nil, err
	}
	if !friends {
		return uuid.Nil, errors.New("not friends with this user")
	}
	return friendID, nil
}

func (g *Gateway) handleTypingStart(ctx context.Context, s *Session, data json.RawMessage) error {
	friendID, err := g.requireFriend(ctx, s, data)
	if err != nil {
		return err
	}
	conv := conversation.ID(s.UserID, friendID.String())
	g.relay.TypingStart(ctx, conv, s.UserID, s.Username, friendID.String())
	return nil
}

func (g *Gateway) handleTypingStop(ctx context.Context, s *Session, data json.RawMessage) error {
	friendID, err := g.requireFriend(ctx, s, data)
	if err != nil {
		return err
	}
	conv := conversation.ID(s.UserID, friendID.String())
	g.relay.TypingStop(ctx, conv, s.UserID, friendID.String())
	return nil
}

func (g *Gateway) handleMarkAsRead(ctx context.Context, s *Session, data json.RawMessage) error {
	messageID, err := parseMessageID(data)
	if err != nil {
		return err
	}
	userID, err := uuid.Parse(s.UserID)
	if err != nil {
		return err
	}
	return g.relay.MessageRead(ctx, userID, messageID)
}

func (g *Gateway) handleDeleteMessage(ctx context.Context, s *Session, data json.RawMessage) error {
	messageID, err := parseMessageID(data)
	if err != nil {
		return err
	}
	userID, err := uuid.Parse(s.UserID)
	if err != nil {
		return err
	}
	return g.relay.MessageDeleted(ctx, userID, messageID)
}
