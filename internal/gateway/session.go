package gateway

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Dhruv-158/Backend-chatter/internal/models"
)

const (
	// Time allowed to write a frame to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong from the peer. A silent peer
	// is treated as disconnected after this; presence cleanup follows.
	pongWait = 60 * time.Second

	// Ping period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum inbound frame size.
	maxFrameSize = 8 * 1024

	// Outbound buffer per session; a stalled client gets dropped when
	// it fills rather than blocking everyone else.
	sendBuffer = 256
)

// Frame is the bidirectional wire frame.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Session is a live connection plus its resolved user identity, scoped
// to this process. Owned exclusively by the Hub.
type Session struct {
	UserID   string
	Username string

	conn *websocket.Conn
	send chan []byte

	mu    sync.Mutex
	rooms map[string]bool

	closeOnce sync.Once
	done      chan struct{}
}

func newSession(user *models.User, conn *websocket.Conn) *Session {
	return &Session{
		UserID:   user.ID.String(),
		Username: user.Username,
		conn:     conn,
		send:     make(chan []byte, sendBuffer),
		rooms:    make(map[string]bool),
		done:     make(chan struct{}),
	}
}

// Send marshals an event frame and enqueues it for delivery. Reports
// false if the session is closing or its buffer is full.
func (s *Session) Send(event string, data interface{}) bool {
	raw, err := json.Marshal(data)
	if err != nil {
		return false
	}
	frame, err := json.Marshal(Frame{Event: event, Data: raw})
	if err != nil {
		return false
	}

	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.send <- frame:
		return true
	default:
		return false
	}
}

// JoinRoom adds the session to a conversation room. Idempotent.
func (s *Session) JoinRoom(room string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rooms[room] = true
}

// LeaveRoom removes the session from a room. Idempotent.
func (s *Session) LeaveRoom(room string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rooms, room)
}

// InRoom reports whether the session has joined the room.
func (s *Session) InRoom(room string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rooms[room]
}

// Rooms returns a snapshot of the joined rooms.
func (s *Session) Rooms() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	rooms := make([]string, 0, len(s.rooms))
	for room := range s.rooms {
		rooms = append(rooms, room)
	}
	return rooms
}

// close marks the session closed and releases the write pump. Safe to
// call from any goroutine, any number of times.
func (s *Session) close() {
	s.closeOnce.Do(func() {
		close(s.done)
	})
}

// writePump drains the send buffer onto the connection and keeps the
// liveness pings flowing. One per session.
func (s *Session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case frame := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-s.done:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
