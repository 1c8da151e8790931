package chatter

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
)

// Frame is a single gateway frame.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Conn is a live gateway connection.
type Conn struct {
	ws *websocket.Conn
	mu sync.Mutex
}

// Connect opens a websocket session using the client's access token.
func (c *Client) Connect(ctx context.Context) (*Conn, error) {
	if c.AccessToken == "" {
		return nil, fmt.Errorf("chatter: not authenticated")
	}

	wsURL := strings.Replace(c.BaseURL, "http", "ws", 1) + "/ws?token=" + c.AccessToken
	ws, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("chatter: connect failed: %d", resp.StatusCode)
		}
		return nil, fmt.Errorf("chatter: connect failed: %w", err)
	}
	return &Conn{ws: ws}, nil
}

// Send writes an event frame to the gateway.
func (c *Conn) Send(event string, data interface{}) error {
	frame := Frame{Event: event}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return err
		}
		frame.Data = raw
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteJSON(frame)
}

// Next blocks until the next frame arrives.
func (c *Conn) Next() (*Frame, error) {
	var frame Frame
	if err := c.ws.ReadJSON(&frame); err != nil {
		return nil, err
	}
	return &frame, nil
}

// JoinConversation asks the gateway to join a conversation with a friend.
func (c *Conn) JoinConversation(friendID string) error {
	return c.Send("join-conversation", map[string]string{"friendId": friendID})
}

// TypingStart signals that the user started typing to a friend.
func (c *Conn) TypingStart(friendID string) error {
	return c.Send("typing-start", map[string]string{"friendId": friendID})
}

// TypingStop signals that the user stopped typing.
func (c *Conn) TypingStop(friendID string) error {
	return c.Send("typing-stop", map[string]string{"friendId": friendID})
}

// MarkAsRead marks a received message as read.
func (c *Conn) MarkAsRead(messageID string) error {
	return c.Send("mark-as-read", map[string]string{"messageId": messageID})
}

// DeleteMessage deletes a message the user sent.
func (c *Conn) DeleteMessage(messageID string) error {
	return c.Send("delete-message", map[string]string{"messageId": messageID})
}

// Close closes the connection cleanly.
func (c *Conn) Close() error {
	c.mu.Lock()
	_ = c.ws.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.mu.Unlock()
	return c.ws.Close()
}
