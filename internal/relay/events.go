package relay

import "encoding/json"

// Outbound event names. These are the authoritative names of the wire
// contract; legacy aliases from earlier clients are not emitted.
const (
	EventConversationJoined = "conversation-joined"
	EventOnlineUsers        = "online-users"
	EventUserOnline         = "user-online"
	EventUserOffline        = "user-offline"
	EventReceiveMessage     = "receive-message"
	EventTypingStart        = "typing-start"
	EventTypingStop         = "typing-stop"
	EventMessageRead        = "message-read"
	EventMessageDeleted     = "message-deleted"
	EventError              = "error"
)

// Inbound event names accepted by the gateway.
const (
	EventJoinConversation  = "join-conversation"
	EventLeaveConversation = "leave-conversation"
	EventSendMessage       = "send-message"
	EventMarkAsRead        = "mark-as-read"
	EventDeleteMessage     = "delete-message"
)

// PresencePayload is the body of user-online / user-offline events.
type PresencePayload struct {
	UserID    string `json:"userId"`
	Timestamp int64  `json:"timestamp"`
}

// OnlineUsersPayload carries the full online set to a fresh connection.
type OnlineUsersPayload struct {
	Users []string `json:"list"`
}

// TypingPayload is the body of typing-start / typing-stop events.
// Username is only set on typing-start.
type TypingPayload struct {
	UserID         string `json:"userId"`
	Username       string `json:"username,omitempty"`
	ConversationID string `json:"conversationId"`
}

// ReadPayload is the body of message-read events.
type ReadPayload struct {
	MessageID string `json:"messageId"`
	ReadAt    int64  `json:"readAt"` // unix ms
}

// DeletedPayload is the body of message-deleted events.
type DeletedPayload struct {
	MessageID string `json:"messageId"`
}

// ErrorPayload is the body of scoped error events.
type ErrorPayload struct {
	Message string `json:"message"`
}

// envelope is the frame published on backbone channels. Origin
// identifies the publishing process so the publisher's own subscriber
// skips it; local delivery already happened on that process.
type envelope struct {
	Origin string          `json:"origin"`
	Event  string          `json:"event"`
	Data   json.RawMessage `json:"data"`
}
