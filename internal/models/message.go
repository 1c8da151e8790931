package models

import "time"

// MessageType enumerates the supported message payloads.
type MessageType string

const (
	MessageText     MessageType = "text"
	MessageImage    MessageType = "image"
	MessageVideo    MessageType = "video"
	MessageDocument MessageType = "document"
	MessageAudio    MessageType = "audio"
	MessageLink     MessageType = "link"
)

// ValidMessageType reports whether t is one of the supported message types.
func ValidMessageType(t MessageType) bool {
	switch t {
	case MessageText, MessageImage, MessageVideo, MessageDocument, MessageAudio, MessageLink:
		return true
	}
	return false
}

// Message represents a direct message between two users.
// Persistence is owned by the store; the realtime core caches and
// relays it as an opaque payload.
type Message struct {
	ID             string      `json:"id"` // ULID
	ConversationID string      `json:"conversation_id"`
	SenderID       string      `json:"sender_id"`
	ReceiverID     string      `json:"receiver_id"`
	Type           MessageType `json:"type"`

	// Payload fields; which are set depends on Type.
	Body         string `json:"body,omitempty"`          // text
	MediaURL     string `json:"media_url,omitempty"`     // image/video/document/audio
	ThumbnailURL string `json:"thumbnail_url,omitempty"` // image/video
	FileName     string `json:"file_name,omitempty"`     // document
	FileSize     int64  `json:"file_size,omitempty"`     // media, bytes
	Duration     int    `json:"duration,omitempty"`      // audio/video, seconds
	LinkTitle    string `json:"link_title,omitempty"`    // link preview
	LinkImage    string `json:"link_image,omitempty"`    // link preview

	IsRead    bool       `json:"is_read"`
	ReadAt    *time.Time `json:"read_at,omitempty"`
	IsDeleted bool       `json:"is_deleted"`
	CreatedAt time.Time  `json:"created_at"`
}

// MediaURLs returns the media file URLs attached to the message, if any.
// Used to schedule file cleanup when a message is deleted.
func (m *Message) MediaURLs() []string {
	var urls []string
	if m.MediaURL != "" {
		urls = append(urls, m.MediaURL)
	}
	if m.ThumbnailURL != "" {
		urls = append(urls, m.ThumbnailURL)
	}
	return urls
}

// MessageMeta is a constant-field projection of Message used when the
// relay falls back to a store read on a cache miss.
type MessageMeta struct {
	ID             string     `json:"id"`
	ConversationID string     `json:"conversation_id"`
	SenderID       string     `json:"sender_id"`
	ReceiverID     string     `json:"receiver_id"`
	IsRead         bool       `json:"is_read"`
	ReadAt         *time.Time `json:"read_at,omitempty"`
	IsDeleted      bool       `json:"is_deleted"`
}
