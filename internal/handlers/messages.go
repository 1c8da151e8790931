package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"github.com/Dhruv-158/Backend-chatter/internal/api/middleware"
	"github.com/Dhruv-158/Backend-chatter/internal/conversation"
	"github.com/Dhruv-158/Backend-chatter/internal/models"
)

// SendMessageRequest represents the send message request body.
type SendMessageRequest struct {
	ReceiverID   string             `json:"receiver_id"`
	Type         models.MessageType `json:"type"`
	Body         string             `json:"body,omitempty"`
	MediaURL     string             `json:"media_url,omitempty"`
	ThumbnailURL string             `json:"thumbnail_url,omitempty"`
	FileName     string             `json:"file_name,omitempty"`
	FileSize     int64              `json:"file_size,omitempty"`
	Duration     int                `json:"duration,omitempty"`
	LinkTitle    string             `json:"link_title,omitempty"`
	LinkImage    string             `json:"link_image,omitempty"`
}

// SendMessage persists a message, writes it through the cache, and
// relays it to the receiver.
func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	sender := middleware.GetUserFromContext(r.Context())
	if sender == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	receiverID, err := uuid.Parse(req.ReceiverID)
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid receiver ID format")
		return
	}
	if !models.ValidMessageType(req.Type) {
		h.Error(w, http.StatusBadRequest, "unknown message type")
		return
	}
	if req.Type == models.MessageText && req.Body == "" {
		h.Error(w, http.StatusBadRequest, "body is required for text messages")
		return
	}
	if req.Type != models.MessageText && req.Type != models.MessageLink && req.MediaURL == "" {
		h.Error(w, http.StatusBadRequest, "media_url is required for media messages")
		return
	}

	friends, err := h.store.AreFriends(r.Context(), sender.ID, receiverID)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}
	if !friends {
		h.Error(w, http.StatusForbidden, "not friends with this user")
		return
	}

	msg := &models.Message{
		ID:             ulid.Make().String(),
		ConversationID: conversation.ID(sender.ID.String(), receiverID.String()),
		SenderID:       sender.ID.String(),
		ReceiverID:     receiverID.String(),
		Type:           req.Type,
		Body:           req.Body,
		MediaURL:       req.MediaURL,
		ThumbnailURL:   req.ThumbnailURL,
		FileName:       req.FileName,
		FileSize:       req.FileSize,
		Duration:       req.Duration,
		LinkTitle:      req.LinkTitle,
		LinkImage:      req.LinkImage,
	}

	if err := h.store.CreateMessage(r.Context(), msg); err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to store message")
		return
	}

	// Write-through before the relay so cache readers never see a
	// state older than this mutation.
	h.relay.CacheMessage(r.Context(), msg)

	if err := h.relay.MessageSent(r.Context(), msg.ID); err != nil {
		// The message is persisted; delivery is best-effort.
		h.logger.Warn().Err(err).Str("message_id", msg.ID).Msg("relay failed after persist")
	}

	h.JSON(w, http.StatusCreated, msg)
}

// MessagesResponse represents a page of conversation history.
type MessagesResponse struct {
	ConversationID string           `json:"conversation_id"`
	Messages       []models.Message `json:"messages"`
}

// GetMessages returns conversation history with a friend, newest first.
func (h *Handler) GetMessages(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	if user == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	friendID, err := uuid.Parse(chi.URLParam(r, "friendID"))
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid friend ID format")
		return
	}

	friends, err := h.store.AreFriends(r.Context(), user.ID, friendID)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}
	if !friends {
		h.Error(w, http.StatusForbidden, "not friends with this user")
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}
	var before time.Time
	if v := r.URL.Query().Get("before"); v != "" {
		if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
			before = time.UnixMilli(ms)
		}
	}

	convID := conversation.ID(user.ID.String(), friendID.String())
	messages, err := h.store.ListConversationMessages(r.Context(), convID, limit, before)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to fetch messages")
		return
	}
	if messages == nil {
		messages = []models.Message{}
	}

	h.JSON(w, http.StatusOK, MessagesResponse{ConversationID: convID, Messages: messages})
}
