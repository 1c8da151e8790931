package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/Dhruv-158/Backend-chatter/internal/api/middleware"
	"github.com/Dhruv-158/Backend-chatter/internal/models"
)

// FriendRequestBody represents the create friend request body.
type FriendRequestBody struct {
	ReceiverID string `json:"receiver_id"`
}

// AcceptRequestBody represents the accept friend request body.
type AcceptRequestBody struct {
	RequestID string `json:"request_id"`
}

// FriendResponse represents a friend in API responses.
type FriendResponse struct {
	ID       string     `json:"id"`
	Username string     `json:"username"`
	Avatar   string     `json:"avatar_url,omitempty"`
	LastSeen *time.Time `json:"last_seen,omitempty"`
	Online   bool       `json:"online"`
}

// CreateFriendRequest sends a friend request to another user.
func (h *Handler) CreateFriendRequest(w http.ResponseWriter, r *http.Request) {
	sender := middleware.GetUserFromContext(r.Context())
	if sender == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req FriendRequestBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	receiverID, err := uuid.Parse(req.ReceiverID)
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid receiver ID format")
		return
	}
	if receiverID == sender.ID {
		h.Error(w, http.StatusBadRequest, "cannot befriend yourself")
		return
	}

	receiver, err := h.store.GetUserByID(r.Context(), receiverID)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}
	if receiver == nil {
		h.Error(w, http.StatusNotFound, "user not found")
		return
	}

	already, err := h.store.AreFriends(r.Context(), sender.ID, receiverID)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}
	if already {
		h.Error(w, http.StatusConflict, "already friends")
		return
	}

	fr, err := h.store.CreateFriendRequest(r.Context(), sender.ID, receiverID)
	if err != nil {
		h.Error(w, http.StatusConflict, "request already pending")
		return
	}

	h.JSON(w, http.StatusCreated, fr)
}

// AcceptFriendRequest accepts a pending request addressed to the caller
// and records the friendship.
func (h *Handler) AcceptFriendRequest(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	if user == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req AcceptRequestBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	requestID, err := uuid.Parse(req.RequestID)
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid request ID format")
		return
	}

	fr, err := h.store.GetFriendRequest(r.Context(), requestID)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}
	if fr == nil {
		h.Error(w, http.StatusNotFound, "friend request not found")
		return
	}
	if fr.ReceiverID != user.ID {
		h.Error(w, http.StatusForbidden, "request is not addressed to you")
		return
	}

	if err := h.store.AddFriendship(r.Context(), fr.SenderID, fr.ReceiverID); err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to record friendship")
		return
	}
	if err := h.store.DeleteFriendRequest(r.Context(), requestID); err != nil {
		h.logger.Warn().Err(err).Str("request_id", requestID.String()).Msg("request cleanup failed")
	}

	h.JSON(w, http.StatusOK, map[string]string{"status": "accepted"})
}

// DeclineFriendRequest removes a pending request. The sender or the
// receiver may decline; deleting an absent request is a no-op.
func (h *Handler) DeclineFriendRequest(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	if user == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	requestID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid request ID format")
		return
	}

	fr, err := h.store.GetFriendRequest(r.Context(), requestID)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}
	if fr != nil && fr.SenderID != user.ID && fr.ReceiverID != user.ID {
		h.Error(w, http.StatusForbidden, "request does not involve you")
		return
	}

	if err := h.store.DeleteFriendRequest(r.Context(), requestID); err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to delete request")
		return
	}

	h.JSON(w, http.StatusOK, map[string]string{"status": "declined"})
}

// ListFriendRequests returns pending requests addressed to the caller.
func (h *Handler) ListFriendRequests(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	if user == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	requests, err := h.store.ListFriendRequests(r.Context(), user.ID)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to fetch requests")
		return
	}
	if requests == nil {
		requests = []models.FriendRequest{}
	}

	h.JSON(w, http.StatusOK, map[string]interface{}{"requests": requests})
}

// ListFriends returns the caller's friends with live presence.
func (h *Handler) ListFriends(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	if user == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	friends, err := h.store.ListFriends(r.Context(), user.ID)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to fetch friends")
		return
	}

	online := make(map[string]bool)
	for _, id := range h.presence.List(r.Context()) {
		online[id] = true
	}

	resp := make([]FriendResponse, len(friends))
	for i, f := range friends {
		resp[i] = FriendResponse{
			ID:       f.ID.String(),
			Username: f.Username,
			Avatar:   f.AvatarURL,
			LastSeen: f.LastSeen,
			Online:   online[f.ID.String()],
		}
	}

	h.JSON(w, http.StatusOK, map[string]interface{}{"friends": resp})
}
