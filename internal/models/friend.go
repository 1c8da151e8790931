package models

import (
	"time"

	"github.com/google/uuid"
)

// FriendRequest represents a pending friend request between two users.
type FriendRequest struct {
	ID         uuid.UUID `json:"id"`
	SenderID   uuid.UUID `json:"sender_id"`
	ReceiverID uuid.UUID `json:"receiver_id"`
	CreatedAt  time.Time `json:"created_at"`
}
