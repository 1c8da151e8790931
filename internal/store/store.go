package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/Dhruv-158/Backend-chatter/internal/models"
)

// DataStore defines the interface for persistent storage of users,
// friendships, friend requests, and messages. Both PostgresStore and
// SQLiteStore implement this interface.
//
// Lookups return (nil, nil) when the record is absent; errors are
// reserved for storage failures.
type DataStore interface {
	// Connection management
	Close()
	Ping(ctx context.Context) error

	// User operations
	CreateUser(ctx context.Context, username, email, passwordHash string) (*models.User, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	UpdateLastSeen(ctx context.Context, id uuid.UUID, at time.Time) error

	// Friendship operations. Friendships are keyed by the conversation
	// key derived from the two user IDs, so a pair can be friends at
	// most once regardless of argument order.
	AreFriends(ctx context.Context, a, b uuid.UUID) (bool, error)
	AddFriendship(ctx context.Context, a, b uuid.UUID) error
	ListFriends(ctx context.Context, id uuid.UUID) ([]models.User, error)

	// Friend request operations
	CreateFriendRequest(ctx context.Context, sender, receiver uuid.UUID) (*models.FriendRequest, error)
	GetFriendRequest(ctx context.Context, id uuid.UUID) (*models.FriendRequest, error)
	DeleteFriendRequest(ctx context.Context, id uuid.UUID) error
	ListFriendRequests(ctx context.Context, receiver uuid.UUID) ([]models.FriendRequest, error)

	// Message operations. Creation is append-only; deletion is a soft
	// delete that flags the row and blanks the payload reference.
	CreateMessage(ctx context.Context, msg *models.Message) error
	GetMessage(ctx context.Context, id string) (*models.Message, error)
	GetMessageMeta(ctx context.Context, id string) (*models.MessageMeta, error)

	// MarkMessageRead flips is_read for the message iff receiver
	// matches and the message is unread. Returns whether the update
	// applied, making repeated marks idempotent.
	MarkMessageRead(ctx context.Context, id string, receiver uuid.UUID, at time.Time) (bool, error)

	// SoftDeleteMessage flags the message deleted iff sender owns it.
	// Returns the pre-delete message so the caller can relay the event
	// and schedule media cleanup, or nil if absent/not owned.
	SoftDeleteMessage(ctx context.Context, id string, sender uuid.UUID) (*models.Message, error)

	ListConversationMessages(ctx context.Context, conversationID string, limit int, before time.Time) ([]models.Message, error)
}
