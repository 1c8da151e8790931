// Package presence tracks which users currently have a live session on
// any server process, and short-lived typing indicators. Both are
// backed by the shared backbone and are strictly best-effort: a
// backbone failure degrades to "offline/empty/not typing" instead of
// failing the caller, so presence can never block message delivery.
package presence

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/Dhruv-158/Backend-chatter/internal/backbone"
)

// onlineSetKey is the backbone set holding online user IDs.
const onlineSetKey = "presence:online"

// Registry is the cross-process record of online users.
type Registry struct {
	backbone  backbone.Backbone
	logger    zerolog.Logger
	typingTTL time.Duration
}

// NewRegistry creates a presence registry on the given backbone.
func NewRegistry(b backbone.Backbone, typingTTL time.Duration, logger zerolog.Logger) *Registry {
	if typingTTL <= 0 {
		typingTTL = 5 * time.Second
	}
	return &Registry{backbone: b, logger: logger, typingTTL: typingTTL}
}

// Add marks userID online. Adding an already-online user is a no-op.
func (r *Registry) Add(ctx context.Context, userID string) {
	if err := r.backbone.SetAdd(ctx, onlineSetKey, userID); err != nil {
		r.logger.Warn().Err(err).Str("user_id", userID).Msg("presence add failed")
	}
}

// Remove marks userID offline. Removing an offline user is a no-op,
// so duplicate disconnect signals from sibling processes are harmless.
func (r *Registry) Remove(ctx context.Context, userID string) {
	if err := r.backbone.SetRemove(ctx, onlineSetKey, userID); err != nil {
		r.logger.Warn().Err(err).Str("user_id", userID).Msg("presence remove failed")
	}
}

// IsOnline reports whether userID has a live session on any process.
// On backbone failure it reports offline.
func (r *Registry) IsOnline(ctx context.Context, userID string) bool {
	online, err := r.backbone.SetIsMember(ctx, onlineSetKey, userID)
	if err != nil {
		r.logger.Warn().Err(err).Msg("presence lookup failed")
		return false
	}
	return online
}

// List returns the IDs of all online users, or an empty list on failure.
func (r *Registry) List(ctx context.Context) []string {
	users, err := r.backbone.SetMembers(ctx, onlineSetKey)
	if err != nil {
		r.logger.Warn().Err(err).Msg("presence list failed")
		return nil
	}
	return users
}

// Count returns the number of online users, or zero on failure.
func (r *Registry) Count(ctx context.Context) int {
	n, err := r.backbone.SetCard(ctx, onlineSetKey)
	if err != nil {
		r.logger.Warn().Err(err).Msg("presence count failed")
		return 0
	}
	return int(n)
}

// typingKey derives the backbone key for a typing indicator.
func typingKey(conversationID, userID string) string {
	return fmt.Sprintf("typing:%s:%s", conversationID, userID)
}

// SetTyping marks userID as composing in conversationID. The entry
// expires on its own, so a client that crashes mid-type self-heals to
// "not typing" without an explicit stop signal.
func (r *Registry) SetTyping(ctx context.Context, conversationID, userID string) {
	if err := r.backbone.Set(ctx, typingKey(conversationID, userID), []byte("1"), r.typingTTL); err != nil {
		r.logger.Warn().Err(err).Msg("typing set failed")
	}
}

// ClearTyping removes the typing marker. Idempotent.
func (r *Registry) ClearTyping(ctx context.Context, conversationID, userID string) {
	if err := r.backbone.Delete(ctx, typingKey(conversationID, userID)); err != nil {
		r.logger.Warn().Err(err).Msg("typing clear failed")
	}
}

// IsTyping reports whether userID is composing in conversationID.
func (r *Registry) IsTyping(ctx context.Context, conversationID, userID string) bool {
	_, err := r.backbone.Get(ctx, typingKey(conversationID, userID))
	return err == nil
}
