// Package relay turns domain events into local connection delivery and
// backbone publications, and delivers sibling processes' publications
// to local connections. Local delivery and publication are deliberately
// redundant: they serve disjoint audiences (this process's connections
// vs. sibling processes), so neither path is gated on the other.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Dhruv-158/Backend-chatter/internal/backbone"
	"github.com/Dhruv-158/Backend-chatter/internal/media"
	"github.com/Dhruv-158/Backend-chatter/internal/metrics"
	"github.com/Dhruv-158/Backend-chatter/internal/models"
	"github.com/Dhruv-158/Backend-chatter/internal/presence"
	"github.com/Dhruv-158/Backend-chatter/internal/store"
)

var (
	// ErrMessageNotFound means the referenced message does not exist.
	ErrMessageNotFound = errors.New("message not found")
	// ErrNotReceiver means the caller is not the message's receiver.
	ErrNotReceiver = errors.New("only the receiver can mark a message read")
	// ErrNotSender means the caller does not own the message.
	ErrNotSender = errors.New("only the sender can delete a message")
)

const (
	presenceChannel   = "chat:presence"
	userChannelPrefix = "chat:user:"
)

func userChannel(userID string) string {
	return userChannelPrefix + userID
}

// LocalSender delivers events to connections held by this process.
// Implemented by the gateway hub.
type LocalSender interface {
	// SendToUser delivers to userID's connection if present locally.
	// Reports whether a local connection existed.
	SendToUser(userID, event string, data interface{}) bool
	// Broadcast delivers to every local connection.
	Broadcast(event string, data interface{})
}

// Relay fans domain events out to local connections and the backbone.
type Relay struct {
	origin   string // this process's identity, for self-skip
	local    LocalSender
	backbone backbone.Backbone
	store    store.DataStore
	presence *presence.Registry
	media    media.Remover
	logger   zerolog.Logger
	cacheTTL time.Duration
}

// New creates a Relay.
func New(local LocalSender, b backbone.Backbone, ds store.DataStore, reg *presence.Registry, remover media.Remover, cacheTTL time.Duration, logger zerolog.Logger) *Relay {
	if cacheTTL <= 0 {
		cacheTTL = time.Hour
	}
	if remover == nil {
		remover = media.NopRemover{}
	}
	return &Relay{
		origin:   uuid.NewString(),
		local:    local,
		backbone: b,
		store:    ds,
		presence: reg,
		media:    remover,
		logger:   logger,
		cacheTTL: cacheTTL,
	}
}

func messageCacheKey(id string) string {
	return "message:" + id
}

// CacheMessage writes the message through to the backbone cache. Called
// on every mutation before the corresponding relay, so concurrent cache
// readers never observe a state older than the latest mutation.
func (r *Relay) CacheMessage(ctx context.Context, msg *models.Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	if err := r.backbone.Set(ctx, messageCacheKey(msg.ID), data, r.cacheTTL); err != nil {
		r.logger.Warn().Err(err).Str("message_id", msg.ID).Msg("message cache write failed")
	}
}

// cachedMessage reads a message from the backbone cache.
func (r *Relay) cachedMessage(ctx context.Context, id string) *models.Message {
	data, err := r.backbone.Get(ctx, messageCacheKey(id))
	if err != nil {
		return nil
	}
	msg := &models.Message{}
	if err := json.Unmarshal(data, msg); err != nil {
		return nil
	}
	return msg
}

// deliver runs the dual path: local delivery to userID, then a backbone
// publication for sibling processes. Neither gates the other.
func (r *Relay) deliver(ctx context.Context, userID, event string, data interface{}) {
	metrics.EventsRelayed.WithLabelValues(event).Inc()
	r.local.SendToUser(userID, event, data)
	r.publish(ctx, userChannel(userID), event, data)
}

// broadcast delivers to every local connection and publishes on the
// shared presence channel.
func (r *Relay) broadcast(ctx context.Context, event string, data interface{}) {
	metrics.EventsRelayed.WithLabelValues(event).Inc()
	r.local.Broadcast(event, data)
	r.publish(ctx, presenceChannel, event, data)
}

func (r *Relay) publish(ctx context.Context, channel, event string, data interface{}) {
	raw, err := json.Marshal(data)
	if err != nil {
		r.logger.Error().Err(err).Str("event", event).Msg("payload marshal failed")
		return
	}
	env, err := json.Marshal(envelope{Origin: r.origin, Event: event, Data: raw})
	if err != nil {
		return
	}
	if err := r.backbone.Publish(ctx, channel, env); err != nil {
		// Best effort: local delivery already happened.
		r.logger.Warn().Err(err).Str("channel", channel).Msg("backbone publish failed")
	}
}

// MessageSent relays an already-persisted message to its receiver.
// The message is resolved from the cache first, falling back to the
// store and re-populating the cache on a miss.
func (r *Relay) MessageSent(ctx context.Context, messageID string) error {
	msg := r.cachedMessage(ctx, messageID)
	if msg == nil {
		var err error
		msg, err = r.store.GetMessage(ctx, messageID)
		if err != nil {
			return err
		}
		if msg == nil {
			return ErrMessageNotFound
		}
		r.CacheMessage(ctx, msg)
	}
	if msg.IsDeleted {
		return ErrMessageNotFound
	}

	metrics.MessagesSent.WithLabelValues(string(msg.Type)).Inc()
	r.deliver(ctx, msg.ReceiverID, EventReceiveMessage, msg)
	return nil
}

// TypingStart marks the typer as composing and notifies the friend.
func (r *Relay) TypingStart(ctx context.Context, conversationID, userID, username, friendID string) {
	r.presence.SetTyping(ctx, conversationID, userID)
	r.deliver(ctx, friendID, EventTypingStart, TypingPayload{
		UserID:         userID,
		Username:       username,
		ConversationID: conversationID,
	})
}

// TypingStop clears the typing marker and notifies the friend.
func (r *Relay) TypingStop(ctx context.Context, conversationID, userID, friendID string) {
	r.presence.ClearTyping(ctx, conversationID, userID)
	r.deliver(ctx, friendID, EventTypingStop, TypingPayload{
		UserID:         userID,
		ConversationID: conversationID,
	})
}

// MessageRead marks a message read on behalf of readerID and notifies
// the sender. Marking an already-read message is an idempotent no-op:
// no second event is relayed and readAt keeps its first value.
func (r *Relay) MessageRead(ctx context.Context, readerID uuid.UUID, messageID string) error {
	meta, err := r.messageMeta(ctx, messageID)
	if err != nil {
		return err
	}
	if meta == nil || meta.IsDeleted {
		return ErrMessageNotFound
	}
	if meta.ReceiverID != readerID.String() {
		return ErrNotReceiver
	}

	readAt := time.Now().UTC()
	applied, err := r.store.MarkMessageRead(ctx, messageID, readerID, readAt)
	if err != nil {
		return err
	}
	if !applied {
		// Already read; nothing to relay.
		return nil
	}

	// Refresh the cache before the relay so readers never see the
	// pre-mutation state after the event lands.
	if msg, err := r.store.GetMessage(ctx, messageID); err == nil && msg != nil {
		r.CacheMessage(ctx, msg)
	}

	r.deliver(ctx, meta.SenderID, EventMessageRead, ReadPayload{
		MessageID: messageID,
		ReadAt:    readAt.UnixMilli(),
	})
	return nil
}

// messageMeta resolves the constant fields of a message, preferring the
// cache over a store projection read.
func (r *Relay) messageMeta(ctx context.Context, messageID string) (*models.MessageMeta, error) {
	if msg := r.cachedMessage(ctx, messageID); msg != nil {
		return &models.MessageMeta{
			ID:             msg.ID,
			ConversationID: msg.ConversationID,
			SenderID:       msg.SenderID,
			ReceiverID:     msg.ReceiverID,
			IsRead:         msg.IsRead,
			ReadAt:         msg.ReadAt,
			IsDeleted:      msg.IsDeleted,
		}, nil
	}
	return r.store.GetMessageMeta(ctx, messageID)
}

// MessageDeleted soft-deletes a sender's own message, drops the cache
// entry, schedules media cleanup, and notifies the other participant.
func (r *Relay) MessageDeleted(ctx context.Context, senderID uuid.UUID, messageID string) error {
	msg, err := r.store.SoftDeleteMessage(ctx, messageID, senderID)
	if err != nil {
		return err
	}
	if msg == nil {
		// Absent, already deleted, or not owned by the caller.
		return ErrNotSender
	}

	// Cache entry must be gone before the event goes out.
	if err := r.backbone.Delete(ctx, messageCacheKey(messageID)); err != nil {
		r.logger.Warn().Err(err).Str("message_id", messageID).Msg("cache delete failed")
	}

	if urls := msg.MediaURLs(); len(urls) > 0 {
		go func() {
			cleanupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := r.media.Remove(cleanupCtx, urls...); err != nil {
				r.logger.Error().Err(err).Str("message_id", messageID).Msg("media cleanup failed")
			}
		}()
	}

	r.deliver(ctx, msg.ReceiverID, EventMessageDeleted, DeletedPayload{MessageID: messageID})
	return nil
}

// UserOnline announces a user's connect to every client, process-wide.
func (r *Relay) UserOnline(ctx context.Context, userID string) {
	r.broadcast(ctx, EventUserOnline, PresencePayload{
		UserID:    userID,
		Timestamp: time.Now().UnixMilli(),
	})
}

// UserOffline announces a user's disconnect to every client,
// process-wide.
func (r *Relay) UserOffline(ctx context.Context, userID string) {
	r.broadcast(ctx, EventUserOffline, PresencePayload{
		UserID:    userID,
		Timestamp: time.Now().UnixMilli(),
	})
}

// Run consumes sibling processes' publications and delivers them to
// local connections. It returns when ctx is cancelled or the backbone
// gives up (degraded single-process mode).
func (r *Relay) Run(ctx context.Context) {
	events, stop := r.backbone.Subscribe(ctx, userChannelPrefix+"*", presenceChannel)
	defer stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				r.logger.Warn().Msg("backbone subscription closed, cross-process relay stopped")
				return
			}
			r.dispatch(ev)
		}
	}
}

func (r *Relay) dispatch(ev backbone.Event) {
	var env envelope
	if err := json.Unmarshal(ev.Payload, &env); err != nil {
		r.logger.Warn().Err(err).Str("channel", ev.Channel).Msg("malformed backbone envelope")
		return
	}
	// This process already delivered locally before publishing.
	if env.Origin == r.origin {
		return
	}

	if ev.Channel == presenceChannel {
		r.local.Broadcast(env.Event, env.Data)
		return
	}
	if userID, ok := strings.CutPrefix(ev.Channel, userChannelPrefix); ok {
		r.local.SendToUser(userID, env.Event, env.Data)
	}
}
