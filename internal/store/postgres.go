package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Dhruv-158/Backend-chatter/internal/conversation"
	"github.com/Dhruv-158/Backend-chatter/internal/metrics"
	"github.com/Dhruv-158/Backend-chatter/internal/models"
)

// PostgresStore handles PostgreSQL database operations.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL store with a connection pool
// and ensures the schema exists.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, err
	}

	store := &PostgresStore{pool: pool}
	if err := store.initSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return store, nil
}

func (s *PostgresStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		username TEXT UNIQUE NOT NULL,
		email TEXT UNIQUE NOT NULL,
		password_hash TEXT NOT NULL,
		avatar_url TEXT NOT NULL DEFAULT '',
		last_seen TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);

	CREATE TABLE IF NOT EXISTS friendships (
		conversation_id TEXT PRIMARY KEY,
		user_a UUID NOT NULL REFERENCES users(id),
		user_b UUID NOT NULL REFERENCES users(id),
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);
	CREATE INDEX IF NOT EXISTS idx_friendships_user_a ON friendships(user_a);
	CREATE INDEX IF NOT EXISTS idx_friendships_user_b ON friendships(user_b);

	CREATE TABLE IF NOT EXISTS friend_requests (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		sender UUID NOT NULL REFERENCES users(id),
		receiver UUID NOT NULL REFERENCES users(id),
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		UNIQUE (sender, receiver)
	);

	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		conversation_id TEXT NOT NULL,
		sender UUID NOT NULL REFERENCES users(id),
		receiver UUID NOT NULL REFERENCES users(id),
		type TEXT NOT NULL,
		body TEXT NOT NULL DEFAULT '',
		media_url TEXT NOT NULL DEFAULT '',
		thumbnail_url TEXT NOT NULL DEFAULT '',
		file_name TEXT NOT NULL DEFAULT '',
		file_size BIGINT NOT NULL DEFAULT 0,
		duration INT NOT NULL DEFAULT 0,
		link_title TEXT NOT NULL DEFAULT '',
		link_image TEXT NOT NULL DEFAULT '',
		is_read BOOLEAN NOT NULL DEFAULT false,
		read_at TIMESTAMPTZ,
		is_deleted BOOLEAN NOT NULL DEFAULT false,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);
	CREATE INDEX IF NOT EXISTS idx_messages_conversation
		ON messages(conversation_id, created_at DESC);
	`
	_, err := s.pool.Exec(ctx, schema)
	return err
}

// Close closes the database connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func observe(start time.Time) {
	metrics.PostgresLatency.Observe(time.Since(start).Seconds())
}

// CreateUser creates a new user record.
func (s *PostgresStore) CreateUser(ctx context.Context, username, email, passwordHash string) (*models.User, error) {
	defer observe(time.Now())

	user := &models.User{}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO users (username, email, password_hash)
		VALUES ($1, $2, $3)
		RETURNING id, username, email, password_hash, avatar_url, last_seen, created_at, updated_at
	`, username, email, passwordHash).Scan(
		&user.ID, &user.Username, &user.Email, &user.PasswordHash,
		&user.AvatarURL, &user.LastSeen, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return user, nil
}

// GetUserByID retrieves a user by ID. Returns nil if not found.
func (s *PostgresStore) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	defer observe(time.Now())

	user := &models.User{}
	err := s.pool.QueryRow(ctx, `
		SELECT id, username, email, password_hash, avatar_url, last_seen, created_at, updated_at
		FROM users WHERE id = $1
	`, id).Scan(
		&user.ID, &user.Username, &user.Email, &user.PasswordHash,
		&user.AvatarURL, &user.LastSeen, &user.CreatedAt, &user.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

// GetUserByEmail retrieves a user by email. Returns nil if not found.
func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	defer observe(time.Now())

	user := &models.User{}
	err := s.pool.QueryRow(ctx, `
		SELECT id, username, email, password_hash, avatar_url, last_seen, created_at, updated_at
		FROM users WHERE email = $1
	`, email).Scan(
		&user.ID, &user.Username, &user.Email, &user.PasswordHash,
		&user.AvatarURL, &user.LastSeen, &user.CreatedAt, &user.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

// UpdateLastSeen records the user's last activity timestamp.
func (s *PostgresStore) UpdateLastSeen(ctx context.Context, id uuid.UUID, at time.Time) error {
	defer observe(time.Now())

	_, err := s.pool.Exec(ctx, `
		UPDATE users SET last_seen = $2, updated_at = now() WHERE id = $1
	`, id, at)
	return err
}

// AreFriends reports whether a friendship exists between the two users.
func (s *PostgresStore) AreFriends(ctx context.Context, a, b uuid.UUID) (bool, error) {
	defer observe(time.Now())

	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM friendships WHERE conversation_id = $1)
	`, conversation.ID(a.String(), b.String())).Scan(&exists)
	return exists, err
}

// AddFriendship records a friendship. Adding an existing pair is a no-op.
func (s *PostgresStore) AddFriendship(ctx context.Context, a, b uuid.UUID) error {
	defer observe(time.Now())

	userA, userB := a, b
	if userB.String() < userA.String() {
		userA, userB = userB, userA
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO friendships (conversation_id, user_a, user_b)
		VALUES ($1, $2, $3)
		ON CONFLICT (conversation_id) DO NOTHING
	`, conversation.ID(a.String(), b.String()), userA, userB)
	return err
}

// ListFriends returns all users the given user is friends with.
func (s *PostgresStore) ListFriends(ctx context.Context, id uuid.UUID) ([]models.User, error) {
	defer observe(time.Now())

	rows, err := s.pool.Query(ctx, `
		SELECT u.id, u.username, u.email, u.password_hash, u.avatar_url, u.last_seen, u.created_at, u.updated_at
		FROM friendships f
		JOIN users u ON u.id = CASE WHEN f.user_a = $1 THEN f.user_b ELSE f.user_a END
		WHERE f.user_a = $1 OR f.user_b = $1
		ORDER BY u.username
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var friends []models.User
	for rows.Next() {
		var u models.User
		if err := rows.Scan(
			&u.ID, &u.Username, &u.Email, &u.PasswordHash,
			&u.AvatarURL, &u.LastSeen, &u.CreatedAt, &u.UpdatedAt,
		); err != nil {
			return nil, err
		}
		friends = append(friends, u)
	}
	return friends, rows.Err()
}

// CreateFriendRequest creates a pending friend request.
func (s *PostgresStore) CreateFriendRequest(ctx context.Context, sender, receiver uuid.UUID) (*models.FriendRequest, error) {
	defer observe(time.Now())

	req := &models.FriendRequest{}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO friend_requests (sender, receiver)
		VALUES ($1, $2)
		RETURNING id, sender, receiver, created_at
	`, sender, receiver).Scan(&req.ID, &req.SenderID, &req.ReceiverID, &req.CreatedAt)
	if err != nil {
		return nil, err
	}
	return req, nil
}

// GetFriendRequest retrieves a friend request by ID. Returns nil if not found.
func (s *PostgresStore) GetFriendRequest(ctx context.Context, id uuid.UUID) (*models.FriendRequest, error) {
	defer observe(time.Now())

	req := &models.FriendRequest{}
	err := s.pool.QueryRow(ctx, `
		SELECT id, sender, receiver, created_at FROM friend_requests WHERE id = $1
	`, id).Scan(&req.ID, &req.SenderID, &req.ReceiverID, &req.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return req, nil
}

// DeleteFriendRequest removes a friend request. Idempotent.
func (s *PostgresStore) DeleteFriendRequest(ctx context.Context, id uuid.UUID) error {
	defer observe(time.Now())

	_, err := s.pool.Exec(ctx, `DELETE FROM friend_requests WHERE id = $1`, id)
	return err
}

// ListFriendRequests returns pending requests addressed to receiver.
func (s *PostgresStore) ListFriendRequests(ctx context.Context, receiver uuid.UUID) ([]models.FriendRequest, error) {
	defer observe(time.Now())

	rows, err := s.pool.Query(ctx, `
		SELECT id, sender, receiver, created_at
		FROM friend_requests WHERE receiver = $1
		ORDER BY created_at DESC
	`, receiver)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var requests []models.FriendRequest
	for rows.Next() {
		var r models.FriendRequest
		if err := rows.Scan(&r.ID, &r.SenderID, &r.ReceiverID, &r.CreatedAt); err != nil {
			return nil, err
		}
		requests = append(requests, r)
	}
	return requests, rows.Err()
}

// CreateMessage appends a new message record. Creation order assigned
// here is the authoritative message order for a conversation.
func (s *PostgresStore) CreateMessage(ctx context.Context, msg *models.Message) error {
	defer observe(time.Now())

	return s.pool.QueryRow(ctx, `
		INSERT INTO messages (
			id, conversation_id, sender, receiver, type,
			body, media_url, thumbnail_url, file_name, file_size, duration,
			link_title, link_image
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING created_at
	`,
		msg.ID, msg.ConversationID, msg.SenderID, msg.ReceiverID, string(msg.Type),
		msg.Body, msg.MediaURL, msg.ThumbnailURL, msg.FileName, msg.FileSize, msg.Duration,
		msg.LinkTitle, msg.LinkImage,
	).Scan(&msg.CreatedAt)
}

func scanMessage(row pgx.Row) (*models.Message, error) {
	msg := &models.Message{}
	err := row.Scan(
		&msg.ID, &msg.ConversationID, &msg.SenderID, &msg.ReceiverID, &msg.Type,
		&msg.Body, &msg.MediaURL, &msg.ThumbnailURL, &msg.FileName, &msg.FileSize, &msg.Duration,
		&msg.LinkTitle, &msg.LinkImage,
		&msg.IsRead, &msg.ReadAt, &msg.IsDeleted, &msg.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return msg, nil
}

const messageColumns = `
	id, conversation_id, sender::text, receiver::text, type,
	body, media_url, thumbnail_url, file_name, file_size, duration,
	link_title, link_image,
	is_read, read_at, is_deleted, created_at`

// GetMessage retrieves a message by ID. Returns nil if not found.
func (s *PostgresStore) GetMessage(ctx context.Context, id string) (*models.Message, error) {
	defer observe(time.Now())

	return scanMessage(s.pool.QueryRow(ctx, `
		SELECT `+messageColumns+` FROM messages WHERE id = $1
	`, id))
}

// GetMessageMeta retrieves the constant-field projection of a message.
// Returns nil if not found.
func (s *PostgresStore) GetMessageMeta(ctx context.Context, id string) (*models.MessageMeta, error) {
	defer observe(time.Now())

	meta := &models.MessageMeta{}
	err := s.pool.QueryRow(ctx, `
		SELECT id, conversation_id, sender::text, receiver::text, is_read, read_at, is_deleted
		FROM messages WHERE id = $1
	`, id).Scan(
		&meta.ID, &meta.ConversationID, &meta.SenderID, &meta.ReceiverID,
		&meta.IsRead, &meta.ReadAt, &meta.IsDeleted,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return meta, nil
}

// MarkMessageRead flips is_read iff receiver matches and the message is
// unread. The conditional update makes repeated marks idempotent: the
// second attempt matches no row and reports false.
func (s *PostgresStore) MarkMessageRead(ctx context.Context, id string, receiver uuid.UUID, at time.Time) (bool, error) {
	defer observe(time.Now())

	tag, err := s.pool.Exec(ctx, `
		UPDATE messages SET is_read = true, read_at = $3
		WHERE id = $1 AND receiver = $2 AND is_read = false AND is_deleted = false
	`, id, receiver, at)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// SoftDeleteMessage flags the message deleted iff sender owns it. The
// row is kept; only the flag flips.
func (s *PostgresStore) SoftDeleteMessage(ctx context.Context, id string, sender uuid.UUID) (*models.Message, error) {
	defer observe(time.Now())

	msg, err := s.GetMessage(ctx, id)
	if err != nil || msg == nil {
		return nil, err
	}
	if msg.SenderID != sender.String() || msg.IsDeleted {
		return nil, nil
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE messages SET is_deleted = true
		WHERE id = $1 AND sender = $2 AND is_deleted = false
	`, id, sender)
	if err != nil {
		return nil, err
	}
	if tag.RowsAffected() == 0 {
		return nil, nil
	}
	return msg, nil
}

// ListConversationMessages returns messages for a conversation, newest
// first, excluding soft-deleted ones.
func (s *PostgresStore) ListConversationMessages(ctx context.Context, conversationID string, limit int, before time.Time) ([]models.Message, error) {
	defer observe(time.Now())

	if limit <= 0 {
		limit = 50
	}
	if before.IsZero() {
		before = time.Now().Add(time.Minute)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE conversation_id = $1 AND is_deleted = false AND created_at < $2
		ORDER BY created_at DESC
		LIMIT $3
	`, conversationID, before, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []models.Message
	for rows.Next() {
		var msg models.Message
		if err := rows.Scan(
			&msg.ID, &msg.ConversationID, &msg.SenderID, &msg.ReceiverID, &msg.Type,
			&msg.Body, &msg.MediaURL, &msg.ThumbnailURL, &msg.FileName, &msg.FileSize, &msg.Duration,
			&msg.LinkTitle, &msg.LinkImage,
			&msg.IsRead, &msg.ReadAt, &msg.IsDeleted, &msg.CreatedAt,
		); err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}
