package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/Dhruv-158/Backend-chatter/internal/conversation"
	"github.com/Dhruv-158/Backend-chatter/internal/models"
)

// SQLiteStore handles SQLite database operations. It is the
// development fallback when no DATABASE_URL is configured.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store.
// If dbPath is empty, defaults to "./data/chatter.db".
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		dbPath = "./data/chatter.db"
	}

	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, err
	}

	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(ctx); err != nil {
		return nil, err
	}

	return store, nil
}

// initSchema creates tables if they don't exist.
func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		username TEXT UNIQUE NOT NULL,
		email TEXT UNIQUE NOT NULL,
		password_hash TEXT NOT NULL,
		avatar_url TEXT NOT NULL DEFAULT '',
		last_seen TIMESTAMP,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS friendships (
		conversation_id TEXT PRIMARY KEY,
		user_a TEXT NOT NULL REFERENCES users(id),
		user_b TEXT NOT NULL REFERENCES users(id),
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_friendships_user_a ON friendships(user_a);
	CREATE INDEX IF NOT EXISTS idx_friendships_user_b ON friendships(user_b);

	CREATE TABLE IF NOT EXISTS friend_requests (
		id TEXT PRIMARY KEY,
		sender TEXT NOT NULL REFERENCES users(id),
		receiver TEXT NOT NULL REFERENCES users(id),
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		UNIQUE (sender, receiver)
	);

	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		conversation_id TEXT NOT NULL,
		sender TEXT NOT NULL REFERENCES users(id),
		receiver TEXT NOT NULL REFERENCES users(id),
		type TEXT NOT NULL,
		body TEXT NOT NULL DEFAULT '',
		media_url TEXT NOT NULL DEFAULT '',
		thumbnail_url TEXT NOT NULL DEFAULT '',
		file_name TEXT NOT NULL DEFAULT '',
		file_size INTEGER NOT NULL DEFAULT 0,
		duration INTEGER NOT NULL DEFAULT 0,
		link_title TEXT NOT NULL DEFAULT '',
		link_image TEXT NOT NULL DEFAULT '',
		is_read INTEGER NOT NULL DEFAULT 0,
		read_at TIMESTAMP,
		is_deleted INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_messages_conversation
		ON messages(conversation_id, created_at DESC);
	`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Close closes the database.
func (s *SQLiteStore) Close() {
	s.db.Close()
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// CreateUser creates a new user record.
func (s *SQLiteStore) CreateUser(ctx context.Context, username, email, passwordHash string) (*models.User, error) {
	id := uuid.New()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, username, email, password_hash, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, id.String(), username, email, passwordHash, now, now)
	if err != nil {
		return nil, err
	}

	return &models.User{
		ID:           id,
		Username:     username,
		Email:        email,
		PasswordHash: passwordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

func (s *SQLiteStore) getUser(ctx context.Context, where string, arg interface{}) (*models.User, error) {
	user := &models.User{}
	var id string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, username, email, password_hash, avatar_url, last_seen, created_at, updated_at
		FROM users WHERE `+where, arg).Scan(
		&id, &user.Username, &user.Email, &user.PasswordHash,
		&user.AvatarURL, &user.LastSeen, &user.CreatedAt, &user.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	user.ID, err = uuid.Parse(id)
	if err != nil {
		return nil, err
	}
	return user, nil
}

// GetUserByID retrieves a user by ID. Returns nil if not found.
func (s *SQLiteStore) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return s.getUser(ctx, "id = ?", id.String())
}

// GetUserByEmail retrieves a user by email. Returns nil if not found.
func (s *SQLiteStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.getUser(ctx, "email = ?", email)
}

// UpdateLastSeen records the user's last activity timestamp.
func (s *SQLiteStore) UpdateLastSeen(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users SET last_seen = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?
	`, at.UTC(), id.String())
	return err
}

// AreFriends reports whether a friendship exists between the two users.
func (s *SQLiteStore) AreFriends(ctx context.Context, a, b uuid.UUID) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(1) FROM friendships WHERE conversation_id = ?
	`, conversation.ID(a.String(), b.String())).Scan(&n)
	return n > 0, err
}

// AddFriendship records a friendship. Adding an existing pair is a no-op.
func (s *SQLiteStore) AddFriendship(ctx context.Context, a, b uuid.UUID) error {
	userA, userB := a.String(), b.String()
	if userB < userA {
		userA, userB = userB, userA
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO friendships (conversation_id, user_a, user_b)
		VALUES (?, ?, ?)
	`, conversation.ID(userA, userB), userA, userB)
	return err
}

// ListFriends returns all users the given user is friends with.
func (s *SQLiteStore) ListFriends(ctx context.Context, id uuid.UUID) ([]models.User, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT u.id, u.username, u.email, u.password_hash, u.avatar_url, u.last_seen, u.created_at, u.updated_at
		FROM friendships f
		JOIN users u ON u.id = CASE WHEN f.user_a = ?1 THEN f.user_b ELSE f.user_a END
		WHERE f.user_a = ?1 OR f.user_b = ?1
		ORDER BY u.username
	`, id.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var friends []models.User
	for rows.Next() {
		var u models.User
		var uid string
		if err := rows.Scan(
			&uid, &u.Username, &u.Email, &u.PasswordHash,
			&u.AvatarURL, &u.LastSeen, &u.CreatedAt, &u.UpdatedAt,
		); err != nil {
			return nil, err
		}
		if u.ID, err = uuid.Parse(uid); err != nil {
			return nil, err
		}
		friends = append(friends, u)
	}
	return friends, rows.Err()
}

// CreateFriendRequest creates a pending friend request.
func (s *SQLiteStore) CreateFriendRequest(ctx context.Context, sender, receiver uuid.UUID) (*models.FriendRequest, error) {
	req := &models.FriendRequest{
		ID:         uuid.New(),
		SenderID:   sender,
		ReceiverID: receiver,
		CreatedAt:  time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO friend_requests (id, sender, receiver, created_at)
		VALUES (?, ?, ?, ?)
	`, req.ID.String(), sender.String(), receiver.String(), req.CreatedAt)
	if err != nil {
		return nil, err
	}
	return req, nil
}

// GetFriendRequest retrieves a friend request by ID. Returns nil if not found.
func (s *SQLiteStore) GetFriendRequest(ctx context.Context, id uuid.UUID) (*models.FriendRequest, error) {
	var reqID, sender, receiver string
	req := &models.FriendRequest{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, sender, receiver, created_at FROM friend_requests WHERE id = ?
	`, id.String()).Scan(&reqID, &sender, &receiver, &req.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if req.ID, err = uuid.Parse(reqID); err != nil {
		return nil, err
	}
	if req.SenderID, err = uuid.Parse(sender); err != nil {
		return nil, err
	}
	if req.ReceiverID, err = uuid.Parse(receiver); err != nil {
		return nil, err
	}
	return req, nil
}

// DeleteFriendRequest removes a friend request. Idempotent.
func (s *SQLiteStore) DeleteFriendRequest(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM friend_requests WHERE id = ?`, id.String())
	return err
}

// ListFriendRequests returns pending requests addressed to receiver.
func (s *SQLiteStore) ListFriendRequests(ctx context.Context, receiver uuid.UUID) ([]models.FriendRequest, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sender, receiver, created_at
		FROM friend_requests WHERE receiver = ?
		ORDER BY created_at DESC
	`, receiver.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var requests []models.FriendRequest
	for rows.Next() {
		var reqID, sender, recv string
		var r models.FriendRequest
		if err := rows.Scan(&reqID, &sender, &recv, &r.CreatedAt); err != nil {
			return nil, err
		}
		if r.ID, err = uuid.Parse(reqID); err != nil {
			return nil, err
		}
		if r.SenderID, err = uuid.Parse(sender); err != nil {
			return nil, err
		}
		if r.ReceiverID, err = uuid.Parse(recv); err != nil {
			return nil, err
		}
		requests = append(requests, r)
	}
	return requests, rows.Err()
}

// CreateMessage appends a new message record.
func (s *SQLiteStore) CreateMessage(ctx context.Context, msg *models.Message) error {
	msg.CreatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (
			id, conversation_id, sender, receiver, type,
			body, media_url, thumbnail_url, file_name, file_size, duration,
			link_title, link_image, created_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		msg.ID, msg.ConversationID, msg.SenderID, msg.ReceiverID, string(msg.Type),
		msg.Body, msg.MediaURL, msg.ThumbnailURL, msg.FileName, msg.FileSize, msg.Duration,
		msg.LinkTitle, msg.LinkImage, msg.CreatedAt,
	)
	return err
}

const sqliteMessageColumns = `
	id, conversation_id, sender, receiver, type,
	body, media_url, thumbnail_url, file_name, file_size, duration,
	link_title, link_image,
	is_read, read_at, is_deleted, created_at`

func scanSQLiteMessage(row *sql.Row) (*models.Message, error) {
	msg := &models.Message{}
	err := row.Scan(
		&msg.ID, &msg.ConversationID, &msg.SenderID, &msg.ReceiverID, &msg.Type,
		&msg.Body, &msg.MediaURL, &msg.ThumbnailURL, &msg.FileName, &msg.FileSize, &msg.Duration,
		&msg.LinkTitle, &msg.LinkImage,
		&msg.IsRead, &msg.ReadAt, &msg.IsDeleted, &msg.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// GetMessage retrieves a message by ID. Returns nil if not found.
func (s *SQLiteStore) GetMessage(ctx context.Context, id string) (*models.Message, error) {
	return scanSQLiteMessage(s.db.QueryRowContext(ctx, `
		SELECT `+sqliteMessageColumns+` FROM messages WHERE id = ?
	`, id))
}

// GetMessageMeta retrieves the constant-field projection of a message.
func (s *SQLiteStore) GetMessageMeta(ctx context.Context, id string) (*models.MessageMeta, error) {
	meta := &models.MessageMeta{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, conversation_id, sender, receiver, is_read, read_at, is_deleted
		FROM messages WHERE id = ?
	`, id).Scan(
		&meta.ID, &meta.ConversationID, &meta.SenderID, &meta.ReceiverID,
		&meta.IsRead, &meta.ReadAt, &meta.IsDeleted,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return meta, nil
}

// MarkMessageRead flips is_read iff receiver matches and the message is
// unread. Returns whether the update applied.
func (s *SQLiteStore) MarkMessageRead(ctx context.Context, id string, receiver uuid.UUID, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE messages SET is_read = 1, read_at = ?
		WHERE id = ? AND receiver = ? AND is_read = 0 AND is_deleted = 0
	`, at.UTC(), id, receiver.String())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// SoftDeleteMessage flags the message deleted iff sender owns it.
func (s *SQLiteStore) SoftDeleteMessage(ctx context.Context, id string, sender uuid.UUID) (*models.Message, error) {
	msg, err := s.GetMessage(ctx, id)
	if err != nil || msg == nil {
		return nil, err
	}
	if msg.SenderID != sender.String() || msg.IsDeleted {
		return nil, nil
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE messages SET is_deleted = 1
		WHERE id = ? AND sender = ? AND is_deleted = 0
	`, id, sender.String())
	if err != nil {
		return nil, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	return msg, nil
}

// ListConversationMessages returns messages for a conversation, newest
// first, excluding soft-deleted ones.
func (s *SQLiteStore) ListConversationMessages(ctx context.Context, conversationID string, limit int, before time.Time) ([]models.Message, error) {
	if limit <= 0 {
		limit = 50
	}
	if before.IsZero() {
		before = time.Now().Add(time.Minute)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+sqliteMessageColumns+`
		FROM messages
		WHERE conversation_id = ? AND is_deleted = 0 AND created_at < ?
		ORDER BY created_at DESC
		LIMIT ?
	`, conversationID, before.UTC(), limit)
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
