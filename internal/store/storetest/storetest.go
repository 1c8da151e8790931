// Package storetest provides an in-memory DataStore used by tests.
package storetest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Dhruv-158/Backend-chatter/internal/conversation"
	"github.com/Dhruv-158/Backend-chatter/internal/models"
)

// Store is an in-memory DataStore. Safe for concurrent use.
type Store struct {
	mu          sync.Mutex
	users       map[uuid.UUID]*models.User
	friendships map[string]bool // conversation key → exists
	requests    map[uuid.UUID]*models.FriendRequest
	messages    map[string]*models.Message

	// FailWith, when set, makes every operation return this error.
	FailWith error
}

// New returns an empty in-memory store.
func New() *Store {
	return &Store{
		users:       make(map[uuid.UUID]*models.User),
		friendships: make(map[string]bool),
		requests:    make(map[uuid.UUID]*models.FriendRequest),
		messages:    make(map[string]*models.Message),
	}
}

func (s *Store) Close()                        {}
func (s *Store) Ping(ctx context.Context) error { return s.FailWith }

// AddUser seeds a user and returns it.
func (s *Store) AddUser(username string) *models.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := &models.User{
		ID:        uuid.New(),
		Username:  username,
		Email:     username + "@example.com",
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	s.users[u.ID] = u
	return u
}

// Befriend seeds a friendship.
func (s *Store) Befriend(a, b uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.friendships[conversation.ID(a.String(), b.String())] = true
}

func (s *Store) CreateUser(ctx context.Context, username, email, passwordHash string) (*models.User, error) {
	if s.FailWith != nil {
		return nil, s.FailWith
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == email || u.Username == username {
			return nil, fmt.Errorf("storetest: duplicate user %s", username)
		}
	}
	u := &models.User{
		ID:           uuid.New(),
		Username:     username,
		Email:        email,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}
	s.users[u.ID] = u
	return u, nil
}

func (s *Store) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	if s.FailWith != nil {
		return nil, s.FailWith
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, nil
	}
	copied := *u
	return &copied, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	if s.FailWith != nil {
		return nil, s.FailWith
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == email {
			copied := *u
			return &copied, nil
		}
	}
	return nil, nil
}

func (s *Store) UpdateLastSeen(ctx context.Context, id uuid.UUID, at time.Time) error {
	if s.FailWith != nil {
		return s.FailWith
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[id]; ok {
		u.LastSeen = &at
	}
	return nil
}

func (s *Store) AreFriends(ctx context.Context, a, b uuid.UUID) (bool, error) {
	if s.FailWith != nil {
		return false, s.FailWith
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.friendships[conversation.ID(a.String(), b.String())], nil
}

func (s *Store) AddFriendship(ctx context.Context, a, b uuid.UUID) error {
	if s.FailWith != nil {
		return s.FailWith
	}
	s.Befriend(a, b)
	return nil
}

func (s *Store) ListFriends(ctx context.Context, id uuid.UUID) ([]models.User, error) {
	if s.FailWith != nil {
		return nil, s.FailWith
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var friends []models.User
	for _, u := range s.users {
		if u.ID == id {
			continue
		}
		if s.friendships[conversation.ID(id.String(), u.ID.String())] {
			friends = append(friends, *u)
		}
	}
	sort.Slice(friends, func(i, j int) bool { return friends[i].Username < friends[j].Username })
	return friends, nil
}

func (s *Store) CreateFriendRequest(ctx context.Context, sender, receiver uuid.UUID) (*models.FriendRequest, error) {
	if s.FailWith != nil {
		return nil, s.FailWith
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	req := &models.FriendRequest{
		ID:         uuid.New(),
		SenderID:   sender,
		ReceiverID: receiver,
		CreatedAt:  time.Now(),
	}
	s.requests[req.ID] = req
	return req, nil
}

func (s *Store) GetFriendRequest(ctx context.Context, id uuid.UUID) (*models.FriendRequest, error) {
	if s.FailWith != nil {
		return nil, s.FailWith
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[id]
	if !ok {
		return nil, nil
	}
	copied := *req
	return &copied, nil
}

func (s *Store) DeleteFriendRequest(ctx context.Context, id uuid.UUID) error {
	if s.FailWith != nil {
		return s.FailWith
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.requests, id)
	return nil
}

func (s *Store) ListFriendRequests(ctx context.Context, receiver uuid.UUID) ([]models.FriendRequest, error) {
	if s.FailWith != nil {
		return nil, s.FailWith
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var requests []models.FriendRequest
	for _, r := range s.requests {
		if r.ReceiverID == receiver {
			requests = append(requests, *r)
		}
	}
	return requests, nil
}

func (s *Store) CreateMessage(ctx context.Context, msg *models.Message) error {
	if s.FailWith != nil {
		return s.FailWith
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	copied := *msg
	s.messages[msg.ID] = &copied
	return nil
}

func (s *Store) GetMessage(ctx context.Context, id string) (*models.Message, error) {
	if s.FailWith != nil {
		return nil, s.FailWith
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	msg, ok := s.messages[id]
	if !ok {
		return nil, nil
	}
	copied := *msg
	return &copied, nil
}

func (s *Store) GetMessageMeta(ctx context.Context, id string) (*models.MessageMeta, error) {
	if s.FailWith != nil {
		return nil, s.FailWith
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	msg, ok := s.messages[id]
	if !ok {
		return nil, nil
	}
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

func (s *Store) MarkMessageRead(ctx context.Context, id string, receiver uuid.UUID, at time.Time) (bool, error) {
	if s.FailWith != nil {
		return false, s.FailWith
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	msg, ok := s.messages[id]
	if !ok || msg.ReceiverID != receiver.String() || msg.IsRead || msg.IsDeleted {
		return false, nil
	}
	msg.IsRead = true
	msg.ReadAt = &at
	return true, nil
}

func (s *Store) SoftDeleteMessage(ctx context.Context, id string, sender uuid.UUID) (*models.Message, error) {
	if s.FailWith != nil {
		return nil, s.FailWith
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	msg, ok := s.messages[id]
	if !ok || msg.SenderID != sender.String() || msg.IsDeleted {
		return nil, nil
	}
	copied := *msg
	msg.IsDeleted = true
	return &copied, nil
}

func (s *Store) ListConversationMessages(ctx context.Context, conversationID string, limit int, before time.Time) ([]models.Message, error) {
	if s.FailWith != nil {
		return nil, s.FailWith
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit <= 0 {
		limit = 50
	}
	var messages []models.Message
	for _, m := range s.messages {
		if m.ConversationID != conversationID || m.IsDeleted {
			continue
		}
		if !before.IsZero() && !m.CreatedAt.Before(before) {
			continue
		}
		messages = append(messages, *m)
	}
	sort.Slice(messages, func(i, j int) bool { return messages[i].CreatedAt.After(messages[j].CreatedAt) })
	if len(messages) > limit {
		messages = messages[:limit]
	}
	return messages, nil
}
