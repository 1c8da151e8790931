package gateway

import (
	"sync"

	"github.com/Dhruv-158/Backend-chatter/internal/metrics"
)

// Hub owns this process's mapping from userID to active session. At
// most one session per user per process: a second connection replaces
// the prior mapping entry. All mutations are single-step operations
// under the lock; there are no check-then-act sequences for callers to
// race on.
type Hub struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	current int
	peak    int
	total   int
}

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{sessions: make(map[string]*Session)}
}

// Register inserts the session, returning the session it replaced (to
// be closed by the caller) or nil.
func (h *Hub) Register(s *Session) *Session {
	h.mu.Lock()
	defer h.mu.Unlock()

	replaced := h.sessions[s.UserID]
	h.sessions[s.UserID] = s

	h.total++
	h.current = len(h.sessions)
	if h.current > h.peak {
		h.peak = h.current
	}

	metrics.ConnectionsTotal.Inc()
	metrics.ConnectionsCurrent.Set(float64(h.current))
	metrics.ConnectionsPeak.Set(float64(h.peak))

	return replaced
}

// Unregister removes the session iff it is still the current mapping
// for its user. Reports whether removal happened; false means the
// session was already replaced and the replacement owns the shared
// presence state.
func (h *Hub) Unregister(s *Session) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.sessions[s.UserID] != s {
		return false
	}
	delete(h.sessions, s.UserID)
	h.current = len(h.sessions)
	metrics.ConnectionsCurrent.Set(float64(h.current))
	return true
}

// Get returns the session for userID, or nil.
func (h *Hub) Get(userID string) *Session {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.sessions[userID]
}

// SendToUser delivers an event to userID's local session if present.
func (h *Hub) SendToUser(userID, event string, data interface{}) bool {
	h.mu.RLock()
	s := h.sessions[userID]
	h.mu.RUnlock()
	if s == nil {
		return false
	}
	return s.Send(event, data)
}

// Broadcast delivers an event to every local session.
func (h *Hub) Broadcast(event string, data interface{}) {
	h.mu.RLock()
	sessions := make([]*Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.mu.RUnlock()

	for _, s := range sessions {
		s.Send(event, data)
	}
}

// Counts returns the current, peak, and total connection counts.
func (h *Hub) Counts() (current, peak, total int) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.current, h.peak, h.total
}
