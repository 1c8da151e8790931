package handlers

import (
	"encoding/json"
	"net/http"
	"regexp"
	"strings"
	"unicode"

	"github.com/rs/zerolog"

	"github.com/Dhruv-158/Backend-chatter/internal/auth"
	"github.com/Dhruv-158/Backend-chatter/internal/backbone"
	"github.com/Dhruv-158/Backend-chatter/internal/gateway"
	"github.com/Dhruv-158/Backend-chatter/internal/presence"
	"github.com/Dhruv-158/Backend-chatter/internal/relay"
	"github.com/Dhruv-158/Backend-chatter/internal/store"
)

// emailRegex validates email addresses per RFC 5322 (simplified).
var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

// Handler contains shared dependencies for all HTTP handlers.
type Handler struct {
	store    store.DataStore
	backbone backbone.Backbone
	auth     *auth.Authenticator
	relay    *relay.Relay
	presence *presence.Registry
	hub      *gateway.Hub
	logger   zerolog.Logger
}

// NewHandler creates a new Handler with the given dependencies.
func NewHandler(ds store.DataStore, b backbone.Backbone, a *auth.Authenticator, rl *relay.Relay, reg *presence.Registry, hub *gateway.Hub, logger zerolog.Logger) *Handler {
	return &Handler{store: ds, backbone: b, auth: a, relay: rl, presence: reg, hub: hub, logger: logger}
}

// JSON sends a JSON response with the given status code.
func (h *Handler) JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// Error sends a JSON error response with the given status code.
func (h *Handler) Error(w http.ResponseWriter, status int, message string) {
	h.JSON(w, status, map[string]string{"error": message})
}

// sanitizeUsername trims and limits a username to 100 characters,
// removing control characters.
func sanitizeUsername(name string) string {
	name = strings.TrimSpace(name)

	// Remove control characters
	name = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, name)

	// Limit to 100 characters
	if len(name) > 100 {
		name = name[:100]
	}

	return name
}

// isValidEmail validates email addresses using RFC 5322 pattern.
func isValidEmail(email string) bool {
	if len(email) == 0 || len(email) > 254 {
		return false
	}
	return emailRegex.MatchString(email)
}
