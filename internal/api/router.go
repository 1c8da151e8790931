package api

import (
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/Dhruv-158/Backend-chatter/internal/api/middleware"
	"github.com/Dhruv-158/Backend-chatter/internal/auth"
	"github.com/Dhruv-158/Backend-chatter/internal/gateway"
	"github.com/Dhruv-158/Backend-chatter/internal/handlers"
)

// NewRouter creates and configures the HTTP router.
func NewRouter(logger zerolog.Logger, h *handlers.Handler, gw *gateway.Gateway, a *auth.Authenticator) *chi.Mux {
	r := chi.NewRouter()

	// Metrics middleware (first to capture all requests)
	r.Use(middleware.Metrics)

	// Standard middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(chimw.Recoverer)

	// CORS - browser clients connect from anywhere
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Metrics endpoint (for Prometheus scraping)
	r.Handle("/metrics", promhttp.Handler())

	// Public routes (no auth required)
	r.Get("/health", h.Health)
	r.Post("/register", h.Register)
	r.Post("/login", h.Login)
	r.Post("/refresh", h.Refresh)
	r.Post("/logout", h.Logout)

	// Gateway handshake; the bearer token travels in the query string
	// or Authorization header and is checked before the upgrade.
	r.Get("/ws", gw.HandleWS)

	// Authenticated routes
	authmw := middleware.NewAuthMiddleware(a)
	r.Group(func(r chi.Router) {
		r.Use(authmw.RequireAuth)

		r.Post("/messages", h.SendMessage)
		r.Get("/messages/{friendID}", h.GetMessages)

		r.Get("/friends", h.ListFriends)
		r.Get("/friends/requests", h.ListFriendRequests)
		r.Post("/friends/request", h.CreateFriendRequest)
		r.Post("/friends/accept", h.AcceptFriendRequest)
		r.Delete("/friends/request/{id}", h.DeclineFriendRequest)
	})

	return r
}
