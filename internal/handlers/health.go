package handlers

import (
	"context"
	"net/http"
	"time"
)

const version = "1.0.0"

// Check represents the status of a health check.
type Check struct {
	Status  string `json:"status"`            // "pass" or "fail"
	Latency string `json:"latency,omitempty"` // e.g., "2ms"
	Message string `json:"message,omitempty"`
}

// ConnectionStats is the operator-facing connection surface.
type ConnectionStats struct {
	Current int `json:"current"`
	Peak    int `json:"peak"`
	Total   int `json:"total"`
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status      string           `json:"status"` // "healthy" or "degraded"
	Version     string           `json:"version"`
	Connections ConnectionStats  `json:"connections"`
	OnlineUsers int              `json:"online_users"`
	Checks      map[string]Check `json:"checks"`
	Timestamp   string           `json:"timestamp"`
}

// Health handles the health check endpoint.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	checks := make(map[string]Check)
	allHealthy := true

	// Check the store
	storeStart := time.Now()
	if err := h.store.Ping(ctx); err != nil {
		checks["store"] = Check{Status: "fail", Message: "connection failed"}
		allHealthy = false
	} else {
		checks["store"] = Check{Status: "pass", Latency: time.Since(storeStart).String()}
	}

	// Check the backbone. A degraded backbone is reported but does not
	// fail the process; it keeps serving local connections.
	backboneStart := time.Now()
	if err := h.backbone.Ping(ctx); err != nil {
		checks["backbone"] = Check{Status: "fail", Message: "connection failed"}
		allHealthy = false
	} else {
		checks["backbone"] = Check{Status: "pass", Latency: time.Since(backboneStart).String()}
	}

	status := "healthy"
	statusCode := http.StatusOK
	if !allHealthy {
		status = "degraded"
		statusCode = http.StatusServiceUnavailable
	}

	current, peak, total := h.hub.Counts()

	resp := HealthResponse{
		Status:      status,
		Version:     version,
		Connections: ConnectionStats{Current: current, Peak: peak, Total: total},
		OnlineUsers: h.presence.Count(ctx),
		Checks:      checks,
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
	}

	h.JSON(w, statusCode, resp)
}
