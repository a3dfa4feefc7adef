package http

import (
	"context"
	"net/http"
	"time"

	"github.com/dnevnik-hub/dnevnik-homework-bot/internal/application/query"
	"github.com/dnevnik-hub/dnevnik-homework-bot/pkg/logger"
)

// readinessCheckTimeout bounds each dependency probe so a stuck store or a
// slow Telegram API cannot hang the readiness endpoint.
const readinessCheckTimeout = 3 * time.Second

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH & STATUS HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleRoot serves the root endpoint with basic service information.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	// "GET /" matches every path the mux knows nothing about.
	if r.URL.Path != "/" {
		writeJSONError(w, http.StatusNotFound, "not_found", "Unknown endpoint")
		return
	}

	info := map[string]interface{}{
		"name":        "dnevnik-homework-bot",
		"version":     "v1",
		"description": "Telegram bot serving school homework from the regional diary",
		"endpoints": map[string]string{
			"health":  "/health",
			"ready":   "/ready",
			"live":    "/live",
			"metrics": "/metrics",
			"stats":   "/api/v1/stats",
		},
	}

	writeJSON(w, http.StatusOK, info)
}

// handleHealth handles the health check endpoint.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "healthy",
		"uptime":  s.Uptime().String(),
		"version": "v1",
	})
}

// handleLive handles the liveness probe endpoint.
// It reports only that the process serves requests.
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "alive",
	})
}

// handleReady handles the readiness probe endpoint (for Kubernetes).
// Not ready means the key store cannot be read or Telegram is unreachable.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readinessCheckTimeout)
	defer cancel()

	checks := make(map[string]string)
	ready := true

	if s.deps.Store != nil {
		if _, err := s.deps.Store.CountUsers(ctx); err != nil {
			checks["store"] = "failed: " + err.Error()
			ready = false
		} else {
			checks["store"] = "ok"
		}
	}

	if s.deps.Telegram != nil {
		if s.deps.Telegram.IsHealthy(ctx) {
			checks["telegram"] = "ok"
		} else {
			checks["telegram"] = "unreachable"
			ready = false
		}
	}

	status := http.StatusOK
	state := "ready"
	if !ready {
		status = http.StatusServiceUnavailable
		state = "not_ready"
	}

	writeJSON(w, status, map[string]interface{}{
		"status": state,
		"checks": checks,
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// STATUS API
// ══════════════════════════════════════════════════════════════════════════════

// handleStats handles GET /api/v1/stats.
// Returns access key counters and bot runtime statistics.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	data := make(map[string]interface{})

	if s.deps.AccessStats != nil {
		result, err := s.deps.AccessStats.Handle(r.Context(), query.GetAccessStatsQuery{})
		if err != nil {
			s.logger.Error("access stats query failed",
				logger.Err(err),
				logger.String("request_id", getRequestID(r.Context())),
			)
			writeJSONError(w, http.StatusInternalServerError, "stats_unavailable", "Failed to read access statistics")
			return
		}
		data["access"] = result
	}

	if s.deps.BotStats != nil {
		data["bot"] = s.deps.BotStats()
	}

	writeJSON(w, http.StatusOK, data)
}
