package handler

import (
	"net/http"
	"time"
)

// HealthHandler serves the health-check endpoint.
type HealthHandler struct {
	realPrices bool
	startedAt  time.Time
}

// NewHealthHandler creates a HealthHandler. realPrices reports whether live
// provider fetching is enabled or the daemon is serving synthetic prices.
func NewHealthHandler(realPrices bool, startedAt time.Time) *HealthHandler {
	if startedAt.IsZero() {
		startedAt = time.Now().UTC()
	}
	return &HealthHandler{realPrices: realPrices, startedAt: startedAt}
}

// HealthCheck responds with the daemon's status and price mode.
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	mode := "synthetic"
	if h.realPrices {
		mode = "real"
	}

	uptime := int64(time.Since(h.startedAt).Seconds())
	if uptime < 0 {
		uptime = 0
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"mode":           mode,
		"uptime_seconds": uptime,
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
	})
}
