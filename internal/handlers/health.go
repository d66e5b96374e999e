package handlers

import (
	"context"
	"net/http"
	"time"
)

// HealthChecker pings the backing stores. A nil entry in the result means
// healthy.
type HealthChecker func(ctx context.Context) map[string]error

// Health handles GET /health. Stores that fail their ping turn the reply
// into a 503 but every store is still reported.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	components := map[string]string{}
	healthy := true
	if h.Checks != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		for name, err := range h.Checks(ctx) {
			if err != nil {
				components[name] = err.Error()
				healthy = false
				continue
			}
			components[name] = "ok"
		}
	}
	status := http.StatusOK
	message := "Server is running"
	if !healthy {
		status = http.StatusServiceUnavailable
		message = "Degraded"
	}
	writeJSON(w, status, envelope{
		"success":    healthy,
		"message":    message,
		"components": components,
	})
}
