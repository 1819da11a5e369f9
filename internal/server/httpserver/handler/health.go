package handler

import (
	"net/http"
	"time"

	"github.com/yndnr/roomrelay/internal/core/domain"
)

func healthNow(status string) HealthResponse {
	return HealthResponse{Status: status, Time: time.Now().UTC().Format(time.RFC3339)}
}

// handleHealth handles GET /health. It only proves the process serves HTTP.
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, r, http.StatusOK, healthNow("healthy"))
}

// handleReady handles GET /ready: ready once the coordination store answers.
func (h *Handler) handleReady(w http.ResponseWriter, r *http.Request) {
	if h.ready != nil {
		if err := h.ready.Ping(r.Context()); err != nil {
			h.handleServiceError(w, r, domain.ErrStoreUnavailable.WithDetails("ping").WithCause(err))
			return
		}
	}
	h.writeJSON(w, r, http.StatusOK, healthNow("ready"))
}
