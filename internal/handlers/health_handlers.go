package handlers

import (
	"context"
	"net/http"
	"time"

	"whiteboard/internal/database"
	"whiteboard/pkg/logger"
)

type HealthHandlers struct {
	db database.Database
}

func NewHealthHandlers(db database.Database) *HealthHandlers {
	return &HealthHandlers{db: db}
}

func (h *HealthHandlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Ready reports whether the persistence backend answers.
func (h *HealthHandlers) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.db.Ping(ctx); err != nil {
		logger.Warn("Readiness check failed: %v", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
