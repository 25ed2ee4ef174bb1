package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"whiteboard/internal/database"
	"whiteboard/internal/models"
	"whiteboard/internal/services"
	"whiteboard/pkg/logger"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("Error encoding response: %v", err)
	}
}

// statusFor maps service errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrRoomNotFound),
		errors.Is(err, services.ErrNoSnapshot),
		errors.Is(err, database.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeError replies with err's status. Internal errors are logged and
// replaced with a generic message.
func writeError(w http.ResponseWriter, op string, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		logger.Error("%s error: %v", op, err)
		msg = "internal server error"
	}
	http.Error(w, msg, status)
}
