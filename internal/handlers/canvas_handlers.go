package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"whiteboard/internal/export"
	"whiteboard/internal/models"
	"whiteboard/internal/services"
	"whiteboard/pkg/logger"

	"github.com/gorilla/mux"
)

type CanvasHandlers struct {
	roomService *services.RoomService
}

func NewCanvasHandlers(roomService *services.RoomService) *CanvasHandlers {
	return &CanvasHandlers{
		roomService: roomService,
	}
}

func (h *CanvasHandlers) GetCanvas(w http.ResponseWriter, r *http.Request) {
	snap, err := h.roomService.GetCanvas(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, "Get canvas", err)
		return
	}

	writeJSON(w, http.StatusOK, snap)
}

// SaveCanvas persists the live canvas. The body is optional and may change
// the canvas size or background.
func (h *CanvasHandlers) SaveCanvas(w http.ResponseWriter, r *http.Request) {
	var req *models.SaveCanvasRequest
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	if len(bytes.TrimSpace(body)) > 0 {
		req = &models.SaveCanvasRequest{}
		if err := json.Unmarshal(body, req); err != nil {
			http.Error(w, "invalid request", http.StatusBadRequest)
			return
		}
	}

	result, err := h.roomService.SaveCanvas(r.Context(), mux.Vars(r)["id"], req)
	if err != nil {
		writeError(w, "Save canvas", err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (h *CanvasHandlers) RestoreCanvas(w http.ResponseWriter, r *http.Request) {
	snap, err := h.roomService.RestoreCanvas(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, "Restore canvas", err)
		return
	}

	writeJSON(w, http.StatusOK, snap)
}

func (h *CanvasHandlers) ExportPDF(w http.ResponseWriter, r *http.Request) {
	roomID := mux.Vars(r)["id"]
	snap, err := h.roomService.GetCanvas(r.Context(), roomID)
	if err != nil {
		writeError(w, "Export canvas", err)
		return
	}

	var buf bytes.Buffer
	if err := export.WritePDF(&buf, snap); err != nil {
		writeError(w, "Export canvas", err)
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "whiteboard-"+roomID+".pdf"))
	if _, err := w.Write(buf.Bytes()); err != nil {
		logger.Warn("Error writing export of room %s: %v", roomID, err)
	}
}
