package handlers

import (
	"encoding/json"
	"net/http"

	"whiteboard/internal/models"
	"whiteboard/internal/services"

	"github.com/gorilla/mux"
)

type RoomHandlers struct {
	roomService *services.RoomService
}

func NewRoomHandlers(roomService *services.RoomService) *RoomHandlers {
	return &RoomHandlers{
		roomService: roomService,
	}
}

func (h *RoomHandlers) CreateRoom(w http.ResponseWriter, r *http.Request) {
	var req models.CreateRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}

	room, err := h.roomService.CreateRoom(r.Context(), &req)
	if err != nil {
		writeError(w, "Create room", err)
		return
	}

	writeJSON(w, http.StatusCreated, room)
}

func (h *RoomHandlers) ListRooms(w http.ResponseWriter, r *http.Request) {
	rooms, err := h.roomService.ListRooms(r.Context())
	if err != nil {
		writeError(w, "List rooms", err)
		return
	}

	writeJSON(w, http.StatusOK, rooms)
}

func (h *RoomHandlers) GetRoom(w http.ResponseWriter, r *http.Request) {
	info, err := h.roomService.GetRoomInfo(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, "Get room", err)
		return
	}

	writeJSON(w, http.StatusOK, info)
}

func (h *RoomHandlers) DeleteRoom(w http.ResponseWriter, r *http.Request) {
	if err := h.roomService.DeleteRoom(r.Context(), mux.Vars(r)["id"]); err != nil {
		writeError(w, "Delete room", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
