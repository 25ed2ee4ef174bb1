package handlers

import (
	"net/http"
	"time"

	"whiteboard/internal/auth"
	"whiteboard/internal/config"
	"whiteboard/internal/services"
	ws "whiteboard/internal/websocket"
	"whiteboard/pkg/logger"

	"github.com/gorilla/websocket"
)

type WebSocketHandlers struct {
	authService *auth.Service
	roomService *services.RoomService
	router      *ws.Router
	cfg         *config.Config
	upgrader    websocket.Upgrader
}

func NewWebSocketHandlers(authService *auth.Service, roomService *services.RoomService, router *ws.Router, cfg *config.Config) *WebSocketHandlers {
	h := &WebSocketHandlers{
		authService: authService,
		roomService: roomService,
		router:      router,
		cfg:         cfg,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

// checkOrigin accepts non-browser clients and the configured origins.
func (h *WebSocketHandlers) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range h.cfg.Server.CORSOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

// HandleWebSocket serves GET /ws?room=<id>&token=<token>. The token is
// optional; without a valid one the participant gets a new identity.
func (h *WebSocketHandlers) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	roomID := r.URL.Query().Get("room")
	if roomID == "" {
		http.Error(w, "missing room", http.StatusBadRequest)
		return
	}

	// unknown rooms are refused before the upgrade
	if err := h.roomService.EnsureLoaded(r.Context(), roomID); err != nil {
		writeError(w, "Load room", err)
		return
	}

	identity, token, err := h.authService.Resolve(r.URL.Query().Get("token"))
	if err != nil {
		writeError(w, "Resolve participant", err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("Upgrade error: %v", err)
		return
	}

	client := ws.NewClient(h.router, conn, identity, h.cfg.Realtime)
	h.router.Connect(client)
	client.Welcome(token)

	if err := client.Join(roomID); err != nil {
		logger.Warn("Session %s could not join room %s: %v", client.ID(), roomID, err)
		h.router.OnDisconnect(client.ID())
		deadline := time.Now().Add(h.cfg.Realtime.WriteWait)
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, err.Error()), deadline)
		conn.Close()
		return
	}

	go client.WritePump()
	go client.ReadPump()
}
