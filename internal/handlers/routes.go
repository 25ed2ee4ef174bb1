package handlers

import (
	"net/http"
	"os"

	"whiteboard/internal/auth"
	"whiteboard/internal/config"
	"whiteboard/internal/database"
	"whiteboard/internal/services"
	ws "whiteboard/internal/websocket"

	gorillahandlers "github.com/gorilla/handlers"
	"github.com/gorilla/mux"
)

// NewRouter wires the REST API under /api/v1 and the websocket endpoint at /ws.
func NewRouter(cfg *config.Config, db database.Database, roomService *services.RoomService, authService *auth.Service, router *ws.Router) http.Handler {
	roomHandlers := NewRoomHandlers(roomService)
	canvasHandlers := NewCanvasHandlers(roomService)
	healthHandlers := NewHealthHandlers(db)
	wsHandlers := NewWebSocketHandlers(authService, roomService, router, cfg)

	r := mux.NewRouter()

	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/health", healthHandlers.Health).Methods(http.MethodGet)
	api.HandleFunc("/ready", healthHandlers.Ready).Methods(http.MethodGet)

	api.HandleFunc("/rooms", roomHandlers.CreateRoom).Methods(http.MethodPost)
	api.HandleFunc("/rooms", roomHandlers.ListRooms).Methods(http.MethodGet)
	api.HandleFunc("/rooms/{id}", roomHandlers.GetRoom).Methods(http.MethodGet)
	api.HandleFunc("/rooms/{id}", roomHandlers.DeleteRoom).Methods(http.MethodDelete)

	api.HandleFunc("/canvas/{id}", canvasHandlers.GetCanvas).Methods(http.MethodGet)
	api.HandleFunc("/canvas/{id}/save", canvasHandlers.SaveCanvas).Methods(http.MethodPost)
	api.HandleFunc("/canvas/{id}/restore", canvasHandlers.RestoreCanvas).Methods(http.MethodPost)
	api.HandleFunc("/canvas/{id}/export.pdf", canvasHandlers.ExportPDF).Methods(http.MethodGet)

	r.HandleFunc("/ws", wsHandlers.HandleWebSocket).Methods(http.MethodGet)

	cors := gorillahandlers.CORS(
		gorillahandlers.AllowedOrigins(cfg.Server.CORSOrigins),
		gorillahandlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions}),
		gorillahandlers.AllowedHeaders([]string{"Content-Type", "Authorization"}),
	)

	var h http.Handler = r
	h = cors(h)
	h = gorillahandlers.RecoveryHandler(gorillahandlers.PrintRecoveryStack(true))(h)
	return gorillahandlers.LoggingHandler(os.Stdout, h)
}
