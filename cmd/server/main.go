package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"whiteboard/internal/auth"
	"whiteboard/internal/canvas"
	"whiteboard/internal/config"
	"whiteboard/internal/database"
	"whiteboard/internal/discovery"
	"whiteboard/internal/handlers"
	"whiteboard/internal/services"
	"whiteboard/internal/session"
	"whiteboard/internal/websocket"
	"whiteboard/pkg/logger"
)

func main() {
	// Load configuration
	cfg := config.Load()
	logger.SetLevel(logger.ParseLevel(cfg.LogLevel))

	// Initialize database
	db, err := openDatabase(cfg)
	if err != nil {
		logger.Fatal("Failed to connect to database: %v", err)
	}
	defer db.Close()

	// Live state and fan-out
	store := canvas.NewStore()
	registry := session.NewRegistry()
	router := websocket.NewRouter(store, registry, nil)

	// Initialize services
	roomService := services.NewRoomService(db, store, router, cfg)
	router.SetLoader(roomService)
	authService := auth.NewService(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go roomService.RunJanitor(ctx)

	if cfg.Discovery.MDNSEnabled {
		port, err := cfg.Server.PortNumber()
		if err != nil {
			logger.Fatal("Cannot advertise: %v", err)
		}
		mdnsServer, err := discovery.Advertise(cfg.Discovery.InstanceName, port)
		if err != nil {
			logger.Warn("mDNS disabled: %v", err)
		} else {
			defer mdnsServer.Shutdown()
		}
	}

	// Create server
	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      handlers.NewRouter(cfg, db, roomService, authService, router),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	logger.Info("Server started on http://localhost%s (%s storage)", cfg.Server.Port, cfg.Database.Backend)
	logger.Info("WebSocket endpoint: ws://localhost%s/ws?room=<id>", cfg.Server.Port)
	printAPIEndpoints()

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server error: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Server shutting down...")
	cancel()

	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Shutdown error: %v", err)
	}
}

func openDatabase(cfg *config.Config) (database.Database, error) {
	if cfg.Database.Backend == "redis" {
		db, err := database.NewRedisDB(cfg.Database.RedisURL)
		if err != nil {
			return nil, err
		}
		return db, nil
	}
	db, err := database.NewPostgresDB(cfg.Database.URL)
	if err != nil {
		return nil, err
	}
	return db, nil
}

func printAPIEndpoints() {
	logger.Info("API endpoints:")
	logger.Info("   GET    /api/v1/health")
	logger.Info("   GET    /api/v1/ready")
	logger.Info("   GET    /api/v1/rooms")
	logger.Info("   POST   /api/v1/rooms")
	logger.Info("   GET    /api/v1/rooms/{id}")
	logger.Info("   DELETE /api/v1/rooms/{id}")
	logger.Info("   GET    /api/v1/canvas/{id}")
	logger.Info("   POST   /api/v1/canvas/{id}/save")
	logger.Info("   POST   /api/v1/canvas/{id}/restore")
	logger.Info("   GET    /api/v1/canvas/{id}/export.pdf")
}
