package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"whiteboard/internal/canvas"
	"whiteboard/internal/config"
	"whiteboard/internal/database"
	"whiteboard/internal/models"
	"whiteboard/internal/websocket"
	"whiteboard/pkg/logger"

	"github.com/google/uuid"
)

const maxRoomNameLength = 100

var (
	ErrValidation = errors.New("invalid request")
	ErrNoSnapshot = errors.New("no saved snapshot")
)

var hexColor = regexp.MustCompile(`^#([0-9a-fA-F]{3}|[0-9a-fA-F]{6})$`)

// RoomService is the room directory plus explicit save/restore of canvases.
// It also loads persisted rooms into the live store on first join.
type RoomService struct {
	db     database.Database
	store  *canvas.Store
	router *websocket.Router
	cfg    *config.Config
	now    func() time.Time
}

func NewRoomService(db database.Database, store *canvas.Store, router *websocket.Router, cfg *config.Config) *RoomService {
	return &RoomService{
		db:     db,
		store:  store,
		router: router,
		cfg:    cfg,
		now:    time.Now,
	}
}

func (s *RoomService) CreateRoom(ctx context.Context, req *models.CreateRoomRequest) (*models.Room, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: room name is required", ErrValidation)
	}
	if len(name) > maxRoomNameLength {
		return nil, fmt.Errorf("%w: room name must be at most %d characters", ErrValidation, maxRoomNameLength)
	}

	room := &models.Room{
		ID:              uuid.NewString(),
		Name:            name,
		CanvasWidth:     s.cfg.Canvas.DefaultWidth,
		CanvasHeight:    s.cfg.Canvas.DefaultHeight,
		BackgroundColor: s.cfg.Canvas.DefaultBackground,
		CreatedAt:       s.now().UTC(),
	}
	if err := s.applyCanvasParams(room, req.CanvasWidth, req.CanvasHeight, req.BackgroundColor); err != nil {
		return nil, err
	}

	if err := s.db.CreateRoom(ctx, room); err != nil {
		return nil, fmt.Errorf("failed to create room: %w", err)
	}
	if err := s.store.CreateRoom(*room); err != nil {
		return nil, err
	}

	logger.Info("Created room %s (%s)", room.ID, room.Name)
	return room, nil
}

// applyCanvasParams validates and sets non-zero canvas parameters on room.
func (s *RoomService) applyCanvasParams(room *models.Room, width, height int, background string) error {
	if width < 0 || width > s.cfg.Canvas.MaxSize {
		return fmt.Errorf("%w: canvas width must be between 1 and %d", ErrValidation, s.cfg.Canvas.MaxSize)
	}
	if height < 0 || height > s.cfg.Canvas.MaxSize {
		return fmt.Errorf("%w: canvas height must be between 1 and %d", ErrValidation, s.cfg.Canvas.MaxSize)
	}
	if background != "" && !hexColor.MatchString(background) {
		return fmt.Errorf("%w: background color %q is not a hex color", ErrValidation, background)
	}

	if width > 0 {
		room.CanvasWidth = width
	}
	if height > 0 {
		room.CanvasHeight = height
	}
	if background != "" {
		room.BackgroundColor = background
	}
	return nil
}

func (s *RoomService) getRoom(ctx context.Context, roomID string) (*models.Room, error) {
	room, err := s.db.GetRoom(ctx, roomID)
	if errors.Is(err, database.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", models.ErrRoomNotFound, roomID)
	}
	return room, err
}

// GetRoomInfo reads the directory entry. Canvas parameters come from the
// live room when it is loaded, and the user count from the registry.
func (s *RoomService) GetRoomInfo(ctx context.Context, roomID string) (*models.RoomInfo, error) {
	room, err := s.getRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	return s.info(room), nil
}

func (s *RoomService) info(room *models.Room) *models.RoomInfo {
	info := &models.RoomInfo{
		ID:              room.ID,
		Name:            room.Name,
		CreatedAt:       room.CreatedAt,
		CanvasWidth:     room.CanvasWidth,
		CanvasHeight:    room.CanvasHeight,
		BackgroundColor: room.BackgroundColor,
		ActiveUserCount: s.router.MemberCount(room.ID),
	}
	if live, err := s.store.Room(room.ID); err == nil {
		info.CanvasWidth = live.CanvasWidth
		info.CanvasHeight = live.CanvasHeight
		info.BackgroundColor = live.BackgroundColor
	}
	return info
}

func (s *RoomService) ListRooms(ctx context.Context) ([]*models.RoomInfo, error) {
	rooms, err := s.db.ListRooms(ctx)
	if err != nil {
		return nil, err
	}
	infos := make([]*models.RoomInfo, 0, len(rooms))
	for _, room := range rooms {
		infos = append(infos, s.info(room))
	}
	return infos, nil
}

// DeleteRoom removes the room from the directory, drops its live state and
// then tells and evicts its members. Joins that lose the race against the
// unload fail with ErrRoomNotFound; joins that win it are evicted.
func (s *RoomService) DeleteRoom(ctx context.Context, roomID string) error {
	if err := s.db.DeleteRoom(ctx, roomID); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return fmt.Errorf("%w: %s", models.ErrRoomNotFound, roomID)
		}
		return err
	}
	s.store.DeleteRoom(roomID)
	s.router.CloseRoom(roomID)
	logger.Info("Deleted room %s", roomID)
	return nil
}

// EnsureLoaded makes a directory room live in the store, restoring its last
// saved snapshot if there is one. Loaded rooms are left untouched.
func (s *RoomService) EnsureLoaded(ctx context.Context, roomID string) error {
	if s.store.HasRoom(roomID) {
		return nil
	}

	room, err := s.getRoom(ctx, roomID)
	if err != nil {
		return err
	}

	var elements []models.Element
	snap, err := s.db.LoadSnapshot(ctx, roomID)
	switch {
	case err == nil:
		elements = snap.Elements
		room.CanvasWidth = snap.CanvasWidth
		room.CanvasHeight = snap.CanvasHeight
		room.BackgroundColor = snap.BackgroundColor
	case !errors.Is(err, database.ErrNotFound):
		return fmt.Errorf("failed to load snapshot for room %s: %w", roomID, err)
	}

	if s.store.LoadRoomIfAbsent(*room, elements) {
		logger.Info("Loaded room %s with %d elements", roomID, len(elements))
	}
	return nil
}

func (s *RoomService) GetCanvas(ctx context.Context, roomID string) (*models.Snapshot, error) {
	if err := s.EnsureLoaded(ctx, roomID); err != nil {
		return nil, err
	}
	snap, err := s.store.Snapshot(roomID)
	if err != nil {
		return nil, err
	}
	return &snap, nil
}

// SaveCanvas persists the live room. Non-zero parameters in req change the
// shared canvas first, and members are sent the new state.
func (s *RoomService) SaveCanvas(ctx context.Context, roomID string, req *models.SaveCanvasRequest) (*models.SaveResult, error) {
	if err := s.EnsureLoaded(ctx, roomID); err != nil {
		return nil, err
	}

	if req != nil && (req.CanvasWidth != 0 || req.CanvasHeight != 0 || req.BackgroundColor != "") {
		var candidate models.Room
		if err := s.applyCanvasParams(&candidate, req.CanvasWidth, req.CanvasHeight, req.BackgroundColor); err != nil {
			return nil, err
		}
		if _, err := s.store.SetCanvas(roomID, req.CanvasWidth, req.CanvasHeight, req.BackgroundColor); err != nil {
			return nil, err
		}
		if err := s.router.BroadcastSnapshot(roomID); err != nil {
			return nil, err
		}
	}

	return s.save(ctx, roomID)
}

func (s *RoomService) save(ctx context.Context, roomID string) (*models.SaveResult, error) {
	snap, err := s.store.Snapshot(roomID)
	if err != nil {
		return nil, err
	}
	result, err := s.db.SaveSnapshot(ctx, &snap)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", models.ErrRoomNotFound, roomID)
		}
		return nil, fmt.Errorf("failed to save canvas: %w", err)
	}
	if !result.Unchanged {
		logger.Info("Saved room %s (%d elements, %s)", roomID, result.Elements, result.Checksum[:12])
	}
	return result, nil
}

// RestoreCanvas replaces the live room with its last saved snapshot and
// sends that snapshot to every member.
func (s *RoomService) RestoreCanvas(ctx context.Context, roomID string) (*models.Snapshot, error) {
	room, err := s.getRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	snap, err := s.db.LoadSnapshot(ctx, roomID)
	if errors.Is(err, database.ErrNotFound) {
		return nil, fmt.Errorf("%w for room %s", ErrNoSnapshot, roomID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}

	room.CanvasWidth = snap.CanvasWidth
	room.CanvasHeight = snap.CanvasHeight
	room.BackgroundColor = snap.BackgroundColor
	s.store.LoadRoom(*room, snap.Elements)

	if err := s.router.BroadcastSnapshot(roomID); err != nil {
		return nil, err
	}
	logger.Info("Restored room %s (%d elements)", roomID, len(snap.Elements))

	restored, err := s.store.Snapshot(roomID)
	if err != nil {
		return nil, err
	}
	return &restored, nil
}

// RunJanitor saves and unloads rooms that stayed empty longer than the
// retention window, until ctx is cancelled.
func (s *RoomService) RunJanitor(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Realtime.JanitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.SweepIdleRooms(ctx); n > 0 {
				logger.Debug("Janitor unloaded %d idle rooms", n)
			}
		}
	}
}

// SweepIdleRooms runs one janitor pass and returns how many rooms it unloaded.
// A room whose save fails stays loaded.
func (s *RoomService) SweepIdleRooms(ctx context.Context) int {
	unloaded := 0
	for _, roomID := range s.store.Rooms() {
		if s.router.RoomState(roomID) != websocket.RoomEmpty {
			continue
		}
		last, err := s.store.LastActivity(roomID)
		if err != nil || s.now().Sub(last) < s.cfg.Realtime.RoomRetention {
			continue
		}

		if _, err := s.save(ctx, roomID); err != nil {
			logger.Warn("Keeping idle room %s loaded: %v", roomID, err)
			continue
		}
		// a participant may have joined during the save
		stillEmpty := func() bool { return s.router.RoomState(roomID) == websocket.RoomEmpty }
		if !s.store.DeleteRoomIf(roomID, stillEmpty) {
			continue
		}
		unloaded++
		logger.Info("Unloaded idle room %s", roomID)
	}
	return unloaded
}
