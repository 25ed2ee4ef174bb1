package services

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"whiteboard/internal/canvas"
	"whiteboard/internal/config"
	"whiteboard/internal/database"
	"whiteboard/internal/models"
	"whiteboard/internal/session"
	"whiteboard/internal/websocket"
)

type inboxPeer struct {
	id     string
	mu     sync.Mutex
	events []models.Event
}

func (p *inboxPeer) ID() string { return p.id }

func (p *inboxPeer) Send(msg []byte) bool {
	var ev models.Event
	if err := json.Unmarshal(msg, &ev); err != nil {
		return false
	}
	p.mu.Lock()
	p.events = append(p.events, ev)
	p.mu.Unlock()
	return true
}

func (p *inboxPeer) last(t models.EventType) (models.Event, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := len(p.events) - 1; i >= 0; i-- {
		if p.events[i].Type == t {
			return p.events[i], true
		}
	}
	return models.Event{}, false
}

func testConfig() *config.Config {
	return &config.Config{
		Canvas: config.CanvasConfig{
			DefaultWidth:      1920,
			DefaultHeight:     1080,
			DefaultBackground: "#ffffff",
			MaxSize:           4096,
		},
		Realtime: config.RealtimeConfig{
			RoomRetention:   30 * time.Minute,
			JanitorInterval: time.Minute,
		},
	}
}

type env struct {
	db       *database.RedisDB
	store    *canvas.Store
	registry *session.Registry
	router   *websocket.Router
	svc      *RoomService
}

// newEnv wires a service over db the way the server does.
func newEnv(db *database.RedisDB) *env {
	store := canvas.NewStore()
	registry := session.NewRegistry()
	router := websocket.NewRouter(store, registry, nil)
	svc := NewRoomService(db, store, router, testConfig())
	router.SetLoader(svc)
	return &env{db: db, store: store, registry: registry, router: router, svc: svc}
}

func setup(t *testing.T) *env {
	t.Helper()
	s := miniredis.RunT(t)
	db, err := database.NewRedisDB("redis://" + s.Addr())
	if err != nil {
		t.Fatalf("NewRedisDB failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return newEnv(db)
}

func (e *env) join(t *testing.T, roomID string, p *inboxPeer) {
	t.Helper()
	e.router.Connect(p)
	if _, err := e.router.OnJoin(context.Background(), p.id, roomID); err != nil {
		t.Fatalf("OnJoin failed: %v", err)
	}
}

func note(id, text string) models.Element {
	return models.Element{
		ID:      id,
		Kind:    models.KindStickyNote,
		Style:   models.Style{FillColor: "#ffee88", Opacity: 1},
		Payload: models.Payload{Text: text},
	}
}

func TestCreateRoomDefaults(t *testing.T) {
	e := setup(t)
	room, err := e.svc.CreateRoom(context.Background(), &models.CreateRoomRequest{Name: "  Planning  "})
	if err != nil {
		t.Fatalf("CreateRoom failed: %v", err)
	}
	if room.ID == "" || room.Name != "Planning" {
		t.Errorf("unexpected room: %+v", room)
	}
	if room.CanvasWidth != 1920 || room.CanvasHeight != 1080 || room.BackgroundColor != "#ffffff" {
		t.Errorf("defaults not applied: %+v", room)
	}
	if !e.store.HasRoom(room.ID) {
		t.Error("new room not live in the store")
	}
}

func TestCreateRoomValidation(t *testing.T) {
	e := setup(t)
	cases := []models.CreateRoomRequest{
		{Name: ""},
		{Name: "x", CanvasWidth: 5000},
		{Name: "x", CanvasHeight: -1},
		{Name: "x", BackgroundColor: "blue"},
	}
	for _, req := range cases {
		req := req
		if _, err := e.svc.CreateRoom(context.Background(), &req); !errors.Is(err, ErrValidation) {
			t.Errorf("%+v: expected ErrValidation, got %v", req, err)
		}
	}

	room, err := e.svc.CreateRoom(context.Background(), &models.CreateRoomRequest{Name: "x", CanvasWidth: 800, BackgroundColor: "#abc"})
	if err != nil {
		t.Fatalf("CreateRoom failed: %v", err)
	}
	if room.CanvasWidth != 800 || room.CanvasHeight != 1080 || room.BackgroundColor != "#abc" {
		t.Errorf("custom params not applied: %+v", room)
	}
}

func TestRoomInfoCountsActiveUsers(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	room, _ := e.svc.CreateRoom(ctx, &models.CreateRoomRequest{Name: "r"})

	e.join(t, room.ID, &inboxPeer{id: "a"})
	e.join(t, room.ID, &inboxPeer{id: "b"})

	info, err := e.svc.GetRoomInfo(ctx, room.ID)
	if err != nil {
		t.Fatalf("GetRoomInfo failed: %v", err)
	}
	if info.ActiveUserCount != 2 || info.Name != "r" {
		t.Errorf("unexpected info: %+v", info)
	}

	infos, err := e.svc.ListRooms(ctx)
	if err != nil || len(infos) != 1 || infos[0].ActiveUserCount != 2 {
		t.Errorf("ListRooms = %+v, %v", infos, err)
	}

	if _, err := e.svc.GetRoomInfo(ctx, "missing"); !errors.Is(err, models.ErrRoomNotFound) {
		t.Errorf("expected ErrRoomNotFound, got %v", err)
	}
}

func TestDeleteRoomClosesIt(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	room, _ := e.svc.CreateRoom(ctx, &models.CreateRoomRequest{Name: "r"})
	p := &inboxPeer{id: "a"}
	e.join(t, room.ID, p)

	if err := e.svc.DeleteRoom(ctx, room.ID); err != nil {
		t.Fatalf("DeleteRoom failed: %v", err)
	}
	if _, ok := p.last(models.EventRoomClosed); !ok {
		t.Error("member not told the room closed")
	}
	if e.store.HasRoom(room.ID) {
		t.Error("deleted room still live")
	}
	if err := e.svc.DeleteRoom(ctx, room.ID); !errors.Is(err, models.ErrRoomNotFound) {
		t.Errorf("expected ErrRoomNotFound, got %v", err)
	}
	if err := e.svc.EnsureLoaded(ctx, room.ID); !errors.Is(err, models.ErrRoomNotFound) {
		t.Errorf("deleted room should not load, got %v", err)
	}
}

func TestSaveAndRestoreCanvas(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	room, _ := e.svc.CreateRoom(ctx, &models.CreateRoomRequest{Name: "r"})
	_ = e.store.ApplyCreate(room.ID, note("n1", "first"))
	_ = e.store.ApplyCreate(room.ID, note("n2", "second"))

	result, err := e.svc.SaveCanvas(ctx, room.ID, nil)
	if err != nil {
		t.Fatalf("SaveCanvas failed: %v", err)
	}
	if result.Elements != 2 || result.Unchanged {
		t.Errorf("unexpected save result: %+v", result)
	}
	again, _ := e.svc.SaveCanvas(ctx, room.ID, nil)
	if !again.Unchanged {
		t.Error("unchanged canvas was rewritten")
	}

	p := &inboxPeer{id: "a"}
	e.join(t, room.ID, p)
	_ = e.store.ApplyClear(room.ID)

	restored, err := e.svc.RestoreCanvas(ctx, room.ID)
	if err != nil {
		t.Fatalf("RestoreCanvas failed: %v", err)
	}
	if len(restored.Elements) != 2 || restored.Elements[0].ID != "n1" {
		t.Errorf("unexpected restored canvas: %+v", restored.Elements)
	}
	ev, ok := p.last(models.EventSnapshot)
	if !ok || len(ev.Snapshot.Elements) != 2 {
		t.Errorf("member did not receive restored snapshot: %+v", ev)
	}
}

func TestRestoreWithoutSnapshot(t *testing.T) {
	e := setup(t)
	room, _ := e.svc.CreateRoom(context.Background(), &models.CreateRoomRequest{Name: "r"})
	if _, err := e.svc.RestoreCanvas(context.Background(), room.ID); !errors.Is(err, ErrNoSnapshot) {
		t.Errorf("expected ErrNoSnapshot, got %v", err)
	}
}

func TestSaveCanvasChangesParams(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	room, _ := e.svc.CreateRoom(ctx, &models.CreateRoomRequest{Name: "r"})
	p := &inboxPeer{id: "a"}
	e.join(t, room.ID, p)

	if _, err := e.svc.SaveCanvas(ctx, room.ID, &models.SaveCanvasRequest{BackgroundColor: "nope"}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	if _, err := e.svc.SaveCanvas(ctx, room.ID, &models.SaveCanvasRequest{CanvasWidth: 1024, BackgroundColor: "#000000"}); err != nil {
		t.Fatalf("SaveCanvas failed: %v", err)
	}

	ev, ok := p.last(models.EventSnapshot)
	if !ok || ev.Snapshot.CanvasWidth != 1024 || ev.Snapshot.BackgroundColor != "#000000" {
		t.Errorf("member not sent new params: %+v", ev.Snapshot)
	}
	info, _ := e.svc.GetRoomInfo(ctx, room.ID)
	if info.CanvasWidth != 1024 || info.CanvasHeight != 1080 {
		t.Errorf("info does not reflect live params: %+v", info)
	}
}

func TestEnsureLoadedAfterRestart(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	room, _ := e.svc.CreateRoom(ctx, &models.CreateRoomRequest{Name: "r", CanvasWidth: 640})
	_ = e.store.ApplyCreate(room.ID, note("n1", "persisted"))
	if _, err := e.svc.SaveCanvas(ctx, room.ID, nil); err != nil {
		t.Fatalf("SaveCanvas failed: %v", err)
	}

	restarted := newEnv(e.db)
	p := &inboxPeer{id: "a"}
	restarted.join(t, room.ID, p)

	ev, ok := p.last(models.EventSnapshot)
	if !ok || len(ev.Snapshot.Elements) != 1 || ev.Snapshot.Elements[0].Payload.Text != "persisted" {
		t.Fatalf("joiner did not get persisted state: %+v", ev)
	}
	if ev.Snapshot.CanvasWidth != 640 {
		t.Errorf("canvas params not restored: %+v", ev.Snapshot)
	}

	snap, err := restarted.svc.GetCanvas(ctx, room.ID)
	if err != nil || len(snap.Elements) != 1 {
		t.Errorf("GetCanvas = %+v, %v", snap, err)
	}
}

func TestSweepIdleRooms(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	idle, _ := e.svc.CreateRoom(ctx, &models.CreateRoomRequest{Name: "idle"})
	busy, _ := e.svc.CreateRoom(ctx, &models.CreateRoomRequest{Name: "busy"})
	_ = e.store.ApplyCreate(idle.ID, note("n1", "keep me"))
	e.join(t, busy.ID, &inboxPeer{id: "a"})

	if n := e.svc.SweepIdleRooms(ctx); n != 0 {
		t.Fatalf("fresh rooms unloaded: %d", n)
	}

	e.svc.now = func() time.Time { return time.Now().Add(time.Hour) }
	if n := e.svc.SweepIdleRooms(ctx); n != 1 {
		t.Fatalf("expected 1 room unloaded, got %d", n)
	}
	if e.store.HasRoom(idle.ID) || !e.store.HasRoom(busy.ID) {
		t.Errorf("wrong rooms unloaded: idle=%v busy=%v", e.store.HasRoom(idle.ID), e.store.HasRoom(busy.ID))
	}

	snap, err := e.svc.GetCanvas(ctx, idle.ID)
	if err != nil || len(snap.Elements) != 1 {
		t.Errorf("idle room not saved before unload: %+v, %v", snap, err)
	}
}

func TestRunJanitorStopsOnCancel(t *testing.T) {
	e := setup(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		e.svc.RunJanitor(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("janitor did not stop")
	}
}

// hookedDB runs a callback in the middle of a service operation.
type hookedDB struct {
	database.Database
	afterSave   func()
	afterDelete func()
}

func (d *hookedDB) SaveSnapshot(ctx context.Context, snap *models.Snapshot) (*models.SaveResult, error) {
	res, err := d.Database.SaveSnapshot(ctx, snap)
	if d.afterSave != nil {
		d.afterSave()
		d.afterSave = nil
	}
	return res, err
}

func (d *hookedDB) DeleteRoom(ctx context.Context, id string) error {
	err := d.Database.DeleteRoom(ctx, id)
	if d.afterDelete != nil {
		d.afterDelete()
		d.afterDelete = nil
	}
	return err
}

func TestSweepKeepsRoomJoinedDuringSave(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	room, _ := e.svc.CreateRoom(ctx, &models.CreateRoomRequest{Name: "r"})

	p := &inboxPeer{id: "late"}
	e.svc.db = &hookedDB{Database: e.db, afterSave: func() { e.join(t, room.ID, p) }}
	e.svc.now = func() time.Time { return time.Now().Add(time.Hour) }

	if n := e.svc.SweepIdleRooms(ctx); n != 0 {
		t.Fatalf("room unloaded with a member: %d", n)
	}
	if !e.store.HasRoom(room.ID) {
		t.Fatal("room not loaded")
	}
	if err := e.router.OnDrawEvent("late", models.CreateEvent(room.ID, note("n1", "after"))); err != nil {
		t.Errorf("member cannot edit: %v", err)
	}
}

func TestDeleteRoomEvictsJoinDuringDelete(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	room, _ := e.svc.CreateRoom(ctx, &models.CreateRoomRequest{Name: "r"})

	p := &inboxPeer{id: "late"}
	e.svc.db = &hookedDB{Database: e.db, afterDelete: func() { e.join(t, room.ID, p) }}

	if err := e.svc.DeleteRoom(ctx, room.ID); err != nil {
		t.Fatalf("DeleteRoom failed: %v", err)
	}
	if _, ok := p.last(models.EventRoomClosed); !ok {
		t.Error("late joiner not told the room closed")
	}
	if roomID, ok := e.registry.RoomOf("late"); ok {
		t.Errorf("late joiner still in room %q", roomID)
	}
	if e.store.HasRoom(room.ID) {
		t.Error("deleted room still live")
	}

	q := &inboxPeer{id: "later"}
	e.router.Connect(q)
	if _, err := e.router.OnJoin(ctx, q.id, room.ID); !errors.Is(err, models.ErrRoomNotFound) {
		t.Errorf("expected ErrRoomNotFound joining a deleted room, got %v", err)
	}
}
