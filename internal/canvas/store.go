// Package canvas holds the authoritative in-memory state of every live room.
package canvas

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"whiteboard/internal/models"
)

type roomState struct {
	mu           sync.Mutex
	meta         models.Room
	elements     *Elements
	lastActivity time.Time
	unloaded     bool
}

// Store owns the elements of every loaded room. Each room is guarded by its
// own mutex so different rooms mutate in parallel; the outer lock only
// protects the room table.
type Store struct {
	mu    sync.RWMutex
	rooms map[string]*roomState
	now   func() time.Time
}

func NewStore() *Store {
	return &Store{
		rooms: make(map[string]*roomState),
		now:   time.Now,
	}
}

func (s *Store) room(roomID string) (*roomState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rooms[roomID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrRoomNotFound, roomID)
	}
	return r, nil
}

// lock returns the room with its mutex held. A room unloaded after the
// lookup is reported as not found.
func (s *Store) lock(roomID string) (*roomState, error) {
	r, err := s.room(roomID)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	if r.unloaded {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", models.ErrRoomNotFound, roomID)
	}
	return r, nil
}

// CreateRoom registers an empty room. It fails with ErrConflict if the id is taken.
func (s *Store) CreateRoom(meta models.Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.rooms[meta.ID]; exists {
		return fmt.Errorf("%w: room %s", models.ErrConflict, meta.ID)
	}
	s.rooms[meta.ID] = &roomState{meta: meta, elements: NewElements(), lastActivity: s.now()}
	return nil
}

// LoadRoom installs meta and elements, replacing any live state for the room.
func (s *Store) LoadRoom(meta models.Room, elements []models.Element) {
	for !s.LoadRoomIfAbsent(meta, elements) {
		r, err := s.lock(meta.ID)
		if err != nil {
			// unloaded in between; install it again
			continue
		}
		r.meta = meta
		r.elements.Reset(elements)
		r.lastActivity = s.now()
		r.mu.Unlock()
		return
	}
}

// LoadRoomIfAbsent behaves like LoadRoom but leaves an already loaded room
// untouched. It reports whether it installed the room.
func (s *Store) LoadRoomIfAbsent(meta models.Room, elements []models.Element) bool {
	r := &roomState{meta: meta, elements: NewElements(), lastActivity: s.now()}
	r.elements.Reset(elements)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.rooms[meta.ID]; exists {
		return false
	}
	s.rooms[meta.ID] = r
	return true
}

func (s *Store) DeleteRoom(roomID string) bool {
	return s.DeleteRoomIf(roomID, nil)
}

// DeleteRoomIf unloads the room if cond reports true. cond runs with the
// room locked, so no operation on the room (a join delivering its snapshot
// included) can happen between the check and the unload. A nil cond always
// unloads. Operations that looked the room up before the unload fail with
// ErrRoomNotFound.
func (s *Store) DeleteRoomIf(roomID string, cond func() bool) bool {
	r, err := s.lock(roomID)
	if err != nil {
		return false
	}
	defer r.mu.Unlock()
	if cond != nil && !cond() {
		return false
	}
	r.unloaded = true

	s.mu.Lock()
	if s.rooms[roomID] == r {
		delete(s.rooms, roomID)
	}
	s.mu.Unlock()
	return true
}

func (s *Store) HasRoom(roomID string) bool {
	_, err := s.room(roomID)
	return err == nil
}

func (s *Store) Room(roomID string) (models.Room, error) {
	r, err := s.lock(roomID)
	if err != nil {
		return models.Room{}, err
	}
	defer r.mu.Unlock()
	return r.meta, nil
}

// Rooms lists loaded room ids in sorted order.
func (s *Store) Rooms() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.rooms))
	for id := range s.rooms {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (s *Store) ApplyCreate(roomID string, el models.Element) error {
	return s.Apply(roomID, models.CreateEvent(roomID, el))
}

func (s *Store) ApplyUpdate(roomID, id string, el models.Element) error {
	el.ID = id
	return s.Apply(roomID, models.UpdateEvent(roomID, el))
}

// ApplyDelete is idempotent: deleting a missing id is not an error.
func (s *Store) ApplyDelete(roomID, id string) error {
	return s.Apply(roomID, models.DeleteEvent(roomID, id))
}

func (s *Store) ApplyClear(roomID string) error {
	return s.Apply(roomID, models.ClearEvent(roomID))
}

// Apply performs a draw operation on the room under its lock.
func (s *Store) Apply(roomID string, ev models.Event) error {
	r, err := s.lock(roomID)
	if err != nil {
		return err
	}
	defer r.mu.Unlock()
	if err := r.elements.Apply(ev); err != nil {
		return err
	}
	r.lastActivity = s.now()
	return nil
}

func (s *Store) Snapshot(roomID string) (models.Snapshot, error) {
	var snap models.Snapshot
	err := s.SnapshotWith(roomID, func(sn models.Snapshot) { snap = sn })
	return snap, err
}

// SnapshotWith takes a snapshot and passes it to fn before the room lock is
// released, so no operation on the room can interleave with fn.
func (s *Store) SnapshotWith(roomID string, fn func(models.Snapshot)) error {
	r, err := s.lock(roomID)
	if err != nil {
		return err
	}
	defer r.mu.Unlock()
	fn(models.Snapshot{
		Room:            roomID,
		Elements:        r.elements.List(),
		CanvasWidth:     r.meta.CanvasWidth,
		CanvasHeight:    r.meta.CanvasHeight,
		BackgroundColor: r.meta.BackgroundColor,
	})
	return nil
}

// SetCanvas changes the shared rendering parameters. Zero values are ignored.
func (s *Store) SetCanvas(roomID string, width, height int, background string) (models.Room, error) {
	r, err := s.lock(roomID)
	if err != nil {
		return models.Room{}, err
	}
	defer r.mu.Unlock()
	if width > 0 {
		r.meta.CanvasWidth = width
	}
	if height > 0 {
		r.meta.CanvasHeight = height
	}
	if background != "" {
		r.meta.BackgroundColor = background
	}
	return r.meta, nil
}

// Touch marks the room as active now.
func (s *Store) Touch(roomID string) {
	r, err := s.lock(roomID)
	if err != nil {
		return
	}
	r.lastActivity = s.now()
	r.mu.Unlock()
}

func (s *Store) LastActivity(roomID string) (time.Time, error) {
	r, err := s.lock(roomID)
	if err != nil {
		return time.Time{}, err
	}
	defer r.mu.Unlock()
	return r.lastActivity, nil
}
