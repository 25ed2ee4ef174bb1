// Package session tracks live connections and the room each one occupies.
package session

import (
	"fmt"
	"sort"
	"sync"

	"github.com/segmentio/ksuid"

	"whiteboard/internal/models"
)

// Peer is the outbound side of one live connection.
type Peer interface {
	ID() string
	// Send enqueues msg without blocking and reports whether it was accepted.
	Send(msg []byte) bool
}

// NewSessionID returns an opaque, unguessable session id.
func NewSessionID() string {
	return ksuid.New().String()
}

// Move describes the outcome of a Join.
type Move struct {
	Room      string
	Count     int
	FromRoom  string
	FromCount int
}

// Moved reports whether the session left another room to join.
func (m Move) Moved() bool {
	return m.FromRoom != "" && m.FromRoom != m.Room
}

type entry struct {
	peer Peer
	room string
}

// Registry maps sessions to rooms. A session is in at most one room.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*entry
	rooms    map[string]map[string]Peer
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*entry),
		rooms:    make(map[string]map[string]Peer),
	}
}

// Connect registers a live connection with no room.
func (r *Registry) Connect(p Peer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.sessions[p.ID()]; !exists {
		r.sessions[p.ID()] = &entry{peer: p}
	}
}

// Join moves the session into roomID, leaving its previous room first.
func (r *Registry) Join(sessionID, roomID string) (Move, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.sessions[sessionID]
	if !ok {
		return Move{}, fmt.Errorf("%w: %s", models.ErrUnknownSession, sessionID)
	}

	move := Move{Room: roomID, FromRoom: e.room}
	if e.room == roomID {
		move.Count = len(r.rooms[roomID])
		move.FromCount = move.Count
		return move, nil
	}
	if e.room != "" {
		move.FromCount = r.removeLocked(sessionID, e.room)
	}

	members, ok := r.rooms[roomID]
	if !ok {
		members = make(map[string]Peer)
		r.rooms[roomID] = members
	}
	members[sessionID] = e.peer
	e.room = roomID
	move.Count = len(members)
	return move, nil
}

// Leave removes the session from its room. ok is false if it had none.
func (r *Registry) Leave(sessionID string) (roomID string, count int, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.leaveLocked(sessionID)
}

// Disconnect leaves the session's room and forgets the session.
func (r *Registry) Disconnect(sessionID string) (roomID string, count int, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	roomID, count, ok = r.leaveLocked(sessionID)
	delete(r.sessions, sessionID)
	return roomID, count, ok
}

func (r *Registry) leaveLocked(sessionID string) (string, int, bool) {
	e, exists := r.sessions[sessionID]
	if !exists || e.room == "" {
		return "", 0, false
	}
	roomID := e.room
	count := r.removeLocked(sessionID, roomID)
	e.room = ""
	return roomID, count, true
}

func (r *Registry) removeLocked(sessionID, roomID string) int {
	members := r.rooms[roomID]
	delete(members, sessionID)
	if len(members) == 0 {
		delete(r.rooms, roomID)
		return 0
	}
	return len(members)
}

func (r *Registry) RoomOf(sessionID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.sessions[sessionID]
	if !ok || e.room == "" {
		return "", false
	}
	return e.room, true
}

func (r *Registry) Peer(sessionID string) (Peer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.sessions[sessionID]
	if !ok {
		return nil, false
	}
	return e.peer, true
}

// Members returns the peers in roomID except the given session, ordered by id.
func (r *Registry) Members(roomID, except string) []Peer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	members := r.rooms[roomID]
	out := make([]Peer, 0, len(members))
	for id, p := range members {
		if id != except {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

func (r *Registry) Count(roomID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms[roomID])
}

func (r *Registry) Sessions() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// EvictRoom removes every member from roomID and returns them. The sessions
// stay connected with no room.
func (r *Registry) EvictRoom(roomID string) []Peer {
	r.mu.Lock()
	defer r.mu.Unlock()
	members := r.rooms[roomID]
	out := make([]Peer, 0, len(members))
	for id, p := range members {
		if e, ok := r.sessions[id]; ok {
			e.room = ""
		}
		out = append(out, p)
	}
	delete(r.rooms, roomID)
	return out
}
