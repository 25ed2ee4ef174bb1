package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"whiteboard/internal/canvas"
	"whiteboard/internal/models"
	"whiteboard/internal/session"
	"whiteboard/pkg/logger"
)

// RoomLoader makes a persisted room available in the store before a join.
type RoomLoader interface {
	EnsureLoaded(ctx context.Context, roomID string) error
}

type RoomState int

const (
	RoomEmpty RoomState = iota
	RoomActive
)

func (s RoomState) String() string {
	if s == RoomActive {
		return "active"
	}
	return "empty"
}

// Router applies inbound draw events to the store and relays them to the
// other members of the sender's room.
//
// Events from one sender are handled sequentially by that sender's read
// pump and enqueued on every recipient's FIFO send channel in that order,
// so recipients observe each sender's events in order. Events of different
// senders may interleave differently at different recipients.
type Router struct {
	store    *canvas.Store
	registry *session.Registry
	loader   RoomLoader
}

func NewRouter(store *canvas.Store, registry *session.Registry, loader RoomLoader) *Router {
	return &Router{
		store:    store,
		registry: registry,
		loader:   loader,
	}
}

func (r *Router) Connect(p session.Peer) {
	r.registry.Connect(p)
}

// SetLoader installs the loader used by OnJoin for rooms not in the store.
func (r *Router) SetLoader(loader RoomLoader) {
	r.loader = loader
}

func (r *Router) MemberCount(roomID string) int {
	return r.registry.Count(roomID)
}

func (r *Router) RoomState(roomID string) RoomState {
	if r.registry.Count(roomID) > 0 {
		return RoomActive
	}
	return RoomEmpty
}

// OnDrawEvent validates, applies and fans out a create/update/delete/clear.
// The store is updated before any recipient is sent the event.
func (r *Router) OnDrawEvent(senderID string, ev models.Event) error {
	if !ev.IsDrawOp() {
		return fmt.Errorf("%w: %q is not a draw operation", models.ErrInvalidEvent, ev.Type)
	}
	if err := ev.Validate(); err != nil {
		return err
	}

	roomID, ok := r.registry.RoomOf(senderID)
	if !ok || roomID != ev.Room {
		return fmt.Errorf("%w: session %s is in %q, event targets %q", models.ErrRoomMismatch, senderID, roomID, ev.Room)
	}

	ev.Sender = senderID
	if err := r.store.Apply(roomID, ev); err != nil {
		return err
	}

	r.broadcast(roomID, senderID, ev)
	return nil
}

// OnClearRequest empties the sender's room and tells the other members.
func (r *Router) OnClearRequest(senderID, roomID string) error {
	if roomID == "" {
		roomID, _ = r.registry.RoomOf(senderID)
	}
	return r.OnDrawEvent(senderID, models.ClearEvent(roomID))
}

// joinAttempts bounds how often OnJoin reloads a room that was unloaded
// between loading it and registering the session.
const joinAttempts = 3

// OnJoin registers the session in roomID, tells the other members the new
// count and delivers a snapshot to the joining session.
func (r *Router) OnJoin(ctx context.Context, sessionID, roomID string) (models.Snapshot, error) {
	peer, ok := r.registry.Peer(sessionID)
	if !ok {
		return models.Snapshot{}, fmt.Errorf("%w: %s", models.ErrUnknownSession, sessionID)
	}

	var err error
	for attempt := 0; attempt < joinAttempts; attempt++ {
		if err = r.ensureRoom(ctx, roomID); err != nil {
			return models.Snapshot{}, err
		}

		var snap models.Snapshot
		var count int
		snap, count, err = r.join(peer, roomID)
		if errors.Is(err, models.ErrRoomNotFound) {
			logger.Debug("Room %s unloaded while session %s joined, reloading", roomID, sessionID)
			continue
		}
		if err != nil {
			return models.Snapshot{}, err
		}

		r.store.Touch(roomID)
		logger.Info("Session %s joined room %s (%d active)", sessionID, roomID, count)
		return snap, nil
	}
	return models.Snapshot{}, err
}

// join registers peer and enqueues its snapshot while the room is locked.
// Every operation on the room is either in the snapshot or delivered after
// it, and the room cannot be unloaded between the registration and the
// snapshot.
func (r *Router) join(peer session.Peer, roomID string) (models.Snapshot, int, error) {
	var (
		snap    models.Snapshot
		move    session.Move
		joinErr error
	)
	err := r.store.SnapshotWith(roomID, func(s models.Snapshot) {
		move, joinErr = r.registry.Join(peer.ID(), roomID)
		if joinErr != nil {
			return
		}
		if move.Moved() {
			r.broadcast(move.FromRoom, peer.ID(), models.MembershipEvent(move.FromRoom, move.FromCount))
		}
		if move.FromRoom != roomID {
			r.broadcast(roomID, peer.ID(), models.MembershipEvent(roomID, move.Count))
		}

		snap = s
		ev := models.SnapshotEvent(s)
		ev.Count = move.Count
		data, err := json.Marshal(ev)
		if err != nil {
			logger.Error("Error marshaling snapshot for room %s: %v", roomID, err)
			return
		}
		if !peer.Send(data) {
			logger.Warn("Could not deliver snapshot of room %s to session %s", roomID, peer.ID())
		}
	})
	if err != nil {
		return models.Snapshot{}, 0, err
	}
	return snap, move.Count, joinErr
}

func (r *Router) ensureRoom(ctx context.Context, roomID string) error {
	if r.loader != nil {
		return r.loader.EnsureLoaded(ctx, roomID)
	}
	if !r.store.HasRoom(roomID) {
		return fmt.Errorf("%w: %s", models.ErrRoomNotFound, roomID)
	}
	return nil
}

// OnLeave removes the session from its room and tells the remaining members.
func (r *Router) OnLeave(sessionID string) {
	roomID, count, ok := r.registry.Leave(sessionID)
	if !ok {
		return
	}
	r.afterLeave(sessionID, roomID, count)
}

// OnDisconnect is OnLeave plus forgetting the session. Elements the session
// created stay in the room.
func (r *Router) OnDisconnect(sessionID string) {
	roomID, count, ok := r.registry.Disconnect(sessionID)
	if !ok {
		return
	}
	r.afterLeave(sessionID, roomID, count)
}

func (r *Router) afterLeave(sessionID, roomID string, count int) {
	r.store.Touch(roomID)
	r.broadcast(roomID, sessionID, models.MembershipEvent(roomID, count))
	logger.Info("Session %s left room %s (%d active)", sessionID, roomID, count)
}

// BroadcastSnapshot sends the room's current state to every member, used
// after the room was restored from persistence.
func (r *Router) BroadcastSnapshot(roomID string) error {
	return r.store.SnapshotWith(roomID, func(s models.Snapshot) {
		ev := models.SnapshotEvent(s)
		ev.Count = r.registry.Count(roomID)
		r.broadcast(roomID, "", ev)
	})
}

// CloseRoom notifies and evicts every member of a deleted room.
func (r *Router) CloseRoom(roomID string) {
	r.broadcast(roomID, "", models.Event{Type: models.EventRoomClosed, Room: roomID})
	evicted := r.registry.EvictRoom(roomID)
	if len(evicted) > 0 {
		logger.Info("Evicted %d sessions from closed room %s", len(evicted), roomID)
	}
}

func (r *Router) broadcast(roomID, except string, ev models.Event) int {
	data, err := json.Marshal(ev)
	if err != nil {
		logger.Error("Error marshaling %s event for room %s: %v", ev.Type, roomID, err)
		return 0
	}

	delivered := 0
	for _, p := range r.registry.Members(roomID, except) {
		if p.Send(data) {
			delivered++
			continue
		}
		logger.Debug("Dropped %s event for session %s in room %s", ev.Type, p.ID(), roomID)
	}
	return delivered
}
