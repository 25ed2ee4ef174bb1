// Package reconciler keeps one participant's local replica of a room.
//
// Local edits are applied to the replica immediately and then handed to a
// Sender; they never wait for the server. Remote events are applied with
// the same semantics the server store uses, so replicas that process the
// same event sequence converge. A snapshot replaces the replica wholesale.
package reconciler

import (
	"errors"
	"fmt"
	"sync"

	"whiteboard/internal/canvas"
	"whiteboard/internal/models"
	"whiteboard/pkg/logger"
)

// Sender delivers a local edit to the server. It must not block for long;
// it is called with the reconciler locked so edits leave in order.
type Sender func(ev models.Event) error

type Reconciler struct {
	mu       sync.Mutex
	room     string
	identity string
	replica  *canvas.Elements
	history  []string
	depth    int
	send     Sender
	members  int
	dropped  int
}

func New(room, identity string, depth int, send Sender) *Reconciler {
	if depth <= 0 {
		depth = 50
	}
	return &Reconciler{
		room:     room,
		identity: identity,
		replica:  canvas.NewElements(),
		depth:    depth,
		send:     send,
	}
}

func (r *Reconciler) Room() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.room
}

// SetSender swaps the outbound path, e.g. after a reconnect. A nil sender
// keeps edits local.
func (r *Reconciler) SetSender(send Sender) {
	r.mu.Lock()
	r.send = send
	r.mu.Unlock()
}

func (r *Reconciler) SetIdentity(identity string) {
	r.mu.Lock()
	r.identity = identity
	r.mu.Unlock()
}

// Create builds a new element, applies it locally and emits it.
func (r *Reconciler) Create(kind models.Kind, geometry models.Geometry, style models.Style, payload models.Payload) (models.Element, error) {
	el, err := models.NewElement(kind, geometry, style, payload)
	if err != nil {
		return models.Element{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	el.AuthoredBy = r.identity
	if err := r.replica.Create(el); err != nil {
		return models.Element{}, err
	}
	r.pushHistory(el.ID)
	r.emit(models.CreateEvent(r.room, el))
	return el, nil
}

// Update replaces the patched attribute groups of a local element.
func (r *Reconciler) Update(id string, patch models.Patch) (models.Element, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.replica.Get(id)
	if !ok {
		return models.Element{}, fmt.Errorf("%w: %s", models.ErrUnknownElement, id)
	}
	next := current.CloneWith(patch)
	if err := next.Validate(); err != nil {
		return models.Element{}, err
	}
	if err := r.replica.Update(id, next); err != nil {
		return models.Element{}, err
	}
	r.emit(models.UpdateEvent(r.room, next))
	return next, nil
}

// Delete removes id locally and emits the delete even if id was unknown.
func (r *Reconciler) Delete(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.replica.Delete(id)
	r.emit(models.DeleteEvent(r.room, id))
}

func (r *Reconciler) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.replica.Clear()
	r.emit(models.ClearEvent(r.room))
}

// Undo removes the most recently created local element that is still
// present. It only changes this replica. It reports the removed id.
func (r *Reconciler) Undo() (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for len(r.history) > 0 {
		id := r.history[len(r.history)-1]
		r.history = r.history[:len(r.history)-1]
		if r.replica.Delete(id) {
			return id, true
		}
	}
	return "", false
}

func (r *Reconciler) pushHistory(id string) {
	r.history = append(r.history, id)
	if over := len(r.history) - r.depth; over > 0 {
		r.history = append(r.history[:0], r.history[over:]...)
	}
}

func (r *Reconciler) emit(ev models.Event) {
	if r.send == nil {
		return
	}
	if err := r.send(ev); err != nil {
		r.dropped++
		logger.Debug("Local %s not sent: %v", ev.Type, err)
	}
}

// ApplyRemote folds an event from the server into the replica.
func (r *Reconciler) ApplyRemote(ev models.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch ev.Type {
	case models.EventSnapshot:
		if ev.Snapshot == nil {
			return fmt.Errorf("%w: snapshot without body", models.ErrInvalidEvent)
		}
		r.resyncLocked(*ev.Snapshot)
		if ev.Count > 0 {
			r.members = ev.Count
		}
		return nil
	case models.EventMembership:
		r.members = ev.Count
		return nil
	case models.EventCreate:
		if ev.Element == nil {
			return fmt.Errorf("%w: create without element", models.ErrInvalidEvent)
		}
		// an element both in a join snapshot and relayed afterwards
		r.replica.Put(*ev.Element)
		return nil
	case models.EventUpdate, models.EventDelete, models.EventClear:
		err := r.replica.Apply(ev)
		if errors.Is(err, models.ErrUnknownElement) {
			// deleted or cleared here before the update arrived
			return nil
		}
		return err
	case models.EventRoomClosed:
		r.replica.Clear()
		r.history = nil
		r.members = 0
		return nil
	}
	return nil
}

// Resync discards the replica and local history and adopts snap.
// Edits made while offline are not replayed.
func (r *Reconciler) Resync(snap models.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resyncLocked(snap)
}

func (r *Reconciler) resyncLocked(snap models.Snapshot) {
	if snap.Room != "" {
		r.room = snap.Room
	}
	r.replica.Reset(snap.Elements)
	r.history = nil
}

func (r *Reconciler) Elements() []models.Element {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.replica.List()
}

func (r *Reconciler) Element(id string) (models.Element, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.replica.Get(id)
}

// Members is the room's participant count as last reported by the server.
func (r *Reconciler) Members() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.members
}

// Dropped counts local edits the Sender failed to deliver.
func (r *Reconciler) Dropped() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped
}
