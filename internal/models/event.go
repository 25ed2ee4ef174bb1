package models

import "fmt"

type EventType string

// Client operations.
const (
	EventCreate EventType = "create"
	EventUpdate EventType = "update"
	EventDelete EventType = "delete"
	EventClear  EventType = "clear"
	EventJoin   EventType = "join"
	EventLeave  EventType = "leave"
)

// Server notices.
const (
	EventWelcome    EventType = "welcome"
	EventSnapshot   EventType = "snapshot"
	EventMembership EventType = "membership"
	EventRoomClosed EventType = "room_closed"
	EventError      EventType = "error"
)

// Event is the wire envelope. Which fields may be set depends on Type;
// Validate enforces that.
type Event struct {
	Type      EventType `json:"type"`
	Room      string    `json:"room,omitempty"`
	Element   *Element  `json:"element,omitempty"`
	ElementID string    `json:"element_id,omitempty"`
	Snapshot  *Snapshot `json:"snapshot,omitempty"`
	Count     int       `json:"count,omitempty"`
	Session   string    `json:"session,omitempty"`
	Identity  string    `json:"identity,omitempty"`
	Token     string    `json:"token,omitempty"`
	Sender    string    `json:"sender,omitempty"`
	Message   string    `json:"message,omitempty"`
}

// IsDrawOp reports whether the event mutates a room's elements.
func (e Event) IsDrawOp() bool {
	switch e.Type {
	case EventCreate, EventUpdate, EventDelete, EventClear:
		return true
	}
	return false
}

// TargetID is the id of the element the event addresses, if any.
func (e Event) TargetID() string {
	if e.Element != nil {
		return e.Element.ID
	}
	return e.ElementID
}

// Validate checks an inbound client event. Server notices are rejected.
func (e Event) Validate() error {
	switch e.Type {
	case EventCreate, EventUpdate:
		if e.Room == "" {
			return fmt.Errorf("%w: %s requires room", ErrInvalidEvent, e.Type)
		}
		if e.Element == nil {
			return fmt.Errorf("%w: %s requires element", ErrInvalidEvent, e.Type)
		}
		if e.ElementID != "" && e.ElementID != e.Element.ID {
			return fmt.Errorf("%w: element_id %q does not match element %q", ErrInvalidEvent, e.ElementID, e.Element.ID)
		}
		if e.Snapshot != nil {
			return fmt.Errorf("%w: %s cannot carry a snapshot", ErrInvalidEvent, e.Type)
		}
		return e.Element.Validate()
	case EventDelete:
		if e.Room == "" || e.ElementID == "" {
			return fmt.Errorf("%w: delete requires room and element_id", ErrInvalidEvent)
		}
		if e.Element != nil || e.Snapshot != nil {
			return fmt.Errorf("%w: delete carries only element_id", ErrInvalidEvent)
		}
	case EventClear:
		if e.Room == "" {
			return fmt.Errorf("%w: clear requires room", ErrInvalidEvent)
		}
		if e.Element != nil || e.ElementID != "" || e.Snapshot != nil {
			return fmt.Errorf("%w: clear carries no element", ErrInvalidEvent)
		}
	case EventJoin:
		if e.Room == "" {
			return fmt.Errorf("%w: join requires room", ErrInvalidEvent)
		}
		if e.Element != nil || e.ElementID != "" || e.Snapshot != nil {
			return fmt.Errorf("%w: join carries no element", ErrInvalidEvent)
		}
	case EventLeave:
		if e.Element != nil || e.ElementID != "" || e.Snapshot != nil {
			return fmt.Errorf("%w: leave carries no element", ErrInvalidEvent)
		}
	default:
		return fmt.Errorf("%w: unsupported type %q", ErrInvalidEvent, e.Type)
	}
	return nil
}

func CreateEvent(room string, el Element) Event {
	return Event{Type: EventCreate, Room: room, Element: &el}
}

func UpdateEvent(room string, el Element) Event {
	return Event{Type: EventUpdate, Room: room, Element: &el}
}

func DeleteEvent(room, id string) Event {
	return Event{Type: EventDelete, Room: room, ElementID: id}
}

func ClearEvent(room string) Event {
	return Event{Type: EventClear, Room: room}
}

func SnapshotEvent(snap Snapshot) Event {
	return Event{Type: EventSnapshot, Room: snap.Room, Snapshot: &snap}
}

func MembershipEvent(room string, count int) Event {
	return Event{Type: EventMembership, Room: room, Count: count}
}

func ErrorEvent(room string, err error) Event {
	return Event{Type: EventError, Room: room, Message: err.Error()}
}
