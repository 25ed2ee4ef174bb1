package models

import "errors"

var (
	// ErrConflict is returned when a create reuses an element id already in the room.
	ErrConflict = errors.New("element id already exists")
	// ErrRoomMismatch is returned when an event targets a room other than the sender's.
	ErrRoomMismatch = errors.New("event room does not match sender room")
	ErrUnknownKind  = errors.New("unknown element kind")

	ErrUnknownElement = errors.New("unknown element")
	ErrInvalidEvent   = errors.New("invalid event")
	ErrRoomNotFound   = errors.New("room not found")
	ErrUnknownSession = errors.New("unknown session")
)
