package models

import (
	"encoding/json"
	"time"
)

// Room is the directory entry for a collaboration space.
type Room struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	CanvasWidth     int       `json:"canvas_width"`
	CanvasHeight    int       `json:"canvas_height"`
	BackgroundColor string    `json:"background_color"`
	CreatedAt       time.Time `json:"created_at"`
}

func (r Room) MarshalBinary() ([]byte, error) {
	return json.Marshal(r)
}

func (r *Room) UnmarshalBinary(data []byte) error {
	return json.Unmarshal(data, r)
}

type RoomInfo struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	CreatedAt       time.Time `json:"created_at"`
	ActiveUserCount int       `json:"active_user_count"`
	CanvasWidth     int       `json:"canvas_width"`
	CanvasHeight    int       `json:"canvas_height"`
	BackgroundColor string    `json:"background_color"`
}

// Snapshot is a full read of a room's elements and canvas parameters.
type Snapshot struct {
	Room            string    `json:"room"`
	Elements        []Element `json:"elements"`
	CanvasWidth     int       `json:"canvas_width"`
	CanvasHeight    int       `json:"canvas_height"`
	BackgroundColor string    `json:"background_color"`
}

func (s Snapshot) MarshalBinary() ([]byte, error) {
	return json.Marshal(s)
}

func (s *Snapshot) UnmarshalBinary(data []byte) error {
	return json.Unmarshal(data, s)
}

type CreateRoomRequest struct {
	Name            string `json:"room_name"`
	CanvasWidth     int    `json:"canvas_width,omitempty"`
	CanvasHeight    int    `json:"canvas_height,omitempty"`
	BackgroundColor string `json:"background_color,omitempty"`
}

// SaveCanvasRequest optionally changes the shared canvas parameters as part
// of an explicit save. Zero values keep the current parameters.
type SaveCanvasRequest struct {
	CanvasWidth     int    `json:"canvas_width,omitempty"`
	CanvasHeight    int    `json:"canvas_height,omitempty"`
	BackgroundColor string `json:"background_color,omitempty"`
}

// SaveResult reports an explicit save. Unchanged is set when the stored
// snapshot already had the same checksum and was not rewritten.
type SaveResult struct {
	Room      string    `json:"room_id"`
	Elements  int       `json:"elements"`
	Checksum  string    `json:"checksum"`
	SavedAt   time.Time `json:"saved_at"`
	Unchanged bool      `json:"unchanged"`
}
