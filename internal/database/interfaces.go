package database

import (
	"context"
	"errors"

	"whiteboard/internal/models"
)

var ErrNotFound = errors.New("not found")

type RoomRepository interface {
	CreateRoom(ctx context.Context, room *models.Room) error
	GetRoom(ctx context.Context, id string) (*models.Room, error)
	ListRooms(ctx context.Context) ([]*models.Room, error)
	DeleteRoom(ctx context.Context, id string) error
}

// SnapshotRepository stores one saved snapshot per room. A save whose
// checksum matches the stored one is skipped.
type SnapshotRepository interface {
	SaveSnapshot(ctx context.Context, snap *models.Snapshot) (*models.SaveResult, error)
	LoadSnapshot(ctx context.Context, roomID string) (*models.Snapshot, error)
}

type Database interface {
	RoomRepository
	SnapshotRepository
	Ping(ctx context.Context) error
	Close() error
}
