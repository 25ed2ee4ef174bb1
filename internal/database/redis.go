package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"whiteboard/internal/models"

	"github.com/redis/go-redis/v9"
)

const roomSetKey = "rooms"

// RedisDB keeps the room directory and saved snapshots in Redis:
// room:<id> holds the room, snapshot:<id> the saved snapshot and the set
// "rooms" every room id.
type RedisDB struct {
	client *redis.Client
	now    func() time.Time
}

// storedSnapshot is the value kept under snapshot:<id>.
type storedSnapshot struct {
	Snapshot models.Snapshot `json:"snapshot"`
	Checksum string          `json:"checksum"`
	SavedAt  time.Time       `json:"saved_at"`
}

func (s storedSnapshot) MarshalBinary() ([]byte, error) {
	return json.Marshal(s)
}

func (s *storedSnapshot) UnmarshalBinary(data []byte) error {
	return json.Unmarshal(data, s)
}

func NewRedisDB(redisURL string) (*RedisDB, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisDBWithClient(client), nil
}

func NewRedisDBWithClient(client *redis.Client) *RedisDB {
	return &RedisDB{client: client, now: time.Now}
}

func roomKey(id string) string     { return "room:" + id }
func snapshotKey(id string) string { return "snapshot:" + id }

func (db *RedisDB) Close() error {
	return db.client.Close()
}

func (db *RedisDB) Ping(ctx context.Context) error {
	return db.client.Ping(ctx).Err()
}

func (db *RedisDB) CreateRoom(ctx context.Context, room *models.Room) error {
	ok, err := db.client.SetNX(ctx, roomKey(room.ID), room, 0).Result()
	if err != nil {
		return fmt.Errorf("create room: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: room %s", models.ErrConflict, room.ID)
	}
	if err := db.client.SAdd(ctx, roomSetKey, room.ID).Err(); err != nil {
		return fmt.Errorf("index room: %w", err)
	}
	return nil
}

func (db *RedisDB) GetRoom(ctx context.Context, id string) (*models.Room, error) {
	data, err := db.client.Get(ctx, roomKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("room %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get room: %w", err)
	}

	room := &models.Room{}
	if err := room.UnmarshalBinary(data); err != nil {
		return nil, fmt.Errorf("decode room %s: %w", id, err)
	}
	return room, nil
}

// ListRooms returns rooms ordered by creation time, then id.
func (db *RedisDB) ListRooms(ctx context.Context) ([]*models.Room, error) {
	ids, err := db.client.SMembers(ctx, roomSetKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = roomKey(id)
	}
	values, err := db.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("load rooms: %w", err)
	}

	rooms := make([]*models.Room, 0, len(values))
	for i, v := range values {
		s, ok := v.(string)
		if !ok {
			// index entry without a room key
			continue
		}
		room := &models.Room{}
		if err := room.UnmarshalBinary([]byte(s)); err != nil {
			return nil, fmt.Errorf("decode room %s: %w", ids[i], err)
		}
		rooms = append(rooms, room)
	}

	sort.Slice(rooms, func(i, j int) bool {
		if rooms[i].CreatedAt.Equal(rooms[j].CreatedAt) {
			return rooms[i].ID < rooms[j].ID
		}
		return rooms[i].CreatedAt.Before(rooms[j].CreatedAt)
	})
	return rooms, nil
}

func (db *RedisDB) DeleteRoom(ctx context.Context, id string) error {
	var del *redis.IntCmd
	_, err := db.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		del = pipe.Del(ctx, roomKey(id))
		pipe.Del(ctx, snapshotKey(id))
		pipe.SRem(ctx, roomSetKey, id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete room: %w", err)
	}
	if del.Val() == 0 {
		return fmt.Errorf("room %s: %w", id, ErrNotFound)
	}
	return nil
}

func (db *RedisDB) SaveSnapshot(ctx context.Context, snap *models.Snapshot) (*models.SaveResult, error) {
	checksum, _, err := Checksum(snap)
	if err != nil {
		return nil, err
	}
	result := &models.SaveResult{Room: snap.Room, Elements: len(snap.Elements), Checksum: checksum}

	exists, err := db.client.Exists(ctx, roomKey(snap.Room)).Result()
	if err != nil {
		return nil, fmt.Errorf("check room: %w", err)
	}
	if exists == 0 {
		return nil, fmt.Errorf("room %s: %w", snap.Room, ErrNotFound)
	}

	existing, err := db.loadStored(ctx, snap.Room)
	switch {
	case err == nil && existing.Checksum == checksum:
		result.SavedAt = existing.SavedAt
		result.Unchanged = true
		return result, nil
	case err != nil && !errors.Is(err, ErrNotFound):
		return nil, err
	}

	result.SavedAt = db.now().UTC()
	stored := storedSnapshot{Snapshot: *snap, Checksum: checksum, SavedAt: result.SavedAt}
	if err := db.client.Set(ctx, snapshotKey(snap.Room), stored, 0).Err(); err != nil {
		return nil, fmt.Errorf("save snapshot: %w", err)
	}
	return result, nil
}

func (db *RedisDB) LoadSnapshot(ctx context.Context, roomID string) (*models.Snapshot, error) {
	stored, err := db.loadStored(ctx, roomID)
	if err != nil {
		return nil, err
	}
	snap := stored.Snapshot
	snap.Room = roomID
	return &snap, nil
}

func (db *RedisDB) loadStored(ctx context.Context, roomID string) (*storedSnapshot, error) {
	data, err := db.client.Get(ctx, snapshotKey(roomID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("snapshot %s: %w", roomID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}

	stored := &storedSnapshot{}
	if err := stored.UnmarshalBinary(data); err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", roomID, err)
	}
	return stored, nil
}
