package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"whiteboard/internal/models"
	"whiteboard/pkg/logger"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
)

type PostgresDB struct {
	pool *pgxpool.Pool
}

func NewPostgresDB(databaseURL string) (*PostgresDB, error) {
	pool, err := pgxpool.New(context.Background(), databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := ApplyMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	logger.Info("Connected to database successfully")
	return &PostgresDB{pool: pool}, nil
}

func (db *PostgresDB) Close() error {
	db.pool.Close()
	return nil
}

func (db *PostgresDB) Ping(ctx context.Context) error {
	return db.pool.Ping(ctx)
}

// Room Repository Implementation
func (db *PostgresDB) CreateRoom(ctx context.Context, room *models.Room) error {
	query := `
		INSERT INTO rooms (id, name, canvas_width, canvas_height, background_color, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := db.pool.Exec(ctx, query,
		room.ID, room.Name, room.CanvasWidth, room.CanvasHeight, room.BackgroundColor, room.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("%w: room %s", models.ErrConflict, room.ID)
		}
		return fmt.Errorf("failed to create room: %w", err)
	}
	return nil
}

func (db *PostgresDB) GetRoom(ctx context.Context, id string) (*models.Room, error) {
	query := `SELECT id, name, canvas_width, canvas_height, background_color, created_at FROM rooms WHERE id = $1`

	room := &models.Room{}
	err := db.pool.QueryRow(ctx, query, id).Scan(
		&room.ID, &room.Name, &room.CanvasWidth, &room.CanvasHeight, &room.BackgroundColor, &room.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("room %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get room: %w", err)
	}
	return room, nil
}

func (db *PostgresDB) ListRooms(ctx context.Context) ([]*models.Room, error) {
	query := `
		SELECT id, name, canvas_width, canvas_height, background_color, created_at
		FROM rooms
		ORDER BY created_at, id`

	rows, err := db.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list rooms: %w", err)
	}
	defer rows.Close()

	var rooms []*models.Room
	for rows.Next() {
		room := &models.Room{}
		if err := rows.Scan(&room.ID, &room.Name, &room.CanvasWidth, &room.CanvasHeight, &room.BackgroundColor, &room.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan room: %w", err)
		}
		rooms = append(rooms, room)
	}
	return rooms, rows.Err()
}

// DeleteRoom removes the room; its snapshot goes with it by cascade.
func (db *PostgresDB) DeleteRoom(ctx context.Context, id string) error {
	tag, err := db.pool.Exec(ctx, `DELETE FROM rooms WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete room: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("room %s: %w", id, ErrNotFound)
	}
	return nil
}

// Snapshot Repository Implementation
func (db *PostgresDB) SaveSnapshot(ctx context.Context, snap *models.Snapshot) (*models.SaveResult, error) {
	checksum, elements, err := Checksum(snap)
	if err != nil {
		return nil, err
	}
	result := &models.SaveResult{Room: snap.Room, Elements: len(snap.Elements), Checksum: checksum}

	var existing string
	var savedAt time.Time
	err = db.pool.QueryRow(ctx, `SELECT checksum, saved_at FROM canvas_snapshots WHERE room_id = $1`, snap.Room).Scan(&existing, &savedAt)
	switch {
	case err == nil && existing == checksum:
		result.SavedAt = savedAt
		result.Unchanged = true
		return result, nil
	case err != nil && !errors.Is(err, pgx.ErrNoRows):
		return nil, fmt.Errorf("failed to read snapshot checksum: %w", err)
	}

	query := `
		INSERT INTO canvas_snapshots (room_id, elements, canvas_width, canvas_height, background_color, checksum, saved_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (room_id) DO UPDATE SET
			elements = EXCLUDED.elements,
			canvas_width = EXCLUDED.canvas_width,
			canvas_height = EXCLUDED.canvas_height,
			background_color = EXCLUDED.background_color,
			checksum = EXCLUDED.checksum,
			saved_at = EXCLUDED.saved_at
		RETURNING saved_at`

	err = db.pool.QueryRow(ctx, query,
		snap.Room, elements, snap.CanvasWidth, snap.CanvasHeight, snap.BackgroundColor, checksum,
	).Scan(&result.SavedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolation {
			return nil, fmt.Errorf("room %s: %w", snap.Room, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to save snapshot: %w", err)
	}
	return result, nil
}

func (db *PostgresDB) LoadSnapshot(ctx context.Context, roomID string) (*models.Snapshot, error) {
	query := `
		SELECT elements, canvas_width, canvas_height, background_color
		FROM canvas_snapshots WHERE room_id = $1`

	snap := &models.Snapshot{Room: roomID}
	err := db.pool.QueryRow(ctx, query, roomID).Scan(
		&snap.Elements, &snap.CanvasWidth, &snap.CanvasHeight, &snap.BackgroundColor,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("snapshot %s: %w", roomID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}
	return snap, nil
}
