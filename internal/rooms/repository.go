package rooms

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/talkround/backend/internal/models"
)

var (
	ErrUserNotFound = errors.New("user does not exist")
	ErrRoomNotFound = errors.New("room does not exist")
	ErrRoomClosed   = errors.New("room is closed")
	ErrRoomFull     = errors.New("room is full")
)

// Repository handles room listing and membership persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a rooms repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListOpen returns rooms with occupancy below capacity, with their member counts.
func (r *Repository) ListOpen(ctx context.Context, capacity int) ([]models.Room, error) {
	const q = `SELECT r.id, r.code, r.topic, r.scheduled_time, r.is_closed, r.average_rating, r.rating_count,
			COUNT(m.user_id) AS user_count, r.created_at
		FROM rooms r
		LEFT JOIN room_members m ON r.id = m.room_id
		GROUP BY r.id
		HAVING COUNT(m.user_id) < $1
		ORDER BY r.scheduled_time NULLS LAST, r.created_at DESC`
	rows, err := r.pool.Query(ctx, q, capacity)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Room
	for rows.Next() {
		var room models.Room
		if err := rows.Scan(&room.ID, &room.Code, &room.Topic, &room.ScheduledTime, &room.IsClosed,
			&room.AverageRating, &room.RatingCount, &room.UserCount, &room.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, room)
	}
	return list, rows.Err()
}

// Create inserts a room row.
func (r *Repository) Create(ctx context.Context, room *models.Room) error {
	const q = `INSERT INTO rooms (id, code, topic, scheduled_time)
		VALUES (gen_random_uuid(), $1, $2, $3)
		RETURNING id, is_closed, average_rating, rating_count, created_at`
	return r.pool.QueryRow(ctx, q, room.Code, room.Topic, room.ScheduledTime).
		Scan(&room.ID, &room.IsClosed, &room.AverageRating, &room.RatingCount, &room.CreatedAt)
}

// GetByCode returns a room by its join code.
func (r *Repository) GetByCode(ctx context.Context, code string) (*models.Room, error) {
	const q = `SELECT id, code, topic, scheduled_time, is_closed, average_rating, rating_count, created_at
		FROM rooms WHERE code = $1`
	var room models.Room
	err := r.pool.QueryRow(ctx, q, code).Scan(&room.ID, &room.Code, &room.Topic, &room.ScheduledTime,
		&room.IsClosed, &room.AverageRating, &room.RatingCount, &room.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRoomNotFound
		}
		return nil, err
	}
	return &room, nil
}

// AddMember registers a user to a room inside one transaction: the user must
// exist, the room must exist and be open, and the room must have capacity.
// Any failed check rolls the whole registration back.
func (r *Repository) AddMember(ctx context.Context, roomID, userID uuid.UUID, capacity int) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var userExists bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, userID).Scan(&userExists); err != nil {
		return err
	}
	if !userExists {
		return ErrUserNotFound
	}

	var isClosed bool
	err = tx.QueryRow(ctx, `SELECT is_closed FROM rooms WHERE id = $1 FOR UPDATE`, roomID).Scan(&isClosed)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrRoomNotFound
		}
		return err
	}
	if isClosed {
		return ErrRoomClosed
	}

	var count int
	if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM room_members WHERE room_id = $1`, roomID).Scan(&count); err != nil {
		return err
	}
	if count >= capacity {
		return ErrRoomFull
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO room_members (room_id, user_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		roomID, userID); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// RemoveMember deletes a room membership.
func (r *Repository) RemoveMember(ctx context.Context, roomID, userID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM room_members WHERE room_id = $1 AND user_id = $2`, roomID, userID)
	return err
}

// Rate folds one rating into the room's running average.
func (r *Repository) Rate(ctx context.Context, roomID uuid.UUID, rating int) error {
	const q = `UPDATE rooms
		SET average_rating = (average_rating * rating_count + $2) / (rating_count + 1),
		    rating_count = rating_count + 1
		WHERE id = $1`
	tag, err := r.pool.Exec(ctx, q, roomID, rating)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrRoomNotFound
	}
	return nil
}

// Close marks a room closed so it no longer appears in the open listing.
func (r *Repository) Close(ctx context.Context, roomID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `UPDATE rooms SET is_closed = TRUE WHERE id = $1`, roomID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrRoomNotFound
	}
	return nil
}
