package models

import (
	"time"

	"github.com/google/uuid"
)

// Room is a scheduled discussion room as listed in the lobby. The live session
// state is not persisted; this row carries the listing metadata only.
type Room struct {
	ID            uuid.UUID  `json:"id"`
	Code          string     `json:"code"`
	Topic         string     `json:"topic"`
	ScheduledTime *time.Time `json:"scheduled_time,omitempty"`
	IsClosed      bool       `json:"is_closed"`
	AverageRating float64    `json:"average_rating"`
	RatingCount   int        `json:"rating_count"`
	UserCount     int        `json:"user_count"` // current occupancy, from the listing join
	CreatedAt     time.Time  `json:"created_at"`
}

// RoomMember links a registered user to a room.
type RoomMember struct {
	RoomID   uuid.UUID `json:"room_id"`
	UserID   uuid.UUID `json:"user_id"`
	JoinedAt time.Time `json:"joined_at"`
}
