package models

import (
	"time"

	"github.com/google/uuid"
)

// User is a registered participant identity: a nickname plus an opaque join
// code issued at registration. There are no credentials; the code only lets a
// client reclaim its identity for room registration.
type User struct {
	ID        uuid.UUID `json:"id"`
	Nickname  string    `json:"nickname"`
	JoinCode  string    `json:"join_code,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// LandingSignup is a landing-page interest capture (email + nickname).
type LandingSignup struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	Nickname  string    `json:"nickname"`
	CreatedAt time.Time `json:"created_at"`
}
