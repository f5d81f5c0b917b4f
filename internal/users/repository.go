package users

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/talkround/backend/internal/models"
)

var ErrNotFound = errors.New("user not found")

// Repository handles user identity and landing signup persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a users repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts a user with an issued join code.
func (r *Repository) Create(ctx context.Context, u *models.User) error {
	const q = `INSERT INTO users (id, nickname, join_code)
		VALUES (gen_random_uuid(), $1, $2)
		RETURNING id, created_at`
	return r.pool.QueryRow(ctx, q, u.Nickname, u.JoinCode).Scan(&u.ID, &u.CreatedAt)
}

// GetByID returns a user by ID.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	const q = `SELECT id, nickname, created_at FROM users WHERE id = $1`
	var u models.User
	err := r.pool.QueryRow(ctx, q, id).Scan(&u.ID, &u.Nickname, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

// GetByJoinCode returns the user owning a join code (identity reclaim).
func (r *Repository) GetByJoinCode(ctx context.Context, code string) (*models.User, error) {
	const q = `SELECT id, nickname, created_at FROM users WHERE join_code = $1`
	var u models.User
	err := r.pool.QueryRow(ctx, q, code).Scan(&u.ID, &u.Nickname, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

// CreateLandingSignup stores a landing-page email+nickname capture. Repeated
// signups for the same email update the nickname.
func (r *Repository) CreateLandingSignup(ctx context.Context, s *models.LandingSignup) error {
	const q = `INSERT INTO landing_signups (id, email, nickname)
		VALUES (gen_random_uuid(), $1, $2)
		ON CONFLICT (email) DO UPDATE SET nickname = EXCLUDED.nickname
		RETURNING id, created_at`
	return r.pool.QueryRow(ctx, q, s.Email, s.Nickname).Scan(&s.ID, &s.CreatedAt)
}
