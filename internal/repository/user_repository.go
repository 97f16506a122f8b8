package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shiva/medride/internal/model"
)

// UserRepository reads identities from the users table owned by the identity service.
type UserRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository creates a new repository backed by the given PG pool.
func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

// Lookup returns the user with the given id, or ErrNotFound.
func (r *UserRepository) Lookup(ctx context.Context, id uuid.UUID) (*model.User, error) {
	u := &model.User{}
	err := r.pool.QueryRow(ctx, `
		SELECT id, email, first_name, last_name, role, created_at
		FROM users
		WHERE id = $1`, id,
	).Scan(&u.ID, &u.Email, &u.FirstName, &u.LastName, &u.Role, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lookup user %s: %w", id, err)
	}
	return u, nil
}
