package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"sikabot/internal/model"
)

var ErrUserNotFound = errors.New("user not found")

type UserRepo struct {
	dbPool *pgxpool.Pool
}

func NewUserRepo(db *pgxpool.Pool) *UserRepo {
	return &UserRepo{dbPool: db}
}

// Ensure creates the profile on first interaction. Existing profiles
// keep their original display name and creation timestamp.
func (r *UserRepo) Ensure(ctx context.Context, userID, displayName string) error {
	_, err := r.dbPool.Exec(ctx,
		`INSERT INTO users (id, display_name) VALUES ($1, $2)
		 ON CONFLICT (id) DO NOTHING`, userID, displayName)
	if err != nil {
		return fmt.Errorf("ensure user: %w", err)
	}
	return nil
}

func (r *UserRepo) Get(ctx context.Context, userID string) (*model.User, error) {
	var u model.User
	err := r.dbPool.QueryRow(ctx,
		`SELECT id, display_name, created_at FROM users WHERE id = $1`, userID).
		Scan(&u.ID, &u.DisplayName, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query user: %w", err)
	}
	return &u, nil
}
