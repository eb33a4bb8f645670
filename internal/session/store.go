// Package session holds the short-lived per-user flow state. A user
// has at most one session; starting a new flow overwrites whatever was
// there before, and the old session's reference becomes unreachable.
package session

import (
	"context"
	"errors"

	"sikabot/internal/model"
)

var ErrNoSession = errors.New("no active session")

type Store interface {
	// Put stores the session, unconditionally replacing any existing one.
	Put(ctx context.Context, s model.Session) error
	// Get returns ErrNoSession if the user has no active session.
	Get(ctx context.Context, userID string) (*model.Session, error)
	// Update applies fn to the existing session and stores the result.
	Update(ctx context.Context, userID string, fn func(*model.Session)) error
	Delete(ctx context.Context, userID string) error
}
