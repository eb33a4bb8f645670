package session

import (
	"context"
	"sync"

	"sikabot/internal/model"
)

// MemoryStore is a map-backed Store used in tests and single-process
// development runs. No TTL: entries live until deleted.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]model.Session
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]model.Session)}
}

func (s *MemoryStore) Put(ctx context.Context, sess model.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.UserID] = sess
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, userID string) (*model.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[userID]
	if !ok {
		return nil, ErrNoSession
	}
	out := sess
	return &out, nil
}

func (s *MemoryStore) Update(ctx context.Context, userID string, fn func(*model.Session)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[userID]
	if !ok {
		return ErrNoSession
	}
	fn(&sess)
	s.sessions[userID] = sess
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, userID)
	return nil
}
