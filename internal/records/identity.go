package records

import (
	"context"
	"sync"
)

// IdentityStore persists the signed-in identity under an opaque session
// token so it survives page reloads and server restarts (when backed by Redis).
type IdentityStore interface {
	Save(ctx context.Context, token string, id Identity) error
	Load(ctx context.Context, token string) (*Identity, error)
	Clear(ctx context.Context, token string) error
}

type MemoryIdentityStore struct {
	mu       sync.RWMutex
	sessions map[string]Identity
}

func NewMemoryIdentityStore() *MemoryIdentityStore {
	return &MemoryIdentityStore{sessions: make(map[string]Identity)}
}

func (s *MemoryIdentityStore) Save(_ context.Context, token string, id Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[token] = id
	return nil
}

func (s *MemoryIdentityStore) Load(_ context.Context, token string) (*Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.sessions[token]
	if !ok {
		return nil, ErrNoIdentity
	}
	return &id, nil
}

func (s *MemoryIdentityStore) Clear(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, token)
	return nil
}
