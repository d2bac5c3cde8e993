package game

import (
	"context"
	"sync"
)

// SessionStore keeps the current Play of each player.
type SessionStore interface {
	// Load returns the player's play, or false when there is none.
	Load(ctx context.Context, playerID string) (*Play, bool, error)
	Save(ctx context.Context, play *Play) error
	Delete(ctx context.Context, playerID string) error
}

// MemorySessionStore is an in-memory implementation of SessionStore.
type MemorySessionStore struct {
	plays map[string]*Play
	mu    sync.RWMutex
}

// NewMemorySessionStore creates a new in-memory session store.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{
		plays: make(map[string]*Play),
	}
}

func (s *MemorySessionStore) Load(_ context.Context, playerID string) (*Play, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	play, ok := s.plays[playerID]
	if !ok {
		return nil, false, nil
	}
	return play.clone(), true, nil
}

func (s *MemorySessionStore) Save(_ context.Context, play *Play) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.plays[play.PlayerID] = play.clone()
	return nil
}

func (s *MemorySessionStore) Delete(_ context.Context, playerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.plays, playerID)
	return nil
}
