package progression

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

// ErrPlayerRequired is returned when a store call has no player id.
var ErrPlayerRequired = errors.New("player id is required")

// Record is one completed level of a player.
type Record struct {
	LevelID     string    `json:"level_id"`
	BestScore   int       `json:"best_score"`
	Attempts    int       `json:"attempts"`
	CompletedAt time.Time `json:"completed_at"`
}

// Store persists completed levels per player.
type Store interface {
	// Records returns the player's completed levels ordered by level id.
	Records(ctx context.Context, playerID string) ([]Record, error)
	// Complete records a completed level. Completing a level again keeps the
	// better score.
	Complete(ctx context.Context, playerID string, rec Record) error
	// Reset clears every completed level of the player.
	Reset(ctx context.Context, playerID string) error
}

// CompletedSet builds the completed-level set from records.
func CompletedSet(records []Record) Completed {
	set := make(Completed, len(records))
	for _, r := range records {
		set[r.LevelID] = true
	}
	return set
}

// merge keeps the better of two records of the same level. Ties keep the
// earlier completion.
func merge(old, rec Record) Record {
	if rec.BestScore > old.BestScore {
		old.BestScore = rec.BestScore
		old.Attempts = rec.Attempts
	}
	return old
}

// MemoryStore is an in-memory implementation of Store.
type MemoryStore struct {
	players map[string]map[string]Record
	mu      sync.RWMutex
}

// NewMemoryStore creates a new in-memory progress store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		players: make(map[string]map[string]Record),
	}
}

func (s *MemoryStore) Records(_ context.Context, playerID string) ([]Record, error) {
	if playerID == "" {
		return nil, ErrPlayerRequired
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	records := make([]Record, 0, len(s.players[playerID]))
	for _, r := range s.players[playerID] {
		records = append(records, r)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].LevelID < records[j].LevelID })
	return records, nil
}

func (s *MemoryStore) Complete(_ context.Context, playerID string, rec Record) error {
	if playerID == "" {
		return ErrPlayerRequired
	}
	if rec.LevelID == "" {
		return errors.New("level id is required")
	}
	if rec.CompletedAt.IsZero() {
		rec.CompletedAt = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	levels, ok := s.players[playerID]
	if !ok {
		levels = make(map[string]Record)
		s.players[playerID] = levels
	}
	if old, ok := levels[rec.LevelID]; ok {
		rec = merge(old, rec)
	}
	levels[rec.LevelID] = rec
	return nil
}

func (s *MemoryStore) Reset(_ context.Context, playerID string) error {
	if playerID == "" {
		return ErrPlayerRequired
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.players, playerID)
	return nil
}
