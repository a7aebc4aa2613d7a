// Package memory provides an in-memory storage.SessionStore used as a test
// double. The durable bbolt store is authoritative in production.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/kdyeo/numguess/internal/storage"
)

// Store is a mutex-guarded map implementation of storage.SessionStore.
type Store struct {
	mu       sync.Mutex
	sessions map[string]storage.SessionRecord
	scores   []storage.HighScoreEntry
	seeded   bool
	now      func() time.Time

	// FailWith, when set, is returned by every operation. Tests use it to
	// simulate store outages.
	FailWith error
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		sessions: make(map[string]storage.SessionRecord),
		now:      time.Now,
	}
}

// SetNow overrides the clock used for timestamps.
func (s *Store) SetNow(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// GetOrCreateSession implements storage.SessionStore.
func (s *Store) GetOrCreateSession(ctx context.Context, sessionID string) (storage.SessionRecord, error) {
	if err := ctx.Err(); err != nil {
		return storage.SessionRecord{}, err
	}
	if strings.TrimSpace(sessionID) == "" {
		return storage.SessionRecord{}, fmt.Errorf("session id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWith != nil {
		return storage.SessionRecord{}, s.FailWith
	}

	if record, ok := s.sessions[sessionID]; ok {
		return record, nil
	}

	now := s.now().UTC()
	record := storage.SessionRecord{
		ID:        sessionID,
		StateName: "Lobby",
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.sessions[sessionID] = record
	return record, nil
}

// UpdateSession implements storage.SessionStore.
func (s *Store) UpdateSession(ctx context.Context, sessionID string, update storage.SessionUpdate) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWith != nil {
		return s.FailWith
	}

	record, ok := s.sessions[sessionID]
	if !ok {
		return storage.ErrNotFound
	}

	if update.StateName != nil {
		record.StateName = *update.StateName
	}
	switch {
	case update.ClearGame:
		record.CurrentGame = nil
	case update.Game != nil:
		game := *update.Game
		record.CurrentGame = &game
	}
	record.UpdatedAt = s.now().UTC()
	s.sessions[sessionID] = record
	return nil
}

// DeleteSession implements storage.SessionStore.
func (s *Store) DeleteSession(ctx context.Context, sessionID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWith != nil {
		return s.FailWith
	}
	delete(s.sessions, sessionID)
	return nil
}

// GetHighScores implements storage.SessionStore.
func (s *Store) GetHighScores(ctx context.Context) ([]storage.HighScoreEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWith != nil {
		return nil, s.FailWith
	}

	s.seedLocked()
	scores := make([]storage.HighScoreEntry, len(s.scores))
	copy(scores, s.scores)
	return scores, nil
}

// AddHighScore implements storage.SessionStore.
func (s *Store) AddHighScore(ctx context.Context, entry storage.HighScoreEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWith != nil {
		return s.FailWith
	}

	s.seedLocked()
	s.scores = append(s.scores, entry)
	sort.SliceStable(s.scores, func(i, j int) bool {
		return s.scores[i].Attempts < s.scores[j].Attempts
	})
	if len(s.scores) > storage.MaxHighScores {
		s.scores = s.scores[:storage.MaxHighScores]
	}
	return nil
}

// Session returns the raw stored record, for test assertions.
func (s *Store) Session(sessionID string) (storage.SessionRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.sessions[sessionID]
	return record, ok
}

func (s *Store) seedLocked() {
	if s.seeded {
		return
	}
	s.scores = storage.SeedHighScores()
	s.seeded = true
}
