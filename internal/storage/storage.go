package storage

import (
	"context"
	"time"

	apperrors "github.com/kdyeo/numguess/internal/platform/errors"
)

// ErrNotFound indicates a requested persistence record is missing.
// Callers use this to differentiate between legitimate "no such entity" states
// and transport or data corruption failures.
var ErrNotFound = apperrors.New(apperrors.CodeNotFound, "record not found")

// ActiveGameRecord is the persisted snapshot of a game in progress.
type ActiveGameRecord struct {
	PlayerName   string `json:"playerName"`
	TargetNumber int    `json:"targetNumber"`
	AttemptsLeft int    `json:"attemptsLeft"`
	MinGuess     int    `json:"minGuess"`
	MaxGuess     int    `json:"maxGuess"`
	LastMessage  string `json:"lastMessage"`
}

// SessionRecord is the durable per-user session document. Exactly one state
// name is current at any time; CurrentGame is non-nil iff StateName is the
// playing state.
type SessionRecord struct {
	ID          string            `json:"id"`
	StateName   string            `json:"stateName"`
	CurrentGame *ActiveGameRecord `json:"currentGame"`
	CreatedAt   time.Time         `json:"createdAt"`
	UpdatedAt   time.Time         `json:"updatedAt"`
}

// HighScoreEntry is a single leaderboard row. Entries are never mutated after
// creation; they can only be evicted by truncation.
type HighScoreEntry struct {
	PlayerName string `json:"playerName"`
	Attempts   int    `json:"attempts"`
}

// Leaderboard is the single global top list, ascending by attempts,
// truncated to MaxHighScores entries.
type Leaderboard struct {
	Scores []HighScoreEntry `json:"scores"`
}

// MaxHighScores bounds the leaderboard length.
const MaxHighScores = 10

// SeedHighScores returns the leaderboard contents used to initialize the
// shared document on first read.
func SeedHighScores() []HighScoreEntry {
	return []HighScoreEntry{
		{PlayerName: "ServerBest", Attempts: 2},
		{PlayerName: "MCP Champ", Attempts: 4},
	}
}

// SessionUpdate is a partial session mutation. Nil fields are left untouched.
// ClearGame removes the snapshot regardless of Game.
type SessionUpdate struct {
	StateName *string
	Game      *ActiveGameRecord
	ClearGame bool
}

// SessionStore persists per-user session documents and the shared leaderboard.
//
// GetOrCreateSession must behave as an upsert: concurrent first contact for
// the same id must not produce divergent records. AddHighScore must apply its
// read-modify-write atomically relative to other leaderboard writes.
type SessionStore interface {
	GetOrCreateSession(ctx context.Context, sessionID string) (SessionRecord, error)
	UpdateSession(ctx context.Context, sessionID string, update SessionUpdate) error
	DeleteSession(ctx context.Context, sessionID string) error
	GetHighScores(ctx context.Context) ([]HighScoreEntry, error)
	AddHighScore(ctx context.Context, entry HighScoreEntry) error
}
