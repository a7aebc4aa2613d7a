package bbolt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	apperrors "github.com/kdyeo/numguess/internal/platform/errors"
	"github.com/kdyeo/numguess/internal/storage"
	"go.etcd.io/bbolt"
)

const (
	sessionBucket = "sessions"
	globalBucket  = "global"

	highScoresKey = "high_scores"
)

// Store provides a BoltDB-backed session and leaderboard store. Records are
// JSON documents; bbolt update transactions are the atomicity mechanism for
// every read-modify-write.
type Store struct {
	db  *bbolt.DB
	now func() time.Time
}

// Open opens a BoltDB-backed store at the provided path.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	cleanPath := filepath.Clean(path)
	db, err := bbolt.Open(cleanPath, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeStoreUnavailable, "open storage db", err)
	}

	store := &Store{db: db, now: time.Now}
	if err := store.ensureBuckets(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

// Close closes the underlying BoltDB database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// GetOrCreateSession loads a session document by id, creating and persisting a
// fresh lobby-state record when none exists. The lookup and the insert run in
// one update transaction so concurrent first contact cannot create divergent
// records.
func (s *Store) GetOrCreateSession(ctx context.Context, sessionID string) (storage.SessionRecord, error) {
	if err := ctx.Err(); err != nil {
		return storage.SessionRecord{}, err
	}
	if s == nil || s.db == nil {
		return storage.SessionRecord{}, fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(sessionID) == "" {
		return storage.SessionRecord{}, fmt.Errorf("session id is required")
	}

	var record storage.SessionRecord
	err := s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(sessionBucket))
		if bucket == nil {
			return fmt.Errorf("session bucket is missing")
		}
		if payload := bucket.Get(sessionKey(sessionID)); payload != nil {
			if err := json.Unmarshal(payload, &record); err != nil {
				return fmt.Errorf("unmarshal session: %w", err)
			}
			return nil
		}

		now := s.now().UTC()
		record = storage.SessionRecord{
			ID:        sessionID,
			StateName: "Lobby",
			CreatedAt: now,
			UpdatedAt: now,
		}
		payload, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("marshal session: %w", err)
		}
		return bucket.Put(sessionKey(sessionID), payload)
	})
	if err != nil {
		return storage.SessionRecord{}, storeErr("get or create session", err)
	}
	return record, nil
}

// UpdateSession applies a partial mutation to an existing session document and
// refreshes its update timestamp. It fails with storage.ErrNotFound when the
// session was deleted concurrently.
func (s *Store) UpdateSession(ctx context.Context, sessionID string, update storage.SessionUpdate) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.db == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(sessionID) == "" {
		return fmt.Errorf("session id is required")
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(sessionBucket))
		if bucket == nil {
			return fmt.Errorf("session bucket is missing")
		}
		payload := bucket.Get(sessionKey(sessionID))
		if payload == nil {
			return storage.ErrNotFound
		}

		var record storage.SessionRecord
		if err := json.Unmarshal(payload, &record); err != nil {
			return fmt.Errorf("unmarshal session: %w", err)
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

		updated, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("marshal session: %w", err)
		}
		return bucket.Put(sessionKey(sessionID), updated)
	})
	if err != nil {
		return storeErr("update session", err)
	}
	return nil
}

// DeleteSession removes a session document. Deleting a missing session is not
// an error; cleanup must be idempotent.
func (s *Store) DeleteSession(ctx context.Context, sessionID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.db == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(sessionID) == "" {
		return fmt.Errorf("session id is required")
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(sessionBucket))
		if bucket == nil {
			return fmt.Errorf("session bucket is missing")
		}
		return bucket.Delete(sessionKey(sessionID))
	})
	if err != nil {
		return storeErr("delete session", err)
	}
	return nil
}

// GetHighScores returns the shared leaderboard, lazily initializing the
// document with the seed scores on first read.
func (s *Store) GetHighScores(ctx context.Context) ([]storage.HighScoreEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("storage is not configured")
	}

	var board storage.Leaderboard
	err := s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(globalBucket))
		if bucket == nil {
			return fmt.Errorf("global bucket is missing")
		}
		if payload := bucket.Get([]byte(highScoresKey)); payload != nil {
			if err := json.Unmarshal(payload, &board); err != nil {
				return fmt.Errorf("unmarshal high scores: %w", err)
			}
			return nil
		}

		board = storage.Leaderboard{Scores: storage.SeedHighScores()}
		payload, err := json.Marshal(board)
		if err != nil {
			return fmt.Errorf("marshal high scores: %w", err)
		}
		return bucket.Put([]byte(highScoresKey), payload)
	})
	if err != nil {
		return nil, storeErr("get high scores", err)
	}
	return board.Scores, nil
}

// AddHighScore appends an entry to the leaderboard, resorts it ascending by
// attempts and truncates it to the top entries. The whole read-modify-write
// runs in one update transaction: two simultaneous winners must not lose an
// entry or produce an unsorted or overlong list.
func (s *Store) AddHighScore(ctx context.Context, entry storage.HighScoreEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.db == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(entry.PlayerName) == "" {
		return fmt.Errorf("player name is required")
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(globalBucket))
		if bucket == nil {
			return fmt.Errorf("global bucket is missing")
		}

		board := storage.Leaderboard{Scores: storage.SeedHighScores()}
		if payload := bucket.Get([]byte(highScoresKey)); payload != nil {
			if err := json.Unmarshal(payload, &board); err != nil {
				return fmt.Errorf("unmarshal high scores: %w", err)
			}
		}

		board.Scores = append(board.Scores, entry)
		sort.SliceStable(board.Scores, func(i, j int) bool {
			return board.Scores[i].Attempts < board.Scores[j].Attempts
		})
		if len(board.Scores) > storage.MaxHighScores {
			board.Scores = board.Scores[:storage.MaxHighScores]
		}

		payload, err := json.Marshal(board)
		if err != nil {
			return fmt.Errorf("marshal high scores: %w", err)
		}
		return bucket.Put([]byte(highScoresKey), payload)
	})
	if err != nil {
		return storeErr("add high score", err)
	}
	return nil
}

func (s *Store) ensureBuckets() error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(sessionBucket)); err != nil {
			return fmt.Errorf("create session bucket: %w", err)
		}
		if _, err := tx.CreateBucketIfNotExists([]byte(globalBucket)); err != nil {
			return fmt.Errorf("create global bucket: %w", err)
		}
		return nil
	})
	if err != nil {
		return apperrors.Wrap(apperrors.CodeStoreUnavailable, "ensure buckets", err)
	}
	return nil
}

func sessionKey(id string) []byte {
	return []byte(id)
}

// storeErr keeps domain-relevant errors (not-found, cancellation) intact and
// tags everything else as a store failure.
func storeErr(op string, err error) error {
	if errors.Is(err, storage.ErrNotFound) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return apperrors.Wrap(apperrors.CodeStoreUnavailable, op, err)
}
