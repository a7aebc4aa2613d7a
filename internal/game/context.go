package game

import (
	"context"
	"fmt"
	"log"
	"strings"

	apperrors "github.com/kdyeo/numguess/internal/platform/errors"
	"github.com/kdyeo/numguess/internal/storage"
	"golang.org/x/sync/errgroup"
)

// Context binds one user identity to its persisted session, the resolved
// state handler and the capability toggles of the live transport session. It
// is built per inbound action and is not safe for concurrent use; the
// transport serializes actions per user.
type Context struct {
	userID string
	store  storage.SessionStore
	caps   Capabilities
	rules  Rules

	record storage.SessionRecord
	scores []storage.HighScoreEntry
	state  State
}

// NewContext loads the session record and the leaderboard concurrently and
// resolves the persisted state name to a handler.
//
// An empty user id fails with AUTHENTICATION_REQUIRED. A persisted state name
// with no handler fails with STATE_UNKNOWN; that is a data-integrity fault
// and is logged loudly rather than silently defaulted.
func NewContext(ctx context.Context, userID string, store storage.SessionStore, caps Capabilities, rules Rules) (*Context, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, apperrors.New(apperrors.CodeAuthenticationRequired, "user identity is required")
	}
	if store == nil {
		return nil, fmt.Errorf("session store is required")
	}
	if caps == nil {
		caps = NopCapabilities{}
	}

	cx := &Context{
		userID: userID,
		store:  store,
		caps:   caps,
		rules:  rules,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		record, err := store.GetOrCreateSession(groupCtx, userID)
		if err != nil {
			return fmt.Errorf("load session: %w", err)
		}
		cx.record = record
		return nil
	})
	group.Go(func() error {
		scores, err := store.GetHighScores(groupCtx)
		if err != nil {
			return fmt.Errorf("load high scores: %w", err)
		}
		cx.scores = scores
		return nil
	})
	if err := group.Wait(); err != nil {
		return nil, err
	}

	state, err := StateFor(cx.record.StateName)
	if err != nil {
		log.Printf("CRITICAL: session %s has unresolvable state %q: %v", userID, cx.record.StateName, err)
		return nil, err
	}
	cx.state = state

	return cx, nil
}

// UserID returns the owning user identity.
func (cx *Context) UserID() string { return cx.userID }

// State returns the current state handler.
func (cx *Context) State() State { return cx.state }

// Variant returns the current state name.
func (cx *Context) Variant() Variant { return cx.state.Variant() }

// Rules returns the active rule set.
func (cx *Context) Rules() Rules { return cx.rules }

// Capabilities returns the capability collaborator for this session.
func (cx *Context) Capabilities() Capabilities { return cx.caps }

// InitializeState runs Enter on the current state. The transport calls this
// once after capability wiring is complete, so a session resumed mid-game
// re-exposes the right tools before any request is served.
func (cx *Context) InitializeState(ctx context.Context) error {
	return cx.state.Enter(ctx, cx)
}

// TransitionTo moves the machine to the named variant: exit the old state,
// persist the new variant name, enter the new state. The ordering is fixed;
// Enter may rely on the persisted transition having already committed.
func (cx *Context) TransitionTo(ctx context.Context, variant Variant) error {
	next, err := StateFor(string(variant))
	if err != nil {
		return err
	}

	log.Printf("session %s: transitioning from %s to %s", cx.userID, cx.state.Variant(), variant)

	if err := cx.state.Exit(ctx, cx); err != nil {
		return fmt.Errorf("exit %s: %w", cx.state.Variant(), err)
	}

	stateName := string(variant)
	if err := cx.store.UpdateSession(ctx, cx.userID, storage.SessionUpdate{StateName: &stateName}); err != nil {
		return fmt.Errorf("persist state %s: %w", variant, err)
	}
	cx.record.StateName = stateName
	cx.state = next

	if err := next.Enter(ctx, cx); err != nil {
		return fmt.Errorf("enter %s: %w", variant, err)
	}
	return nil
}

// Game returns a copy of the current snapshot, or nil when no game is in
// progress.
func (cx *Context) Game() *storage.ActiveGameRecord {
	if cx.record.CurrentGame == nil {
		return nil
	}
	game := *cx.record.CurrentGame
	return &game
}

// SetGame persists the snapshot (nil clears it) and refreshes the in-memory
// cache. The store is the single source of truth; the cache only ever
// reflects a committed write.
func (cx *Context) SetGame(ctx context.Context, game *storage.ActiveGameRecord) error {
	update := storage.SessionUpdate{}
	if game == nil {
		update.ClearGame = true
	} else {
		copied := *game
		update.Game = &copied
	}
	if err := cx.store.UpdateSession(ctx, cx.userID, update); err != nil {
		return fmt.Errorf("persist game: %w", err)
	}
	if game == nil {
		cx.record.CurrentGame = nil
	} else {
		copied := *game
		cx.record.CurrentGame = &copied
	}
	return nil
}

// HighScores returns the cached leaderboard loaded at construction.
func (cx *Context) HighScores() []storage.HighScoreEntry {
	scores := make([]storage.HighScoreEntry, len(cx.scores))
	copy(scores, cx.scores)
	return scores
}

// AddHighScore records a winning entry through the store's transactional
// update, refreshes the cached leaderboard and signals the leaderboard view.
func (cx *Context) AddHighScore(ctx context.Context, entry storage.HighScoreEntry) error {
	if err := cx.store.AddHighScore(ctx, entry); err != nil {
		return fmt.Errorf("add high score: %w", err)
	}
	scores, err := cx.store.GetHighScores(ctx)
	if err != nil {
		return fmt.Errorf("reload high scores: %w", err)
	}
	cx.scores = scores
	cx.caps.NotifyHighScores(ctx)
	return nil
}

// DisplayState returns the public game view for the current state, or nil
// when there is nothing to show.
func (cx *Context) DisplayState() *DisplayState {
	return cx.state.DisplayState(cx)
}

// StartGame dispatches the start action to the current state.
func (cx *Context) StartGame(ctx context.Context, playerName string) (Result, error) {
	return cx.state.StartGame(ctx, cx, playerName)
}

// MakeGuess dispatches the guess action to the current state.
func (cx *Context) MakeGuess(ctx context.Context, guess int) (Result, error) {
	return cx.state.MakeGuess(ctx, cx, guess)
}

// GiveUp dispatches the give-up action to the current state.
func (cx *Context) GiveUp(ctx context.Context) (Result, error) {
	return cx.state.GiveUp(ctx, cx)
}
