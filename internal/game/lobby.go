package game

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/kdyeo/numguess/internal/storage"
)

const (
	// Player name length bounds match the start_game input schema. The state
	// re-checks them so out-of-range input stays a no-op even if the boundary
	// validation is bypassed.
	playerNameMinLen = 1
	playerNameMaxLen = 50
)

const (
	msgNoGameToGuess  = "Error: Game has not started yet. Use 'start_game'."
	msgNoGameToGiveUp = "Error: No active game to give up."
	msgBadPlayerName  = "Error: Player name must be 1-50 characters."
)

// lobbyState is the idle state: no active game, only start_game callable.
type lobbyState struct{}

func (lobbyState) Variant() Variant { return VariantLobby }

// Enter clears any persisted snapshot and flips capabilities to lobby mode.
// Clearing on entry keeps the invariant that a lobby session never carries a
// game snapshot, even when the previous round's final message was persisted
// just before the transition.
func (lobbyState) Enter(ctx context.Context, cx *Context) error {
	caps := cx.Capabilities()
	caps.SetStartEnabled(true)
	caps.SetGuessEnabled(false)
	caps.SetGiveUpEnabled(false)
	caps.SetGameStateVisible(false)

	if err := cx.SetGame(ctx, nil); err != nil {
		return err
	}
	return nil
}

func (lobbyState) Exit(ctx context.Context, cx *Context) error {
	cx.Capabilities().SetStartEnabled(false)
	return nil
}

func (s lobbyState) StartGame(ctx context.Context, cx *Context, playerName string) (Result, error) {
	name := strings.TrimSpace(playerName)
	// Length bounds count characters, same as the input schema; a multibyte
	// name must not be rejected for its byte length.
	if length := utf8.RuneCountInString(name); length < playerNameMinLen || length > playerNameMaxLen {
		return Result{Message: msgBadPlayerName}, nil
	}

	rules := cx.Rules()
	game := &storage.ActiveGameRecord{
		PlayerName:   name,
		TargetNumber: rules.drawTarget(),
		AttemptsLeft: rules.MaxAttempts,
		MinGuess:     rules.MinGuess,
		MaxGuess:     rules.MaxGuess,
	}
	game.LastMessage = fmt.Sprintf("Welcome, %s! Guess %d-%d. %d attempts.",
		name, rules.MinGuess, rules.MaxGuess, rules.MaxAttempts)

	if err := cx.SetGame(ctx, game); err != nil {
		return Result{}, err
	}
	if err := cx.TransitionTo(ctx, VariantPlaying); err != nil {
		return Result{}, err
	}
	return Result{Message: game.LastMessage}, nil
}

func (lobbyState) MakeGuess(ctx context.Context, cx *Context, guess int) (Result, error) {
	return Result{Message: msgNoGameToGuess}, nil
}

func (lobbyState) GiveUp(ctx context.Context, cx *Context) (Result, error) {
	return Result{Message: msgNoGameToGiveUp}, nil
}

// DisplayState returns nil: the lobby has no public game view.
func (lobbyState) DisplayState(cx *Context) *DisplayState { return nil }
