package game

import (
	"context"
	"fmt"

	"github.com/kdyeo/numguess/internal/storage"
)

const (
	msgAlreadyPlaying   = "Error: Game is already in progress. Use 'guess_number' or 'give_up'."
	msgLostGameSnapshot = "Error: No game in progress. Returning to lobby."
	msgLostGiveUp       = "Error: No game to give up."
)

// playingState is the active state: a snapshot exists and guesses are open.
type playingState struct{}

func (playingState) Variant() Variant { return VariantPlaying }

// Enter flips capabilities to playing mode and pushes the snapshot's current
// bounds as the advertised guess constraints, so a session resumed mid-game
// picks up exactly where it left off.
func (playingState) Enter(ctx context.Context, cx *Context) error {
	caps := cx.Capabilities()
	caps.SetGuessEnabled(true)
	caps.SetGiveUpEnabled(true)
	caps.SetGameStateVisible(true)

	if game := cx.Game(); game != nil {
		caps.SetGuessBounds(game.MinGuess, game.MaxGuess, game.AttemptsLeft)
		caps.NotifyGameState(ctx)
	}
	return nil
}

func (playingState) Exit(ctx context.Context, cx *Context) error {
	caps := cx.Capabilities()
	caps.SetGuessEnabled(false)
	caps.SetGiveUpEnabled(false)
	caps.SetGameStateVisible(false)
	return nil
}

func (playingState) StartGame(ctx context.Context, cx *Context, playerName string) (Result, error) {
	return Result{Message: msgAlreadyPlaying}, nil
}

func (s playingState) MakeGuess(ctx context.Context, cx *Context, guess int) (Result, error) {
	game := cx.Game()
	if game == nil {
		// Unreachable if the snapshot invariant holds; recover to the lobby
		// rather than serving a broken session.
		if err := cx.TransitionTo(ctx, VariantLobby); err != nil {
			return Result{}, err
		}
		return Result{Message: msgLostGameSnapshot}, nil
	}

	game.AttemptsLeft--

	var message string
	gameOver := false

	switch {
	case guess == game.TargetNumber:
		attemptsTaken := cx.Rules().MaxAttempts - game.AttemptsLeft
		message = fmt.Sprintf("Congrats, %s! Guessed %d in %d attempts!",
			game.PlayerName, game.TargetNumber, attemptsTaken)
		if err := cx.AddHighScore(ctx, storage.HighScoreEntry{
			PlayerName: game.PlayerName,
			Attempts:   attemptsTaken,
		}); err != nil {
			return Result{}, err
		}
		gameOver = true

	case game.AttemptsLeft == 0:
		message = fmt.Sprintf("Game Over, %s. Number was %d.", game.PlayerName, game.TargetNumber)
		gameOver = true

	case guess < game.TargetNumber:
		game.MinGuess = max(game.MinGuess, guess+1)
		message = fmt.Sprintf("Too low! %d attempts left.", game.AttemptsLeft)

	default:
		game.MaxGuess = min(game.MaxGuess, guess-1)
		message = fmt.Sprintf("Too high! %d attempts left.", game.AttemptsLeft)
	}

	game.LastMessage = message
	if err := cx.SetGame(ctx, game); err != nil {
		return Result{}, err
	}

	if gameOver {
		if err := cx.TransitionTo(ctx, VariantLobby); err != nil {
			return Result{}, err
		}
	} else {
		caps := cx.Capabilities()
		caps.SetGuessBounds(game.MinGuess, game.MaxGuess, game.AttemptsLeft)
		caps.NotifyGameState(ctx)
	}
	return Result{Message: message}, nil
}

func (playingState) GiveUp(ctx context.Context, cx *Context) (Result, error) {
	game := cx.Game()
	if game == nil {
		if err := cx.TransitionTo(ctx, VariantLobby); err != nil {
			return Result{}, err
		}
		return Result{Message: msgLostGiveUp}, nil
	}

	message := fmt.Sprintf("Game over. %s gave up. Number was %d.", game.PlayerName, game.TargetNumber)
	game.LastMessage = message
	if err := cx.SetGame(ctx, game); err != nil {
		return Result{}, err
	}
	if err := cx.TransitionTo(ctx, VariantLobby); err != nil {
		return Result{}, err
	}
	return Result{Message: message}, nil
}

// DisplayState projects the public view from the snapshot, hiding the target.
func (playingState) DisplayState(cx *Context) *DisplayState {
	game := cx.Game()
	if game == nil {
		return nil
	}
	return &DisplayState{
		AttemptsLeft: game.AttemptsLeft,
		MinGuess:     game.MinGuess,
		MaxGuess:     game.MaxGuess,
		Message:      game.LastMessage,
	}
}
