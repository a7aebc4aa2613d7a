package game

import (
	"context"
	"fmt"

	apperrors "github.com/kdyeo/numguess/internal/platform/errors"
)

// Variant names a state-machine state. The variant name is what gets
// persisted in the session record.
type Variant string

const (
	// VariantLobby is the idle state: no game in progress, only start_game
	// is callable.
	VariantLobby Variant = "Lobby"
	// VariantPlaying is the active state: a game snapshot exists and
	// guess_number/give_up are callable.
	VariantPlaying Variant = "Playing"
)

// Result is the outcome of a player action. Domain rejections (guessing with
// no active game, starting twice) are successful results carrying plain
// instructional text, not errors.
type Result struct {
	Message string
}

// DisplayState is the public per-session game view projected for the
// game-state resource. It never exposes the target number.
type DisplayState struct {
	AttemptsLeft int    `json:"attemptsLeft"`
	MinGuess     int    `json:"minGuess"`
	MaxGuess     int    `json:"maxGuess"`
	Message      string `json:"message"`
}

// State is the per-variant behavior contract. States are stateless
// singletons; all session data lives in the Context and the store.
type State interface {
	Variant() Variant

	Enter(ctx context.Context, cx *Context) error
	Exit(ctx context.Context, cx *Context) error

	StartGame(ctx context.Context, cx *Context, playerName string) (Result, error)
	MakeGuess(ctx context.Context, cx *Context, guess int) (Result, error)
	GiveUp(ctx context.Context, cx *Context) (Result, error)

	DisplayState(cx *Context) *DisplayState
}

// states is the variant-keyed handler table. It is built once and validated
// at init so a persisted name either resolves here or is a data-integrity
// fault, never a silent default.
var states = map[Variant]State{
	VariantLobby:   lobbyState{},
	VariantPlaying: playingState{},
}

var allVariants = []Variant{VariantLobby, VariantPlaying}

func init() {
	for _, variant := range allVariants {
		state, ok := states[variant]
		if !ok {
			panic(fmt.Sprintf("game: no handler registered for state %q", variant))
		}
		if state.Variant() != variant {
			panic(fmt.Sprintf("game: handler for %q reports variant %q", variant, state.Variant()))
		}
	}
}

// StateFor resolves a persisted state name to its handler. An unknown name
// indicates data corruption or version skew and must be surfaced, not
// coerced to a default state.
func StateFor(name string) (State, error) {
	state, ok := states[Variant(name)]
	if !ok {
		return nil, apperrors.New(apperrors.CodeStateUnknown, fmt.Sprintf("no handler for persisted state %q", name))
	}
	return state, nil
}
