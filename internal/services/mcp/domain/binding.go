package domain

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/kdyeo/numguess/internal/game"
	apperrors "github.com/kdyeo/numguess/internal/platform/errors"
	"github.com/kdyeo/numguess/internal/storage"
)

// ActionLocks serializes game actions per user. Acquire blocks until the
// user's action lock is held and returns the release function.
// Implementations must hand every concurrent acquisition for the same user
// the same underlying lock.
type ActionLocks interface {
	Acquire(userID string) (release func())
}

// soloLocks serializes actions with a single mutex. It backs bindings built
// without a shared lock provider, where one binding is the only actor.
type soloLocks struct {
	mu sync.Mutex
}

func (l *soloLocks) Acquire(string) func() {
	l.mu.Lock()
	return l.mu.Unlock
}

// Binding wires one user's game session to one MCP server instance. It
// implements game.Capabilities: state transitions toggle which tools and
// resources the bound server exposes, so the client-visible MCP surface always
// matches the machine's current state.
//
// Every action acquires the user's lock through the shared lock provider, so
// at most one action is in flight per user even when the user holds several
// transport sessions.
type Binding struct {
	server *mcp.Server
	userID string
	store  storage.SessionStore
	rules  game.Rules

	locks ActionLocks

	startEnabled  bool
	guessEnabled  bool
	giveUpEnabled bool
	stateVisible  bool

	guessMin, guessMax, guessAttempts int
}

// NewBinding creates a binding between a user identity and an MCP server.
// Call Initialize once the server's static surface is registered; it restores
// the tool set for whatever state the user's durable session is in.
func NewBinding(server *mcp.Server, userID string, store storage.SessionStore, rules game.Rules, locks ActionLocks) *Binding {
	if locks == nil {
		locks = &soloLocks{}
	}
	return &Binding{
		server:        server,
		userID:        userID,
		store:         store,
		rules:         rules,
		locks:         locks,
		guessMin:      rules.MinGuess,
		guessMax:      rules.MaxGuess,
		guessAttempts: rules.MaxAttempts,
	}
}

// UserID returns the bound user identity.
func (b *Binding) UserID() string { return b.userID }

// Initialize loads the user's durable session and runs the current state's
// entry hook, exposing the right tools before any request is served.
func (b *Binding) Initialize(ctx context.Context) error {
	release := b.locks.Acquire(b.userID)
	defer release()

	cx, err := b.context(ctx)
	if err != nil {
		return err
	}
	return cx.InitializeState(ctx)
}

// context rebuilds the game context from the store. Every action gets a fresh
// load so the store stays the single source of truth across replicas.
func (b *Binding) context(ctx context.Context) (*game.Context, error) {
	return game.NewContext(ctx, b.userID, b.store, b, b.rules)
}

// StartGameHandler executes a start_game request.
func (b *Binding) StartGameHandler() mcp.ToolHandlerFor[StartGameInput, GameActionResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input StartGameInput) (*mcp.CallToolResult, GameActionResult, error) {
		release := b.locks.Acquire(b.userID)
		defer release()

		cx, err := b.context(ctx)
		if err != nil {
			return nil, GameActionResult{}, err
		}
		result, err := cx.StartGame(ctx, input.PlayerName)
		if err != nil {
			return nil, GameActionResult{}, err
		}
		return textResult(result.Message), GameActionResult{Message: result.Message}, nil
	}
}

// GuessNumberHandler executes a guess_number request.
func (b *Binding) GuessNumberHandler() mcp.ToolHandlerFor[GuessNumberInput, GameActionResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input GuessNumberInput) (*mcp.CallToolResult, GameActionResult, error) {
		if input.Guess < b.rules.MinGuess || input.Guess > b.rules.MaxGuess {
			return nil, GameActionResult{}, apperrors.New(
				apperrors.CodeGuessOutOfRange,
				fmt.Sprintf("guess must be between %d and %d", b.rules.MinGuess, b.rules.MaxGuess),
			)
		}

		release := b.locks.Acquire(b.userID)
		defer release()

		cx, err := b.context(ctx)
		if err != nil {
			return nil, GameActionResult{}, err
		}
		result, err := cx.MakeGuess(ctx, input.Guess)
		if err != nil {
			return nil, GameActionResult{}, err
		}
		return textResult(result.Message), GameActionResult{Message: result.Message}, nil
	}
}

// GiveUpHandler executes a give_up request.
func (b *Binding) GiveUpHandler() mcp.ToolHandlerFor[GiveUpInput, GameActionResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, _ GiveUpInput) (*mcp.CallToolResult, GameActionResult, error) {
		release := b.locks.Acquire(b.userID)
		defer release()

		cx, err := b.context(ctx)
		if err != nil {
			return nil, GameActionResult{}, err
		}
		result, err := cx.GiveUp(ctx)
		if err != nil {
			return nil, GameActionResult{}, err
		}
		return textResult(result.Message), GameActionResult{Message: result.Message}, nil
	}
}

// SetStartEnabled implements game.Capabilities.
func (b *Binding) SetStartEnabled(enabled bool) {
	if b.startEnabled == enabled {
		return
	}
	b.startEnabled = enabled
	if enabled {
		mcp.AddTool(b.server, StartGameTool(), b.StartGameHandler())
		return
	}
	b.server.RemoveTools(StartGameToolName)
}

// SetGuessEnabled implements game.Capabilities.
func (b *Binding) SetGuessEnabled(enabled bool) {
	if b.guessEnabled == enabled {
		return
	}
	b.guessEnabled = enabled
	if enabled {
		mcp.AddTool(b.server, GuessNumberTool(b.guessMin, b.guessMax, b.guessAttempts), b.GuessNumberHandler())
		return
	}
	b.server.RemoveTools(GuessNumberToolName)
}

// SetGiveUpEnabled implements game.Capabilities.
func (b *Binding) SetGiveUpEnabled(enabled bool) {
	if b.giveUpEnabled == enabled {
		return
	}
	b.giveUpEnabled = enabled
	if enabled {
		mcp.AddTool(b.server, GiveUpTool(), b.GiveUpHandler())
		return
	}
	b.server.RemoveTools(GiveUpToolName)
}

// SetGuessBounds implements game.Capabilities. Re-registering the tool under
// the same name replaces its schema, which pushes a tools/list_changed
// notification with the narrowed bounds to connected clients.
func (b *Binding) SetGuessBounds(minGuess, maxGuess, attemptsLeft int) {
	b.guessMin, b.guessMax, b.guessAttempts = minGuess, maxGuess, attemptsLeft
	if !b.guessEnabled {
		return
	}
	mcp.AddTool(b.server, GuessNumberTool(minGuess, maxGuess, attemptsLeft), b.GuessNumberHandler())
}

// SetGameStateVisible implements game.Capabilities.
func (b *Binding) SetGameStateVisible(visible bool) {
	if b.stateVisible == visible {
		return
	}
	b.stateVisible = visible
	if visible {
		b.server.AddResource(GameStateResource(), b.GameStateResourceHandler())
		return
	}
	b.server.RemoveResources(GameStateResourceURI)
}

// NotifyGameState implements game.Capabilities.
func (b *Binding) NotifyGameState(ctx context.Context) {
	b.notifyResourceUpdated(ctx, GameStateResourceURI)
}

// NotifyHighScores implements game.Capabilities.
func (b *Binding) NotifyHighScores(ctx context.Context) {
	b.notifyResourceUpdated(ctx, HighScoresResourceURI)
}

func (b *Binding) notifyResourceUpdated(ctx context.Context, uri string) {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := b.server.ResourceUpdated(ctx, &mcp.ResourceUpdatedNotificationParams{URI: uri}); err != nil {
		log.Printf("mcp resource updated notify failed: uri=%s err=%v", uri, err)
	}
}

// textResult wraps a game message as human-readable tool content alongside the
// structured output the SDK derives from the typed result.
func textResult(message string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: message}},
	}
}
