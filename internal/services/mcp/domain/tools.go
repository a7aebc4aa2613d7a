package domain

import (
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Tool names exposed to MCP clients. The set of registered tools at any moment
// is the client-visible projection of the game state machine.
const (
	StartGameToolName   = "start_game"
	GuessNumberToolName = "guess_number"
	GiveUpToolName      = "give_up"
)

// StartGameInput represents the MCP tool input for starting a game.
type StartGameInput struct {
	PlayerName string `json:"playerName"`
}

// GuessNumberInput represents the MCP tool input for guessing the number.
type GuessNumberInput struct {
	Guess int `json:"guess"`
}

// GiveUpInput represents the MCP tool input for forfeiting the current game.
type GiveUpInput struct{}

// GameActionResult represents the MCP tool output shared by all game actions.
// Domain rejections travel here as ordinary messages, not protocol errors.
type GameActionResult struct {
	Message string `json:"message"`
}

// StartGameTool defines the MCP tool schema for starting a game.
func StartGameTool() *mcp.Tool {
	minLen, maxLen := 1, 50
	return &mcp.Tool{
		Name:        StartGameToolName,
		Description: "Starts a new number-guessing game for the named player.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"playerName": {
					Type:        "string",
					Description: "Display name recorded on the leaderboard",
					MinLength:   &minLen,
					MaxLength:   &maxLen,
				},
			},
			Required: []string{"playerName"},
		},
	}
}

// GuessNumberTool defines the MCP tool schema for guessing the number. The
// schema advertises the live bounds so well-behaved clients never submit a
// guess the game has already ruled out.
func GuessNumberTool(minGuess, maxGuess, attemptsLeft int) *mcp.Tool {
	lower, upper := float64(minGuess), float64(maxGuess)
	return &mcp.Tool{
		Name: GuessNumberToolName,
		Description: fmt.Sprintf(
			"Guesses the secret number. It is between %d and %d; %d attempts left.",
			minGuess, maxGuess, attemptsLeft,
		),
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"guess": {
					Type:        "integer",
					Description: fmt.Sprintf("Your guess, between %d and %d inclusive", minGuess, maxGuess),
					Minimum:     &lower,
					Maximum:     &upper,
				},
			},
			Required: []string{"guess"},
		},
	}
}

// GiveUpTool defines the MCP tool schema for forfeiting the current game.
func GiveUpTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        GiveUpToolName,
		Description: "Forfeits the game in progress and reveals the secret number.",
		InputSchema: &jsonschema.Schema{
			Type:       "object",
			Properties: map[string]*jsonschema.Schema{},
		},
	}
}
