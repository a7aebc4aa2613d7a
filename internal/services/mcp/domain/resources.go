package domain

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/kdyeo/numguess/internal/storage"
)

// Resource URIs exposed to MCP clients. The high-score list and the static
// assets are global; the game-state view is per session and registered only
// while a game is in progress.
const (
	HighScoresResourceURI = "numguess://highscores"
	GameStateResourceURI  = "numguess://game_state"
	RulesResourceURI      = "numguess://rules"
	BannerResourceURI     = "numguess://banner"
)

//go:embed assets/rules.md
var rulesText string

//go:embed assets/banner.png
var bannerImage []byte

// HighScoresResource defines the MCP resource for the shared leaderboard.
func HighScoresResource() *mcp.Resource {
	return &mcp.Resource{
		URI:         HighScoresResourceURI,
		Name:        "highscores",
		Title:       "High Scores",
		Description: "Top 10 high scores.",
		MIMEType:    "text/plain",
	}
}

// HighScoresResourceHandler returns a readable rendering of the leaderboard.
func HighScoresResourceHandler(store storage.SessionStore) mcp.ResourceHandler {
	return func(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		if store == nil {
			return nil, fmt.Errorf("high score store is not configured")
		}

		scores, err := store.GetHighScores(ctx)
		if err != nil {
			return nil, fmt.Errorf("load high scores: %w", err)
		}

		return &mcp.ReadResourceResult{
			Contents: []*mcp.ResourceContents{
				{
					URI:      HighScoresResourceURI,
					MIMEType: "text/plain",
					Text:     FormatHighScores(scores),
				},
			},
		}, nil
	}
}

// FormatHighScores renders the leaderboard as a numbered text listing.
func FormatHighScores(scores []storage.HighScoreEntry) string {
	if len(scores) == 0 {
		return "No high scores yet."
	}
	lines := make([]string, 0, len(scores))
	for i, score := range scores {
		lines = append(lines, fmt.Sprintf("%d. %s: %d attempts", i+1, score.PlayerName, score.Attempts))
	}
	return strings.Join(lines, "\n")
}

// GameStateResource defines the MCP resource for the per-session game view.
func GameStateResource() *mcp.Resource {
	return &mcp.Resource{
		URI:         GameStateResourceURI,
		Name:        "game_state",
		Title:       "Game State",
		Description: "Current state of your game in progress. The secret number is not included.",
		MIMEType:    "application/json",
	}
}

// GameStateResourceHandler returns the bound session's game view. The secret
// number never leaves the server; only the player-visible projection does.
func (b *Binding) GameStateResourceHandler() mcp.ResourceHandler {
	return func(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		release := b.locks.Acquire(b.userID)
		defer release()

		cx, err := b.context(ctx)
		if err != nil {
			return nil, err
		}
		view := cx.DisplayState()
		if view == nil {
			return nil, fmt.Errorf("no game in progress")
		}

		data, err := json.MarshalIndent(view, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("marshal game state: %w", err)
		}

		return &mcp.ReadResourceResult{
			Contents: []*mcp.ResourceContents{
				{
					URI:      GameStateResourceURI,
					MIMEType: "application/json",
					Text:     string(data),
				},
			},
		}, nil
	}
}

// RulesResource defines the MCP resource for the game rules text.
func RulesResource() *mcp.Resource {
	return &mcp.Resource{
		URI:         RulesResourceURI,
		Name:        "game_rules",
		Title:       "Game Rules",
		Description: "The official rules for the number-guessing game.",
		MIMEType:    "text/markdown",
	}
}

// RulesResourceHandler serves the embedded rules document.
func RulesResourceHandler() mcp.ResourceHandler {
	return func(_ context.Context, _ *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		return &mcp.ReadResourceResult{
			Contents: []*mcp.ResourceContents{
				{
					URI:      RulesResourceURI,
					MIMEType: "text/markdown",
					Text:     rulesText,
				},
			},
		}, nil
	}
}

// BannerResource defines the MCP resource for the banner image.
func BannerResource() *mcp.Resource {
	return &mcp.Resource{
		URI:         BannerResourceURI,
		Name:        "banner_image",
		Title:       "Banner",
		Description: "The official banner image for the number-guessing game.",
		MIMEType:    "image/png",
	}
}

// BannerResourceHandler serves the embedded banner image as a binary blob.
func BannerResourceHandler() mcp.ResourceHandler {
	return func(_ context.Context, _ *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		return &mcp.ReadResourceResult{
			Contents: []*mcp.ResourceContents{
				{
					URI:      BannerResourceURI,
					MIMEType: "image/png",
					Blob:     bannerImage,
				},
			},
		}, nil
	}
}
