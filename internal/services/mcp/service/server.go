package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/kdyeo/numguess/internal/game"
	"github.com/kdyeo/numguess/internal/platform/id"
	"github.com/kdyeo/numguess/internal/services/mcp/domain"
	"github.com/kdyeo/numguess/internal/storage"
)

const (
	// serverName identifies this MCP server to clients.
	serverName = "numguess"
	// serverVersion identifies the MCP server version.
	serverVersion = "0.1.0"

	// serverInstructions orients clients that read server metadata.
	serverInstructions = "A number-guessing game. Call start_game with your player name; " +
		"while a game is in progress, guess_number and give_up become available."

	// userEntryCleanupInterval is how often the cleanup goroutine runs to
	// remove idle per-user registry entries.
	userEntryCleanupInterval = 5 * time.Minute

	// userEntryExpirationTime is how long a user can be inactive before the
	// registry entry is dropped.
	userEntryExpirationTime = 1 * time.Hour
)

// TransportKind identifies the MCP transport implementation.
type TransportKind string

const (
	// TransportStdio uses standard input/output for MCP.
	TransportStdio TransportKind = "stdio"
	// TransportHTTP runs MCP over streamable HTTP for remote clients.
	TransportHTTP TransportKind = "http"
)

// Config configures the MCP server.
type Config struct {
	Transport TransportKind

	// Store is the durable session and leaderboard store. Required.
	Store storage.SessionStore
	// Rules configures the game; zero value means defaults.
	Rules game.Rules

	// StdioUserID is the user identity for the single stdio session.
	StdioUserID string

	// HTTPAddr is the HTTP server address. Defaults to localhost:8081.
	HTTPAddr string
	// AllowedHosts lists non-loopback Host/Origin values accepted over HTTP.
	AllowedHosts []string
	// AuthIssuer enables bearer-token introspection when set.
	AuthIssuer string
	// AuthSecret authenticates this server to the introspection endpoint.
	AuthSecret string
	// DefaultUserID, when set, is used for HTTP requests that carry no user
	// identity. Leaving it empty makes identity mandatory.
	DefaultUserID string
}

// Server hosts MCP sessions over a single store. Each session gets its own
// mcp.Server instance so tool availability can be toggled per user without
// affecting anyone else.
type Server struct {
	store storage.SessionStore
	rules game.Rules
	users *userRegistry
}

// NewServer creates the MCP session host.
func NewServer(store storage.SessionStore, rules game.Rules) (*Server, error) {
	if store == nil {
		return nil, fmt.Errorf("session store is required")
	}
	if rules.MaxGuess == 0 {
		rules = game.DefaultRules()
	}
	return &Server{
		store: store,
		rules: rules,
		users: newUserRegistry(),
	}, nil
}

// newSessionServer builds a per-session MCP server for one user: static
// resources first, then the capability binding, then the initial state entry
// so the right tools are exposed before any request is served.
func (s *Server) newSessionServer(ctx context.Context, userID string) (*mcp.Server, error) {
	server := mcp.NewServer(
		&mcp.Implementation{Name: serverName, Version: serverVersion},
		&mcp.ServerOptions{Instructions: serverInstructions},
	)

	server.AddResource(domain.HighScoresResource(), domain.HighScoresResourceHandler(s.store))
	server.AddResource(domain.RulesResource(), domain.RulesResourceHandler())
	server.AddResource(domain.BannerResource(), domain.BannerResourceHandler())

	binding := domain.NewBinding(server, userID, s.store, s.rules, s.users)
	if err := binding.Initialize(ctx); err != nil {
		return nil, fmt.Errorf("initialize session for user %s: %w", userID, err)
	}

	sessionID, err := id.NewID()
	if err != nil {
		sessionID = "unknown"
	}
	log.Printf("mcp session %s created for user %s", sessionID, userID)
	return server, nil
}

// Run is the service entrypoint for MCP and blocks until context cancellation.
func Run(ctx context.Context, cfg Config) error {
	if cfg.Transport == "" {
		cfg.Transport = TransportStdio
	}

	server, err := NewServer(cfg.Store, cfg.Rules)
	if err != nil {
		return err
	}

	switch cfg.Transport {
	case TransportStdio:
		return server.serveStdio(ctx, cfg)
	case TransportHTTP:
		return server.serveHTTP(ctx, cfg)
	default:
		return fmt.Errorf("transport %q is not supported", cfg.Transport)
	}
}

// serveStdio runs a single local session over standard input/output.
func (s *Server) serveStdio(ctx context.Context, cfg Config) error {
	userID := cfg.StdioUserID
	if userID == "" {
		userID = "local"
	}

	sessionServer, err := s.newSessionServer(ctx, userID)
	if err != nil {
		return err
	}

	err = sessionServer.Run(ctx, &mcp.StdioTransport{})
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		err = nil
	}
	if err != nil {
		return fmt.Errorf("serve MCP: %w", err)
	}
	return nil
}

// userRegistry tracks per-user action locks. It implements
// domain.ActionLocks so every binding for the same user serializes through
// one mutex, keeping at most one action in flight per user across concurrent
// transport sessions.
type userRegistry struct {
	mu      sync.Mutex
	entries map[string]*userEntry
}

type userEntry struct {
	lock     *sync.Mutex
	holders  int
	lastUsed time.Time
}

func newUserRegistry() *userRegistry {
	return &userRegistry{entries: make(map[string]*userEntry)}
}

// Acquire blocks until the user's action lock is held and returns the release
// function. Both acquire and release refresh lastUsed, and the holder count
// keeps the sweep from dropping an entry while any action still references
// it; two actions for one user must never end up on different mutexes.
func (r *userRegistry) Acquire(userID string) func() {
	r.mu.Lock()
	entry, ok := r.entries[userID]
	if !ok {
		entry = &userEntry{lock: &sync.Mutex{}}
		r.entries[userID] = entry
	}
	entry.holders++
	entry.lastUsed = time.Now()
	r.mu.Unlock()

	entry.lock.Lock()
	return func() {
		entry.lock.Unlock()
		r.mu.Lock()
		entry.holders--
		entry.lastUsed = time.Now()
		r.mu.Unlock()
	}
}

// sweep drops entries idle since before the cutoff. Entries with live holders
// stay regardless of age.
func (r *userRegistry) sweep(cutoff time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for userID, entry := range r.entries {
		if entry.holders == 0 && entry.lastUsed.Before(cutoff) {
			delete(r.entries, userID)
		}
	}
}

// cleanup periodically drops registry entries for users idle past expiry so
// the lock map cannot grow without bound under transient identities.
func (r *userRegistry) cleanup(ctx context.Context) {
	ticker := time.NewTicker(userEntryCleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.sweep(time.Now().Add(-userEntryExpirationTime))
		}
	}
}
