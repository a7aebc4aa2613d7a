// Package server parses server command flags and selects stdio or HTTP
// transport for the MCP game server.
package server

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/kdyeo/numguess/internal/game"
	"github.com/kdyeo/numguess/internal/platform/config"
	"github.com/kdyeo/numguess/internal/platform/otel"
	"github.com/kdyeo/numguess/internal/services/mcp/service"
	"github.com/kdyeo/numguess/internal/storage/bbolt"
)

// Config holds server command configuration.
type Config struct {
	DBPath    string `env:"NUMGUESS_DB_PATH"    envDefault:"numguess.db"`
	Transport string `env:"NUMGUESS_TRANSPORT"  envDefault:"stdio"`
	HTTPAddr  string `env:"NUMGUESS_HTTP_ADDR"  envDefault:"localhost:8081"`
	UserID    string `env:"NUMGUESS_USER_ID"    envDefault:"local"`

	AllowedHosts []string `env:"NUMGUESS_ALLOWED_HOSTS" envSeparator:","`
	DefaultUser  string   `env:"NUMGUESS_HTTP_DEFAULT_USER"`
	AuthIssuer   string   `env:"NUMGUESS_AUTH_ISSUER"`
	AuthSecret   string   `env:"NUMGUESS_AUTH_RESOURCE_SECRET"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := config.ParseEnv(&cfg); err != nil {
		return Config{}, err
	}

	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "path to the session database file")
	fs.StringVar(&cfg.Transport, "transport", cfg.Transport, "Transport type: stdio or http")
	fs.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "HTTP server address (for HTTP transport)")
	fs.StringVar(&cfg.UserID, "user", cfg.UserID, "user identity for the stdio session")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the MCP game server and blocks until context cancellation.
func Run(ctx context.Context, cfg Config) error {
	shutdown, err := otel.Setup(ctx, "numguess")
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			log.Printf("otel shutdown: %v", err)
		}
	}()

	store, err := bbolt.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open session database %s: %w", cfg.DBPath, err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Printf("close session database: %v", err)
		}
	}()

	return service.Run(ctx, service.Config{
		Transport:     service.TransportKind(cfg.Transport),
		Store:         store,
		Rules:         game.DefaultRules(),
		StdioUserID:   cfg.UserID,
		HTTPAddr:      cfg.HTTPAddr,
		AllowedHosts:  cfg.AllowedHosts,
		DefaultUserID: cfg.DefaultUser,
		AuthIssuer:    cfg.AuthIssuer,
		AuthSecret:    cfg.AuthSecret,
	})
}
