package service

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/kdyeo/numguess/internal/platform/requestctx"
)

const (
	// defaultShutdownTimeout is the maximum time to wait for graceful HTTP
	// server shutdown, long enough for in-flight tool calls to complete.
	defaultShutdownTimeout = 35 * time.Second
)

// httpTransport serves MCP over streamable HTTP. Session lifecycle (ids,
// resumption, stale-session 404s that signal re-initiation) is handled by the
// SDK's streamable handler; this layer adds host validation, identity
// admission, and health reporting.
type httpTransport struct {
	addr         string
	server       *Server
	allowedHosts map[string]struct{}
	auth         *introspectionAuth
	defaultUser  string
	httpServer   *http.Server
}

// serveHTTP runs the streamable HTTP transport until context cancellation.
func (s *Server) serveHTTP(ctx context.Context, cfg Config) error {
	addr := cfg.HTTPAddr
	if addr == "" {
		addr = "localhost:8081"
	}

	transport := &httpTransport{
		addr:         addr,
		server:       s,
		allowedHosts: parseAllowedHosts(cfg.AllowedHosts),
		auth:         newIntrospectionAuth(cfg.AuthIssuer, cfg.AuthSecret),
		defaultUser:  cfg.DefaultUserID,
	}

	go s.users.cleanup(ctx)

	return transport.start(ctx)
}

// start binds the HTTP server and blocks until shutdown or listen failure.
func (t *httpTransport) start(ctx context.Context) error {
	mcpHandler := mcp.NewStreamableHTTPHandler(t.sessionServer, nil)

	mux := http.NewServeMux()
	mux.Handle("/mcp", t.admit(mcpHandler))
	mux.HandleFunc("/healthz", t.handleHealth)
	if t.auth != nil {
		mux.HandleFunc("/.well-known/oauth-protected-resource", t.handleProtectedResourceMetadata)
	}

	t.httpServer = &http.Server{
		Addr:    t.addr,
		Handler: mux,
	}

	log.Printf("Starting MCP HTTP server on %s", t.addr)

	errChan := make(chan error, 1)
	go func() {
		if err := t.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Printf("Shutting down MCP HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
		defer cancel()
		if err := t.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown HTTP server: %w", err)
		}
		return nil
	case err := <-errChan:
		return fmt.Errorf("HTTP server error: %w", err)
	}
}

// sessionServer builds the per-session MCP server for an admitted request.
// The streamable handler calls this once per new session; returning nil makes
// the handler answer with a 400, which should not happen for requests that
// passed admission.
func (t *httpTransport) sessionServer(r *http.Request) *mcp.Server {
	userID := requestctx.UserIDFromContext(r.Context())
	if userID == "" {
		log.Printf("mcp session request without identity reached session setup")
		return nil
	}

	sessionServer, err := t.server.newSessionServer(r.Context(), userID)
	if err != nil {
		log.Printf("mcp session setup failed for user %s: %v", userID, err)
		return nil
	}
	return sessionServer
}

// admit wraps the MCP handler with host validation and identity admission.
// Every MCP request passes here before the streamable handler sees it.
func (t *httpTransport) admit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := t.validateLocalRequest(r); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		userID, ok := t.authenticate(w, r)
		if !ok {
			return
		}

		next.ServeHTTP(w, r.WithContext(requestctx.WithUserID(r.Context(), userID)))
	})
}

// handleHealth handles GET /healthz for liveness checks.
func (t *httpTransport) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := t.validateLocalRequest(r); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("OK")); err != nil {
		log.Printf("Failed to write health response: %v", err)
	}
}
