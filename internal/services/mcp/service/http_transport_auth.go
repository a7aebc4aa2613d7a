package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// userIDHeader names the header trusted for identity when no token
// introspection is configured. It is only honored in that trusted-local mode.
const userIDHeader = "X-Numguess-User"

// defaultIntrospectionTimeout caps token introspection duration.
const defaultIntrospectionTimeout = 5 * time.Second

// validateLocalRequest enforces host access to mitigate DNS rebinding. Host
// and Origin headers are checked against allowed hosts per MCP guidance so
// remote web pages cannot reach local MCP servers via rebinding.
func (t *httpTransport) validateLocalRequest(r *http.Request) error {
	if r == nil {
		return fmt.Errorf("invalid request")
	}

	if !t.isAllowedHostHeader(r.Host) {
		return fmt.Errorf("invalid host")
	}

	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return nil
	}

	parsed, err := url.Parse(origin)
	if err != nil {
		return fmt.Errorf("invalid origin")
	}
	if parsed.Host == "" {
		return fmt.Errorf("invalid origin")
	}
	if !t.isAllowedHostHeader(parsed.Host) {
		return fmt.Errorf("invalid origin")
	}
	return nil
}

// isAllowedHostHeader reports whether a Host/Origin header resolves to an
// allowed host. The default posture is local-only unless explicit hosts are
// configured.
func (t *httpTransport) isAllowedHostHeader(host string) bool {
	resolvedHost, ok := normalizeHost(host)
	if !ok {
		return false
	}
	if isLoopbackHost(resolvedHost) {
		return true
	}
	if len(t.allowedHosts) == 0 {
		return false
	}
	_, ok = t.allowedHosts[strings.ToLower(resolvedHost)]
	return ok
}

func isLoopbackHost(host string) bool {
	switch strings.ToLower(strings.TrimSpace(host)) {
	case "localhost", "127.0.0.1", "::1":
		return true
	default:
		return false
	}
}

// parseAllowedHosts normalizes configured host entries into a lookup set.
func parseAllowedHosts(hosts []string) map[string]struct{} {
	result := make(map[string]struct{}, len(hosts))
	for _, entry := range hosts {
		trimmed := strings.TrimSpace(entry)
		if trimmed == "" {
			continue
		}
		result[strings.ToLower(trimmed)] = struct{}{}
	}
	return result
}

// normalizeHost extracts the hostname portion from Host/Origin headers.
func normalizeHost(host string) (string, bool) {
	host = strings.TrimSpace(host)
	if host == "" {
		return "", false
	}

	if strings.HasPrefix(host, "[") {
		if splitHost, _, err := net.SplitHostPort(host); err == nil {
			return splitHost, true
		}
		if strings.HasSuffix(host, "]") {
			return strings.TrimSuffix(strings.TrimPrefix(host, "["), "]"), true
		}
		return "", false
	}

	if strings.Count(host, ":") > 1 {
		return host, true
	}

	if strings.Contains(host, ":") {
		splitHost, _, err := net.SplitHostPort(host)
		if err != nil {
			return "", false
		}
		return splitHost, true
	}

	return host, true
}

// authenticate resolves the user identity for an HTTP request. With token
// introspection configured, the bearer token's subject is the identity.
// Otherwise the transport runs in trusted-local mode and the identity header
// is honored. A request with no resolvable identity is answered 401; every
// game session must belong to a user.
func (t *httpTransport) authenticate(w http.ResponseWriter, r *http.Request) (string, bool) {
	if t.auth != nil {
		authHeader := r.Header.Get("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			t.writeUnauthorized(w, r, "authorization required")
			return "", false
		}
		token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
		if token == "" {
			t.writeUnauthorized(w, r, "authorization required")
			return "", false
		}

		subject, err := t.auth.subjectForToken(r.Context(), token)
		if err != nil {
			if errors.Is(err, errIntrospectionSecretMissing) {
				http.Error(w, "token introspection misconfigured", http.StatusInternalServerError)
				return "", false
			}
			t.writeUnauthorized(w, r, "invalid access token")
			return "", false
		}
		return subject, true
	}

	userID := strings.TrimSpace(r.Header.Get(userIDHeader))
	if userID == "" {
		userID = t.defaultUser
	}
	if userID == "" {
		t.writeUnauthorized(w, r, "user identity is required")
		return "", false
	}
	return userID, true
}

func (t *httpTransport) writeUnauthorized(w http.ResponseWriter, r *http.Request, message string) {
	if t.auth != nil {
		metadataURL := baseURLFromRequest(r) + "/.well-known/oauth-protected-resource"
		w.Header().Set("WWW-Authenticate", `Bearer resource_metadata="`+metadataURL+`"`)
	}
	http.Error(w, message, http.StatusUnauthorized)
}

// introspectionAuth validates bearer tokens against an external issuer and
// maps them to user identities.
type introspectionAuth struct {
	issuer         string
	resourceSecret string
	httpClient     *http.Client
}

var errIntrospectionSecretMissing = errors.New("introspection resource secret is not configured")

type introspectionPayload struct {
	Active  bool   `json:"active"`
	Subject string `json:"sub"`
}

type protectedResourceMetadata struct {
	Resource               string   `json:"resource"`
	AuthorizationServers   []string `json:"authorization_servers"`
	BearerMethodsSupported []string `json:"bearer_methods_supported,omitempty"`
}

// newIntrospectionAuth builds optional transport-level auth. Introspection is
// optional so the server can run in trusted local mode without extra
// operational prerequisites.
func newIntrospectionAuth(issuer, secret string) *introspectionAuth {
	issuer = strings.TrimSpace(issuer)
	if issuer == "" {
		return nil
	}
	return &introspectionAuth{
		issuer:         strings.TrimRight(issuer, "/"),
		resourceSecret: secret,
		httpClient:     &http.Client{Timeout: defaultIntrospectionTimeout},
	}
}

// subjectForToken asks the issuer whether a token is active and returns its
// subject as the user identity.
func (a *introspectionAuth) subjectForToken(ctx context.Context, token string) (string, error) {
	if a == nil || a.issuer == "" {
		return "", errors.New("introspection issuer is not configured")
	}
	if strings.TrimSpace(a.resourceSecret) == "" {
		return "", errIntrospectionSecretMissing
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.issuer+"/introspect", nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-Resource-Secret", a.resourceSecret)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", errors.New("introspection failed")
	}

	var payload introspectionPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", err
	}
	if !payload.Active {
		return "", errors.New("token is not active")
	}
	subject := strings.TrimSpace(payload.Subject)
	if subject == "" {
		return "", errors.New("token has no subject")
	}
	return subject, nil
}

// handleProtectedResourceMetadata publishes protected-resource metadata for
// MCP clients that can introspect bearer-token expectations.
func (t *httpTransport) handleProtectedResourceMetadata(w http.ResponseWriter, r *http.Request) {
	if t.auth == nil {
		http.NotFound(w, r)
		return
	}
	if err := t.validateLocalRequest(r); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	metadata := protectedResourceMetadata{
		Resource:               baseURLFromRequest(r) + "/mcp",
		AuthorizationServers:   []string{t.auth.issuer},
		BearerMethodsSupported: []string{"header"},
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(metadata)
}

func baseURLFromRequest(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if forwarded := r.Header.Get("X-Forwarded-Proto"); forwarded != "" {
		scheme = forwarded
	}
	return scheme + "://" + r.Host
}
