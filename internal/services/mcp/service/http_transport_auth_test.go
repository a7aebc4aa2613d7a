package service

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNormalizeHost(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  string
		ok    bool
	}{
		{"bare host", "localhost", "localhost", true},
		{"host with port", "localhost:8081", "localhost", true},
		{"ipv4 with port", "127.0.0.1:8081", "127.0.0.1", true},
		{"bracketed ipv6", "[::1]:8081", "::1", true},
		{"bracketed ipv6 no port", "[::1]", "::1", true},
		{"bare ipv6", "::1", "::1", true},
		{"empty", "", "", false},
		{"unbracketed colons treated as ipv6", "fe80::1", "fe80::1", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := normalizeHost(tc.input)
			if ok != tc.ok || got != tc.want {
				t.Fatalf("normalizeHost(%q) = %q, %v; want %q, %v", tc.input, got, ok, tc.want, tc.ok)
			}
		})
	}
}

func TestValidateLocalRequest(t *testing.T) {
	transport := &httpTransport{
		allowedHosts: parseAllowedHosts([]string{"mcp.example.com"}),
	}

	cases := []struct {
		name   string
		host   string
		origin string
		ok     bool
	}{
		{"loopback", "localhost:8081", "", true},
		{"allowed host", "mcp.example.com", "", true},
		{"allowed host with loopback origin", "localhost:8081", "http://localhost:3000", true},
		{"rebinding host", "evil.example.com", "", false},
		{"remote origin", "localhost:8081", "http://evil.example.com", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/mcp", nil)
			r.Host = tc.host
			if tc.origin != "" {
				r.Header.Set("Origin", tc.origin)
			}
			err := transport.validateLocalRequest(r)
			if tc.ok && err != nil {
				t.Fatalf("expected request accepted, got %v", err)
			}
			if !tc.ok && err == nil {
				t.Fatal("expected request rejected")
			}
		})
	}
}

func TestAuthenticateTrustedLocalMode(t *testing.T) {
	transport := &httpTransport{}

	r := httptest.NewRequest(http.MethodPost, "/mcp", nil)
	r.Header.Set(userIDHeader, "ann")
	userID, ok := transport.authenticate(httptest.NewRecorder(), r)
	if !ok || userID != "ann" {
		t.Fatalf("expected identity from header, got %q ok=%v", userID, ok)
	}

	// No header and no default: identity is mandatory.
	w := httptest.NewRecorder()
	if _, ok := transport.authenticate(w, httptest.NewRequest(http.MethodPost, "/mcp", nil)); ok {
		t.Fatal("expected missing identity rejected")
	}
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}

	transport.defaultUser = "local"
	userID, ok = transport.authenticate(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/mcp", nil))
	if !ok || userID != "local" {
		t.Fatalf("expected configured default identity, got %q ok=%v", userID, ok)
	}
}

func TestAuthenticateWithIntrospection(t *testing.T) {
	issuer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/introspect" {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("X-Resource-Secret") != "secret" {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		payload := introspectionPayload{Active: false}
		if r.Header.Get("Authorization") == "Bearer good-token" {
			payload = introspectionPayload{Active: true, Subject: "ann"}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(payload)
	}))
	defer issuer.Close()

	transport := &httpTransport{auth: newIntrospectionAuth(issuer.URL, "secret")}

	r := httptest.NewRequest(http.MethodPost, "/mcp", nil)
	r.Header.Set("Authorization", "Bearer good-token")
	userID, ok := transport.authenticate(httptest.NewRecorder(), r)
	if !ok || userID != "ann" {
		t.Fatalf("expected token subject as identity, got %q ok=%v", userID, ok)
	}

	r = httptest.NewRequest(http.MethodPost, "/mcp", nil)
	r.Header.Set("Authorization", "Bearer bad-token")
	w := httptest.NewRecorder()
	if _, ok := transport.authenticate(w, r); ok {
		t.Fatal("expected inactive token rejected")
	}
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
	if w.Header().Get("WWW-Authenticate") == "" {
		t.Fatal("expected WWW-Authenticate challenge")
	}

	// Introspection mode never falls back to the identity header.
	r = httptest.NewRequest(http.MethodPost, "/mcp", nil)
	r.Header.Set(userIDHeader, "ann")
	if _, ok := transport.authenticate(httptest.NewRecorder(), r); ok {
		t.Fatal("expected tokenless request rejected in introspection mode")
	}
}

func TestHandleHealth(t *testing.T) {
	transport := &httpTransport{}

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	r.Host = "localhost:8081"
	transport.handleHealth(w, r)
	if w.Code != http.StatusOK || w.Body.String() != "OK" {
		t.Fatalf("expected healthy response, got %d %q", w.Code, w.Body.String())
	}

	w = httptest.NewRecorder()
	r = httptest.NewRequest(http.MethodPost, "/healthz", nil)
	r.Host = "localhost:8081"
	transport.handleHealth(w, r)
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected method rejection, got %d", w.Code)
	}
}
