package server

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/henryperkins/mcprag/internal/auth"
	"github.com/henryperkins/mcprag/internal/config"
	"github.com/henryperkins/mcprag/internal/mcp"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()

	cfg := config.New()
	cfg.Auth.RequireMFAForAdmin = true

	authn, err := auth.NewAuthenticator(auth.Config{
		SessionDuration:    time.Hour,
		RequireMFAForAdmin: true,
		APIKeys: map[string]string{
			"admin-key": "ops:admin",
			"dev-key":   "alice:developer",
		},
	}, auth.NewMemoryStore())
	require.NoError(t, err)

	// A server with no backing components still serves health and the
	// dispatcher contract; component tools answer with conflict.
	mcpServer := mcp.NewServer(mcp.Deps{Config: cfg})
	return New(cfg, mcpServer.Dispatcher(), authn)
}

func doJSON(t *testing.T, h http.Handler, method, path, bearer string, body string) (*httptest.ResponseRecorder, mcp.Envelope) {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var env mcp.Envelope
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), "body: %s", rec.Body.String())
	}
	return rec, env
}

func TestHealthUnauthenticated(t *testing.T) {
	s := newTestServer(t)
	rec, env := doJSON(t, s.Handler(), http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, env.OK)
}

func TestListToolsFilteredByTier(t *testing.T) {
	s := newTestServer(t)

	_, env := doJSON(t, s.Handler(), http.MethodGet, "/mcp/tools", "", "")
	require.True(t, env.OK)
	data := env.Data.(map[string]any)
	assert.Equal(t, "public", data["user_tier"])
	publicTotal := data["total"].(float64)

	_, env = doJSON(t, s.Handler(), http.MethodGet, "/mcp/tools", "admin-key", "")
	require.True(t, env.OK)
	data = env.Data.(map[string]any)
	assert.Equal(t, "admin", data["user_tier"])
	assert.Greater(t, data["total"].(float64), publicTotal)
}

func TestInvalidBearerRejected(t *testing.T) {
	s := newTestServer(t)
	rec, env := doJSON(t, s.Handler(), http.MethodGet, "/mcp/tools", "bogus", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, env.OK)
	assert.Equal(t, "unauthorized", env.Code)
}

func TestToolTierEnforcedOverHTTP(t *testing.T) {
	s := newTestServer(t)

	// Public caller hitting an admin tool: forbidden.
	rec, env := doJSON(t, s.Handler(), http.MethodPost, "/mcp/tool/rebuild_index", "", "{}")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "forbidden", env.Code)

	// Unknown tool: not_found.
	rec, env = doJSON(t, s.Handler(), http.MethodPost, "/mcp/tool/nope", "", "{}")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", env.Code)
}

func TestConfirmationGateOverHTTP(t *testing.T) {
	s := newTestServer(t)

	// Admin API key carries MFA; the gate still demands confirm=true.
	rec, env := doJSON(t, s.Handler(), http.MethodPost, "/mcp/tool/rebuild_index", "admin-key", "{}")
	assert.Equal(t, http.StatusOK, rec.Code)
	require.True(t, env.OK)
	data := env.Data.(map[string]any)
	assert.Equal(t, true, data["confirmation_required"])

	// Confirmed call proceeds past the gate and hits the unconfigured
	// admin manager: conflict, not a silent success.
	rec, env = doJSON(t, s.Handler(), http.MethodPost, "/mcp/tool/rebuild_index", "admin-key", `{"confirm":true}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "conflict", env.Code)
}

func TestValidationErrorsOverHTTP(t *testing.T) {
	s := newTestServer(t)

	rec, env := doJSON(t, s.Handler(), http.MethodPost, "/mcp/tool/search_code", "", `{"unknown_field":1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation", env.Code)

	rec, _ = doJSON(t, s.Handler(), http.MethodPost, "/mcp/tool/search_code", "", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestM2MTokenEndpoint(t *testing.T) {
	cfg := config.New()
	authn, err := auth.NewAuthenticator(auth.Config{
		SessionDuration: time.Hour,
		TokenSecret:     "test-secret",
		M2MClients:      map[string]string{"bot": "hunter2"},
	}, auth.NewMemoryStore())
	require.NoError(t, err)
	s := New(cfg, mcp.NewServer(mcp.Deps{Config: cfg}).Dispatcher(), authn)

	rec, env := doJSON(t, s.Handler(), http.MethodPost, "/auth/m2m/token", "", `{"client_id":"bot","client_secret":"hunter2"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, env.OK)
	token := env.Data.(map[string]any)["access_token"].(string)
	require.NotEmpty(t, token)

	// The minted token authenticates as the service tier.
	_, env = doJSON(t, s.Handler(), http.MethodGet, "/mcp/tools", token, "")
	require.True(t, env.OK)
	assert.Equal(t, "service", env.Data.(map[string]any)["user_tier"])

	rec, env = doJSON(t, s.Handler(), http.MethodPost, "/auth/m2m/token", "", `{"client_id":"bot","client_secret":"wrong"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, env.OK)
}

func TestSSEStreamsFrames(t *testing.T) {
	s := newTestServer(t)
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/mcp/sse", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer dev-key")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	scanner := bufio.NewScanner(resp.Body)

	// First frame announces the stream session.
	var lines []string
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			break
		}
		lines = append(lines, line)
	}
	require.NotEmpty(t, lines)
	assert.Equal(t, "event: connected", lines[0])
	assert.Contains(t, lines[1], `"session"`)

	// A published event for this user arrives on the stream.
	s.sse.publish("key:alice", "tool_result", map[string]any{"tool": "search_code", "ok": true})

	lines = lines[:0]
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			break
		}
		lines = append(lines, line)
	}
	require.NotEmpty(t, lines)
	assert.Equal(t, "event: tool_result", lines[0])
	assert.Contains(t, lines[1], `"search_code"`)
}
