// Package server is the remote transport: the HTTP/SSE adapter around the
// tool dispatcher, plus the authentication endpoints. Every tool response
// uses the same envelope as the stdio transport.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/henryperkins/mcprag/internal/auth"
	"github.com/henryperkins/mcprag/internal/config"
	"github.com/henryperkins/mcprag/internal/errors"
	"github.com/henryperkins/mcprag/internal/mcp"
)

// Server is the remote HTTP/SSE transport.
type Server struct {
	cfg        *config.Config
	dispatcher *mcp.Dispatcher
	authn      *auth.Authenticator
	sse        *sseHub
	http       *http.Server
}

// New creates the remote server around an existing dispatcher.
func New(cfg *config.Config, dispatcher *mcp.Dispatcher, authn *auth.Authenticator) *Server {
	s := &Server{
		cfg:        cfg,
		dispatcher: dispatcher,
		authn:      authn,
		sse:        newSSEHub(),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.corsMiddleware)

	r.Get("/health", s.handleHealth)

	r.Post("/auth/login", s.handleLogin)
	r.Get("/auth/callback", s.handleCallback)
	r.Post("/auth/verify-mfa", s.handleVerifyMFA)
	r.Post("/auth/m2m/token", s.handleM2MToken)

	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.Get("/mcp/tools", s.handleListTools)
		r.Post("/mcp/tool/{name}", s.handleCallTool)
		r.Get("/mcp/sse", s.handleSSE)
	})

	s.http = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// ListenAndServe runs the server until the context is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("remote transport listening", slog.String("addr", s.http.Addr))
		errCh <- s.http.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.sse.closeAll()
		return s.http.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

// corsMiddleware applies the configured origin allowlist.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	allowed := s.cfg.Server.AllowedOrigins
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && originAllowed(allowed, origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func originAllowed(allowed []string, origin string) bool {
	for _, a := range allowed {
		if a == "*" || strings.EqualFold(a, origin) {
			return true
		}
	}
	return false
}

// authMiddleware resolves the bearer credential to a principal and installs
// it on the request context. Anonymous public access passes through; only
// broken credentials are rejected here, tier checks belong to the
// dispatcher.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, err := s.authn.Authenticate(r.Context(), bearerToken(r))
		if err != nil {
			writeEnvelope(w, http.StatusUnauthorized, mcp.Err(err, middleware.GetReqID(r.Context())))
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.WithPrincipal(r.Context(), principal)))
	})
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	token := strings.TrimPrefix(header, "Bearer ")
	if token == header {
		return ""
	}
	return strings.TrimSpace(token)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	env := s.dispatcher.Dispatch(r.Context(), "health_check", nil)
	writeEnvelope(w, http.StatusOK, env)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, errors.Validation("email", "a JSON body with an email is required"))
		return
	}
	if err := s.authn.SendMagicLink(r.Context(), body.Email); err != nil {
		writeError(w, err)
		return
	}
	writeEnvelope(w, http.StatusOK, mcp.OK(map[string]any{
		"message": "magic link sent",
		"email":   body.Email,
	}))
}

func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		writeError(w, errors.Validation("token", "token query parameter is required"))
		return
	}
	sessionToken, principal, err := s.authn.CompleteAuthentication(r.Context(), token)
	if err != nil {
		writeError(w, err)
		return
	}
	writeEnvelope(w, http.StatusOK, mcp.OK(map[string]any{
		"access_token": sessionToken,
		"token_type":   "Bearer",
		"user":         principal,
	}))
}

func (s *Server) handleVerifyMFA(w http.ResponseWriter, r *http.Request) {
	var body struct {
		UserID   string `json:"user_id"`
		TOTPCode string `json:"totp_code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil ||
		body.UserID == "" || body.TOTPCode == "" {
		writeError(w, errors.Validation("totp_code", "user_id and totp_code are required"))
		return
	}
	if err := s.authn.VerifyTOTP(r.Context(), bearerToken(r), body.UserID, body.TOTPCode); err != nil {
		writeError(w, err)
		return
	}
	writeEnvelope(w, http.StatusOK, mcp.OK(map[string]any{"verified": true}))
}

func (s *Server) handleM2MToken(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ClientID     string `json:"client_id"`
		ClientSecret string `json:"client_secret"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil ||
		body.ClientID == "" || body.ClientSecret == "" {
		writeError(w, errors.Validation("client_id", "client_id and client_secret are required"))
		return
	}
	token, expires, err := s.authn.M2MToken(r.Context(), body.ClientID, body.ClientSecret)
	if err != nil {
		writeError(w, err)
		return
	}
	writeEnvelope(w, http.StatusOK, mcp.OK(map[string]any{
		"access_token": token,
		"token_type":   "Bearer",
		"expires_at":   expires.UTC().Format(time.RFC3339),
	}))
}

func (s *Server) handleListTools(w http.ResponseWriter, r *http.Request) {
	principal := auth.FromContext(r.Context())
	tier := auth.TierPublic
	if principal != nil {
		tier = principal.Tier
	}
	tools := s.dispatcher.Tools(tier)
	writeEnvelope(w, http.StatusOK, mcp.OK(map[string]any{
		"tools":     tools,
		"user_tier": tier.String(),
		"total":     len(tools),
	}))
}

func (s *Server) handleCallTool(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if !s.dispatcher.Has(name) {
		writeEnvelope(w, http.StatusNotFound,
			mcp.Err(errors.Newf(errors.KindNotFound, "unknown tool: %s", name), middleware.GetReqID(r.Context())))
		return
	}

	args := map[string]any{}
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&args); err != nil {
			writeError(w, errors.Validation("body", "request body must be a JSON object"))
			return
		}
	}

	env := s.dispatcher.Dispatch(r.Context(), name, args)
	writeEnvelope(w, statusFor(env), env)

	// Tool completions are also pushed to the caller's event stream.
	if principal := auth.FromContext(r.Context()); principal != nil {
		s.sse.publish(principal.UserID, "tool_result", map[string]any{
			"tool": name,
			"ok":   env.OK,
		})
	}
}

// statusFor maps envelope codes onto HTTP statuses. The envelope stays the
// contract; the status is a transport courtesy.
func statusFor(env mcp.Envelope) int {
	if env.OK {
		return http.StatusOK
	}
	switch env.Code {
	case string(errors.KindValidation):
		return http.StatusBadRequest
	case string(errors.KindUnauthorized):
		return http.StatusUnauthorized
	case string(errors.KindForbidden):
		return http.StatusForbidden
	case string(errors.KindNotFound):
		return http.StatusNotFound
	case string(errors.KindConflict):
		return http.StatusConflict
	case string(errors.KindTimeout):
		return http.StatusGatewayTimeout
	case string(errors.KindDependencyUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeEnvelope(w http.ResponseWriter, status int, env mcp.Envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(env)
}

func writeError(w http.ResponseWriter, err error) {
	env := mcp.Err(err, "")
	writeEnvelope(w, statusFor(env), env)
}
