package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/henryperkins/mcprag/internal/errors"
)

// Identity is the verified identity returned by the magic-link provider.
type Identity struct {
	UserID string
	Email  string
}

// MagicLinkProvider is the external authentication provider contract:
// it emails a login link and verifies the token embedded in the callback.
type MagicLinkProvider interface {
	SendMagicLink(ctx context.Context, email string) error
	VerifyToken(ctx context.Context, token string) (*Identity, error)
}

// HTTPMagicLink talks to a hosted magic-link provider over its REST API.
type HTTPMagicLink struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

// NewHTTPMagicLink creates the provider client.
func NewHTTPMagicLink(endpoint, apiKey string) *HTTPMagicLink {
	return &HTTPMagicLink{
		endpoint: endpoint,
		apiKey:   apiKey,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

// SendMagicLink asks the provider to email a login link.
func (p *HTTPMagicLink) SendMagicLink(ctx context.Context, email string) error {
	body, _ := json.Marshal(map[string]string{"email": email})
	return p.post(ctx, "/magic_links/email/send", body, nil)
}

// VerifyToken exchanges the callback token for the verified identity.
func (p *HTTPMagicLink) VerifyToken(ctx context.Context, token string) (*Identity, error) {
	body, _ := json.Marshal(map[string]string{"token": token})
	var out struct {
		UserID string `json:"user_id"`
		Email  string `json:"email"`
	}
	if err := p.post(ctx, "/magic_links/authenticate", body, &out); err != nil {
		return nil, err
	}
	if out.UserID == "" {
		return nil, errors.New(errors.KindUnauthorized, "magic link token rejected")
	}
	return &Identity{UserID: out.UserID, Email: out.Email}, nil
}

func (p *HTTPMagicLink) post(ctx context.Context, path string, body []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint+path, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(errors.KindInternal, "build auth request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return errors.Wrap(errors.KindDependencyUnavailable, "auth provider unreachable", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return errors.New(errors.KindUnauthorized, "auth provider rejected credentials")
	}
	if resp.StatusCode >= 400 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return errors.Newf(errors.KindDependencyUnavailable, "auth provider status %d: %s", resp.StatusCode, string(msg))
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return errors.Wrap(errors.KindDependencyUnavailable, "decode auth response", err)
		}
	}
	return nil
}
