package auth

import (
	"context"
	"time"
)

// Principal is an authenticated caller.
type Principal struct {
	UserID      string    `json:"user_id"`
	Email       string    `json:"email,omitempty"`
	Tier        Tier      `json:"-"`
	TierName    string    `json:"tier"`
	MFAVerified bool      `json:"mfa_verified"`
	ExpiresAt   time.Time `json:"expires_at,omitempty"`
}

// Expired reports whether the principal's session has lapsed.
func (p *Principal) Expired() bool {
	return !p.ExpiresAt.IsZero() && time.Now().After(p.ExpiresAt)
}

// contextKey is private so only this package can install principals.
type contextKey struct{}

// WithPrincipal returns a context carrying the principal. The principal is
// request-scoped by construction; there is no process-global identity.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, contextKey{}, p)
}

// FromContext extracts the principal, or nil when unauthenticated.
func FromContext(ctx context.Context) *Principal {
	p, _ := ctx.Value(contextKey{}).(*Principal)
	return p
}

// Anonymous is the principal used for unauthenticated public access.
func Anonymous() *Principal {
	return &Principal{UserID: "anonymous", Tier: TierPublic, TierName: TierPublic.String()}
}

// DevPrincipal is the synthetic admin principal substituted in dev mode on
// the local transport.
func DevPrincipal() *Principal {
	return &Principal{
		UserID:      "dev",
		Email:       "dev@localhost",
		Tier:        TierAdmin,
		TierName:    TierAdmin.String(),
		MFAVerified: true,
	}
}
