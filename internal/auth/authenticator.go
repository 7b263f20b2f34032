package auth

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pquerna/otp/totp"

	"github.com/henryperkins/mcprag/internal/errors"
)

// Config configures the Authenticator.
type Config struct {
	// SessionDuration bounds session lifetime.
	SessionDuration time.Duration
	// RequireMFAForAdmin gates admin tools behind TOTP verification.
	RequireMFAForAdmin bool
	// AdminEmails are granted the admin tier on login.
	AdminEmails []string
	// DeveloperDomains grant the developer tier by email domain.
	DeveloperDomains []string
	// APIKeys maps raw API keys to "name:tier" descriptors.
	APIKeys map[string]string
	// M2MClients maps client ids to shared secrets.
	M2MClients map[string]string
	// TokenSecret signs M2M tokens.
	TokenSecret string
	// TOTPSecrets maps user ids to their TOTP seeds.
	TOTPSecrets map[string]string
	// MagicLink is the external magic-link provider; nil disables login.
	MagicLink MagicLinkProvider
}

// Authenticator derives principals from bearer credentials and owns the
// session lifecycle.
type Authenticator struct {
	cfg      Config
	sessions SessionStore
	m2m      *M2MIssuer
}

// NewAuthenticator creates an Authenticator over the given session store.
func NewAuthenticator(cfg Config, sessions SessionStore) (*Authenticator, error) {
	if sessions == nil {
		sessions = NewMemoryStore()
	}
	if cfg.SessionDuration <= 0 {
		cfg.SessionDuration = time.Hour
	}
	var m2m *M2MIssuer
	if cfg.TokenSecret != "" {
		m2m = NewM2MIssuer(cfg.TokenSecret)
	}
	return &Authenticator{cfg: cfg, sessions: sessions, m2m: m2m}, nil
}

// Enabled reports whether interactive login is configured.
func (a *Authenticator) Enabled() bool {
	return a.cfg.MagicLink != nil
}

// SendMagicLink starts the login flow for an email.
func (a *Authenticator) SendMagicLink(ctx context.Context, email string) error {
	if a.cfg.MagicLink == nil {
		return errors.New(errors.KindConflict, "authentication is not configured")
	}
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || !strings.Contains(email, "@") {
		return errors.Validation("email", "a valid email is required")
	}
	return a.cfg.MagicLink.SendMagicLink(ctx, email)
}

// CompleteAuthentication verifies the provider token and opens a session.
// Returns the opaque session token the client presents as a bearer.
func (a *Authenticator) CompleteAuthentication(ctx context.Context, token string) (string, *Principal, error) {
	if a.cfg.MagicLink == nil {
		return "", nil, errors.New(errors.KindConflict, "authentication is not configured")
	}
	identity, err := a.cfg.MagicLink.VerifyToken(ctx, token)
	if err != nil {
		return "", nil, err
	}

	tier := a.tierForEmail(identity.Email)
	session := &Session{
		ID:        uuid.NewString(),
		State:     StateAuthenticated,
		UserID:    identity.UserID,
		Email:     identity.Email,
		Tier:      tier.String(),
		CreatedAt: time.Now().UTC(),
		ExpiresAt: time.Now().UTC().Add(a.cfg.SessionDuration),
	}
	if err := a.sessions.Set(session); err != nil {
		return "", nil, err
	}
	return session.ID, a.principalFromSession(session), nil
}

// VerifyTOTP checks the user's code and upgrades the session to
// MFA_VERIFIED on success.
func (a *Authenticator) VerifyTOTP(ctx context.Context, sessionToken, userID, code string) error {
	session, err := a.sessions.Get(sessionToken)
	if err != nil {
		return err
	}
	if session.UserID != userID {
		return errors.New(errors.KindForbidden, "user mismatch")
	}

	secret, ok := a.cfg.TOTPSecrets[userID]
	if !ok {
		return errors.New(errors.KindConflict, "no TOTP secret enrolled for user")
	}
	if !totp.Validate(code, secret) {
		return errors.New(errors.KindUnauthorized, "invalid TOTP code")
	}

	session.State = StateMFAVerified
	return a.sessions.Set(session)
}

// M2MToken exchanges client credentials for a bearer token with the service
// tier.
func (a *Authenticator) M2MToken(_ context.Context, clientID, clientSecret string) (string, time.Time, error) {
	if a.m2m == nil {
		return "", time.Time{}, errors.New(errors.KindConflict, "M2M authentication is not configured")
	}
	secret, ok := a.cfg.M2MClients[clientID]
	if !ok || secret != clientSecret {
		return "", time.Time{}, errors.New(errors.KindUnauthorized, "invalid client credentials")
	}
	expires := time.Now().UTC().Add(a.cfg.SessionDuration)
	token, err := a.m2m.Issue(clientID, expires)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, expires, nil
}

// Authenticate resolves a bearer credential to a principal. Order: API key,
// M2M token, session token. An empty credential is anonymous public access.
func (a *Authenticator) Authenticate(_ context.Context, bearer string) (*Principal, error) {
	bearer = strings.TrimSpace(bearer)
	if bearer == "" {
		return Anonymous(), nil
	}

	if desc, ok := a.cfg.APIKeys[bearer]; ok {
		return apiKeyPrincipal(desc), nil
	}

	if a.m2m != nil {
		if clientID, expires, err := a.m2m.Verify(bearer); err == nil {
			return &Principal{
				UserID:      "m2m:" + clientID,
				Tier:        TierService,
				TierName:    TierService.String(),
				MFAVerified: true, // machine principals satisfy MFA by definition
				ExpiresAt:   expires,
			}, nil
		}
	}

	session, err := a.sessions.Get(bearer)
	if err != nil {
		if errors.KindOf(err) == errors.KindNotFound {
			return nil, errors.New(errors.KindUnauthorized, "invalid credentials")
		}
		return nil, err
	}
	return a.principalFromSession(session), nil
}

// Logout deletes a session.
func (a *Authenticator) Logout(sessionToken string) error {
	return a.sessions.Delete(sessionToken)
}

// RequireMFAForAdmin reports the configured MFA policy.
func (a *Authenticator) RequireMFAForAdmin() bool {
	return a.cfg.RequireMFAForAdmin
}

func (a *Authenticator) principalFromSession(s *Session) *Principal {
	return &Principal{
		UserID:      s.UserID,
		Email:       s.Email,
		Tier:        ParseTier(s.Tier),
		TierName:    s.Tier,
		MFAVerified: s.State == StateMFAVerified,
		ExpiresAt:   s.ExpiresAt,
	}
}

// tierForEmail derives the tier from the configured email lists: exact admin
// match first, then developer domain, else public.
func (a *Authenticator) tierForEmail(email string) Tier {
	email = strings.ToLower(email)
	for _, admin := range a.cfg.AdminEmails {
		if strings.ToLower(admin) == email {
			return TierAdmin
		}
	}
	at := strings.LastIndexByte(email, '@')
	if at >= 0 {
		domain := email[at+1:]
		for _, d := range a.cfg.DeveloperDomains {
			if strings.EqualFold(d, domain) {
				return TierDeveloper
			}
		}
	}
	return TierPublic
}

// apiKeyPrincipal parses a "name:tier" descriptor.
func apiKeyPrincipal(desc string) *Principal {
	name, tierName := desc, "developer"
	if idx := strings.LastIndexByte(desc, ':'); idx >= 0 {
		name, tierName = desc[:idx], desc[idx+1:]
	}
	tier := ParseTier(tierName)
	return &Principal{
		UserID:      "key:" + name,
		Tier:        tier,
		TierName:    tier.String(),
		MFAVerified: tier >= TierAdmin, // provisioned admin keys bypass TOTP
	}
}
