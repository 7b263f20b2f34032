package auth

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/henryperkins/mcprag/internal/errors"
)

type fakeMagicLink struct {
	sent   []string
	tokens map[string]Identity
}

func (f *fakeMagicLink) SendMagicLink(_ context.Context, email string) error {
	f.sent = append(f.sent, email)
	return nil
}

func (f *fakeMagicLink) VerifyToken(_ context.Context, token string) (*Identity, error) {
	id, ok := f.tokens[token]
	if !ok {
		return nil, errors.New(errors.KindUnauthorized, "bad token")
	}
	return &id, nil
}

func newTestAuthenticator(t *testing.T, ml *fakeMagicLink) *Authenticator {
	t.Helper()
	a, err := NewAuthenticator(Config{
		SessionDuration:    time.Hour,
		RequireMFAForAdmin: true,
		AdminEmails:        []string{"admin@corp.com"},
		DeveloperDomains:   []string{"corp.com"},
		APIKeys:            map[string]string{"svc-key-1": "pipeline:service", "dev-key-1": "alice:developer"},
		M2MClients:         map[string]string{"ci-bot": "s3cret"},
		TokenSecret:        "unit-test-signing-secret",
		TOTPSecrets:        map[string]string{},
		MagicLink:          ml,
	}, NewMemoryStore())
	require.NoError(t, err)
	return a
}

func TestTierOrdering(t *testing.T) {
	assert.True(t, TierService.Meets(TierAdmin))
	assert.True(t, TierAdmin.Meets(TierDeveloper))
	assert.True(t, TierDeveloper.Meets(TierPublic))
	assert.False(t, TierPublic.Meets(TierDeveloper))
	assert.False(t, TierDeveloper.Meets(TierAdmin))
}

func TestMagicLinkFlowDerivesTier(t *testing.T) {
	ml := &fakeMagicLink{tokens: map[string]Identity{
		"tok-admin": {UserID: "u1", Email: "admin@corp.com"},
		"tok-dev":   {UserID: "u2", Email: "bob@corp.com"},
		"tok-ext":   {UserID: "u3", Email: "visitor@example.org"},
	}}
	a := newTestAuthenticator(t, ml)
	ctx := context.Background()

	require.NoError(t, a.SendMagicLink(ctx, "Admin@Corp.com"))
	assert.Equal(t, []string{"admin@corp.com"}, ml.sent)

	require.Error(t, a.SendMagicLink(ctx, "not-an-email"))

	token, p, err := a.CompleteAuthentication(ctx, "tok-admin")
	require.NoError(t, err)
	assert.Equal(t, TierAdmin, p.Tier)
	assert.False(t, p.MFAVerified)

	// The session token authenticates subsequent calls.
	p2, err := a.Authenticate(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, "u1", p2.UserID)
	assert.Equal(t, TierAdmin, p2.Tier)

	_, dev, err := a.CompleteAuthentication(ctx, "tok-dev")
	require.NoError(t, err)
	assert.Equal(t, TierDeveloper, dev.Tier)

	_, ext, err := a.CompleteAuthentication(ctx, "tok-ext")
	require.NoError(t, err)
	assert.Equal(t, TierPublic, ext.Tier)
}

func TestTOTPUpgradesSession(t *testing.T) {
	secret, err := totp.Generate(totp.GenerateOpts{Issuer: "mcprag", AccountName: "u1"})
	require.NoError(t, err)

	ml := &fakeMagicLink{tokens: map[string]Identity{"tok": {UserID: "u1", Email: "admin@corp.com"}}}
	a := newTestAuthenticator(t, ml)
	a.cfg.TOTPSecrets["u1"] = secret.Secret()
	ctx := context.Background()

	token, _, err := a.CompleteAuthentication(ctx, "tok")
	require.NoError(t, err)

	code, err := totp.GenerateCode(secret.Secret(), time.Now())
	require.NoError(t, err)

	require.Error(t, a.VerifyTOTP(ctx, token, "u2", code), "user mismatch rejected")
	require.Error(t, a.VerifyTOTP(ctx, token, "u1", "000000"), "wrong code rejected")
	require.NoError(t, a.VerifyTOTP(ctx, token, "u1", code))

	p, err := a.Authenticate(ctx, token)
	require.NoError(t, err)
	assert.True(t, p.MFAVerified)
}

func TestM2MTokenRoundTrip(t *testing.T) {
	a := newTestAuthenticator(t, nil)
	ctx := context.Background()

	_, _, err := a.M2MToken(ctx, "ci-bot", "wrong")
	require.Error(t, err)
	assert.Equal(t, errors.KindUnauthorized, errors.KindOf(err))

	token, expires, err := a.M2MToken(ctx, "ci-bot", "s3cret")
	require.NoError(t, err)
	assert.True(t, expires.After(time.Now()))

	p, err := a.Authenticate(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, TierService, p.Tier)
	assert.True(t, p.MFAVerified)
	assert.Equal(t, "m2m:ci-bot", p.UserID)
}

func TestAPIKeys(t *testing.T) {
	a := newTestAuthenticator(t, nil)
	ctx := context.Background()

	p, err := a.Authenticate(ctx, "svc-key-1")
	require.NoError(t, err)
	assert.Equal(t, TierService, p.Tier)

	p, err = a.Authenticate(ctx, "dev-key-1")
	require.NoError(t, err)
	assert.Equal(t, TierDeveloper, p.Tier)
	assert.False(t, p.MFAVerified)

	_, err = a.Authenticate(ctx, "unknown-key")
	require.Error(t, err)
	assert.Equal(t, errors.KindUnauthorized, errors.KindOf(err))
}

func TestAnonymousAccess(t *testing.T) {
	a := newTestAuthenticator(t, nil)
	p, err := a.Authenticate(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, TierPublic, p.Tier)
}

func TestSessionExpiry(t *testing.T) {
	store := NewMemoryStore()
	session := &Session{
		ID:        "s1",
		State:     StateAuthenticated,
		UserID:    "u1",
		Tier:      "developer",
		ExpiresAt: time.Now().Add(-time.Minute),
	}
	require.NoError(t, store.Set(session))

	_, err := store.Get("s1")
	require.Error(t, err)
	assert.Equal(t, errors.KindUnauthorized, errors.KindOf(err))

	// Expired sessions are removed on read.
	_, err = store.Get("s1")
	assert.Equal(t, errors.KindNotFound, errors.KindOf(err))
}

func TestBoltStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.db")
	store, err := NewBoltStore(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	session := &Session{
		ID:        "s2",
		State:     StateMFAVerified,
		UserID:    "u9",
		Email:     "u9@corp.com",
		Tier:      "admin",
		ExpiresAt: time.Now().Add(time.Hour),
	}
	require.NoError(t, store.Set(session))

	got, err := store.Get("s2")
	require.NoError(t, err)
	assert.Equal(t, session.UserID, got.UserID)
	assert.Equal(t, StateMFAVerified, got.State)

	require.NoError(t, store.Delete("s2"))
	_, err = store.Get("s2")
	require.Error(t, err)
}
