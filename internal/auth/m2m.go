package auth

import (
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/henryperkins/mcprag/internal/errors"
)

// m2mIssuerName identifies tokens minted by this service.
const m2mIssuerName = "mcprag"

// M2MIssuer mints and verifies HS256 bearer tokens for machine clients.
type M2MIssuer struct {
	secret []byte
}

// NewM2MIssuer creates an issuer over the shared signing secret.
func NewM2MIssuer(secret string) *M2MIssuer {
	return &M2MIssuer{secret: []byte(secret)}
}

// Issue mints a token for the client id expiring at the given time.
func (i *M2MIssuer) Issue(clientID string, expires time.Time) (string, error) {
	token, err := jwt.NewBuilder().
		Issuer(m2mIssuerName).
		Subject(clientID).
		IssuedAt(time.Now()).
		Expiration(expires).
		Claim("tier", TierService.String()).
		Build()
	if err != nil {
		return "", errors.Wrap(errors.KindInternal, "build token", err)
	}

	signed, err := jwt.Sign(token, jwt.WithKey(jwa.HS256, i.secret))
	if err != nil {
		return "", errors.Wrap(errors.KindInternal, "sign token", err)
	}
	return string(signed), nil
}

// Verify validates signature and expiry, returning the client id.
func (i *M2MIssuer) Verify(raw string) (string, time.Time, error) {
	token, err := jwt.Parse(
		[]byte(raw),
		jwt.WithKey(jwa.HS256, i.secret),
		jwt.WithValidate(true),
		jwt.WithIssuer(m2mIssuerName),
	)
	if err != nil {
		return "", time.Time{}, errors.Wrap(errors.KindUnauthorized, "invalid token", err)
	}
	return token.Subject(), token.Expiration(), nil
}
