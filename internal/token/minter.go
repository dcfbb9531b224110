// Package token mints short-lived service assertions for the internal API.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"campusmind-gateway/internal/config"
	"campusmind-gateway/internal/model"
)

// ErrEmptySubject indicates a SessionValidator contract violation: an
// Identity must never reach the minter without a subject.
var ErrEmptySubject = errors.New("mint assertion: identity has empty subject")

// Claims is the assertion payload consumed by the internal API. Optional
// fields are pointers without omitempty so unknown values serialize as JSON
// null instead of disappearing; the internal API treats null and absent as
// the same "unknown" but should never have to guess which one it got.
type Claims struct {
	jwt.RegisteredClaims
	Email   *string `json:"email"`
	Name    *string `json:"name"`
	Picture *string `json:"picture"`
}

// Minter signs service assertions. The signing secret, issuer, audience, and
// lifetime are fixed at startup and shared read-only across all requests.
type Minter struct {
	secret   []byte
	issuer   string
	audience string
	lifetime time.Duration
}

// NewMinter creates a Minter from the assertion settings in cfg. Key material
// is validated at config load; by the time this runs the secret is known to
// be present.
func NewMinter(cfg *config.Config) *Minter {
	return &Minter{
		secret:   []byte(cfg.Assertion.Secret.Value()),
		issuer:   cfg.Assertion.Issuer,
		audience: cfg.Assertion.Audience,
		lifetime: time.Duration(cfg.Assertion.LifetimeSeconds) * time.Second,
	}
}

// Mint signs a new assertion for identity, valid from now for the configured
// lifetime. The claim set is fully determined by identity and now; nothing
// caller-controlled can reach iss, aud, iat, or exp. Each assertion is used
// for exactly one upstream request and never cached.
func (m *Minter) Mint(identity *model.Identity, now time.Time) (string, error) {
	if identity.Subject == "" {
		return "", ErrEmptySubject
	}

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity.Subject,
			Issuer:    m.issuer,
			Audience:  jwt.ClaimStrings{m.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.lifetime)),
		},
		Email:   identity.Email,
		Name:    identity.Name,
		Picture: identity.Picture,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("sign assertion: %w", err)
	}
	return signed, nil
}

// Lifetime returns the configured assertion validity window.
func (m *Minter) Lifetime() time.Duration {
	return m.lifetime
}
