// Package auth validates browser session credentials issued by the external
// session authority.
package auth

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/golang-jwt/jwt/v5"

	"campusmind-gateway/internal/config"
	"campusmind-gateway/internal/model"
)

// ErrUnauthenticated covers every validation failure. Missing, malformed,
// expired, and bad-signature credentials are intentionally indistinguishable
// to the caller so clients cannot probe for which sessions exist.
var ErrUnauthenticated = errors.New("unauthenticated")

// sessionClaims mirrors the claim set the session authority puts in its
// credential. user_id is the authority's legacy subject claim, kept as a
// fallback for older sessions.
type sessionClaims struct {
	jwt.RegisteredClaims
	UserID  string  `json:"user_id,omitempty"`
	Email   *string `json:"email"`
	Name    *string `json:"name"`
	Picture *string `json:"picture"`
}

// SessionValidator verifies session credentials and maps them to an Identity.
// It is read-only: it never mutates the request and performs no I/O.
type SessionValidator struct {
	cookieName string
	headerName string
	secret     []byte
	parser     *jwt.Parser
	logger     *slog.Logger
}

// NewSessionValidator creates a SessionValidator from the session authority
// settings in cfg.
func NewSessionValidator(cfg *config.Config, logger *slog.Logger) *SessionValidator {
	return &SessionValidator{
		cookieName: cfg.Session.CookieName,
		headerName: cfg.Session.HeaderName,
		secret:     []byte(cfg.Session.Secret.Value()),
		parser:     jwt.NewParser(jwt.WithValidMethods([]string{"HS256"}), jwt.WithExpirationRequired()),
		logger:     logger.With("component", "session_validator"),
	}
}

// Validate extracts and verifies the session credential on req and returns
// the caller's Identity. Verification is idempotent: the same credential
// always yields the same subject. Every failure collapses to
// ErrUnauthenticated; the reason is logged at debug level only.
func (v *SessionValidator) Validate(req *http.Request) (*model.Identity, error) {
	raw := v.extractCredential(req)
	if raw == "" {
		return nil, ErrUnauthenticated
	}

	claims := &sessionClaims{}
	token, err := v.parser.ParseWithClaims(raw, claims, func(_ *jwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil || !token.Valid {
		v.logger.Debug("session verification failed", "err", err)
		return nil, ErrUnauthenticated
	}

	// Fixed fallback order keeps the subject deterministic across calls:
	// sub, then the authority's user_id claim, then the email.
	subject := claims.Subject
	if subject == "" {
		subject = claims.UserID
	}
	if subject == "" && claims.Email != nil {
		subject = *claims.Email
	}
	if subject == "" {
		v.logger.Debug("session credential carries no usable subject")
		return nil, ErrUnauthenticated
	}

	return &model.Identity{
		Subject: subject,
		Email:   claims.Email,
		Name:    claims.Name,
		Picture: claims.Picture,
	}, nil
}

// extractCredential returns the raw session credential from the configured
// cookie, falling back to the configured header for non-browser callers.
func (v *SessionValidator) extractCredential(req *http.Request) string {
	if c, err := req.Cookie(v.cookieName); err == nil && c.Value != "" {
		return c.Value
	}
	return req.Header.Get(v.headerName)
}
