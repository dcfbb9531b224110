package auth

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"campusmind-gateway/internal/config"
)

const testSessionSecret = "test-session-secret"

func testValidator() *SessionValidator {
	cfg := &config.Config{
		Session: config.SessionConfig{
			CookieName: "app_session",
			HeaderName: "X-Session-Token",
			Secret:     config.Secret(testSessionSecret),
		},
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewSessionValidator(cfg, logger)
}

// signSession creates an HS256 session credential with the given claims,
// expiring one hour from now unless exp is set.
func signSession(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	if _, ok := claims["exp"]; !ok {
		claims["exp"] = time.Now().Add(time.Hour).Unix()
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign session token: %v", err)
	}
	return signed
}

// requestWithCookie returns a GET request carrying the credential in the
// session cookie.
func requestWithCookie(credential string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/gateway/courses", http.NoBody)
	req.AddCookie(&http.Cookie{Name: "app_session", Value: credential})
	return req
}

func TestValidate_ValidCookie(t *testing.T) {
	v := testValidator()
	credential := signSession(t, testSessionSecret, jwt.MapClaims{
		"sub":     "u123",
		"email":   "u123@example.edu",
		"name":    "Test User",
		"picture": "https://img.example.edu/u123.png",
	})

	identity, err := v.Validate(requestWithCookie(credential))
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	if identity.Subject != "u123" {
		t.Errorf("Subject = %q, want %q", identity.Subject, "u123")
	}
	if identity.Email == nil || *identity.Email != "u123@example.edu" {
		t.Errorf("Email = %v, want %q", identity.Email, "u123@example.edu")
	}
	if identity.Name == nil || *identity.Name != "Test User" {
		t.Errorf("Name = %v, want %q", identity.Name, "Test User")
	}
	if identity.Picture == nil || *identity.Picture != "https://img.example.edu/u123.png" {
		t.Errorf("Picture = %v, want picture URL", identity.Picture)
	}
}

func TestValidate_HeaderFallback(t *testing.T) {
	v := testValidator()
	credential := signSession(t, testSessionSecret, jwt.MapClaims{"sub": "u123"})

	req := httptest.NewRequest(http.MethodGet, "/gateway/courses", http.NoBody)
	req.Header.Set("X-Session-Token", credential)

	identity, err := v.Validate(req)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if identity.Subject != "u123" {
		t.Errorf("Subject = %q, want %q", identity.Subject, "u123")
	}
}

func TestValidate_Idempotent(t *testing.T) {
	v := testValidator()
	credential := signSession(t, testSessionSecret, jwt.MapClaims{"sub": "u123"})

	first, err := v.Validate(requestWithCookie(credential))
	if err != nil {
		t.Fatalf("first Validate() error = %v", err)
	}
	second, err := v.Validate(requestWithCookie(credential))
	if err != nil {
		t.Fatalf("second Validate() error = %v", err)
	}

	if first.Subject != second.Subject {
		t.Errorf("subjects differ across calls: %q vs %q", first.Subject, second.Subject)
	}
}

func TestValidate_SubjectFallbackOrder(t *testing.T) {
	v := testValidator()

	tests := []struct {
		name   string
		claims jwt.MapClaims
		want   string
	}{
		{
			name:   "sub wins over user_id and email",
			claims: jwt.MapClaims{"sub": "s1", "user_id": "u1", "email": "e@x.y"},
			want:   "s1",
		},
		{
			name:   "user_id wins over email",
			claims: jwt.MapClaims{"user_id": "u1", "email": "e@x.y"},
			want:   "u1",
		},
		{
			name:   "email as last resort",
			claims: jwt.MapClaims{"email": "e@x.y"},
			want:   "e@x.y",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			credential := signSession(t, testSessionSecret, tt.claims)
			identity, err := v.Validate(requestWithCookie(credential))
			if err != nil {
				t.Fatalf("Validate() error = %v", err)
			}
			if identity.Subject != tt.want {
				t.Errorf("Subject = %q, want %q", identity.Subject, tt.want)
			}
		})
	}
}

func TestValidate_UniformFailure(t *testing.T) {
	v := testValidator()

	tests := []struct {
		name string
		req  func(t *testing.T) *http.Request
	}{
		{
			name: "no credential at all",
			req: func(_ *testing.T) *http.Request {
				return httptest.NewRequest(http.MethodGet, "/gateway/courses", http.NoBody)
			},
		},
		{
			name: "garbage credential",
			req: func(_ *testing.T) *http.Request {
				return requestWithCookie("not-a-jwt")
			},
		},
		{
			name: "wrong signing secret",
			req: func(t *testing.T) *http.Request {
				return requestWithCookie(signSession(t, "wrong-secret", jwt.MapClaims{"sub": "u123"}))
			},
		},
		{
			name: "expired credential",
			req: func(t *testing.T) *http.Request {
				return requestWithCookie(signSession(t, testSessionSecret, jwt.MapClaims{
					"sub": "u123",
					"exp": time.Now().Add(-time.Hour).Unix(),
				}))
			},
		},
		{
			name: "no expiration claim",
			req: func(t *testing.T) *http.Request {
				signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "u123"}).
					SignedString([]byte(testSessionSecret))
				if err != nil {
					t.Fatal(err)
				}
				return requestWithCookie(signed)
			},
		},
		{
			name: "unsigned token",
			req: func(t *testing.T) *http.Request {
				signed, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
					"sub": "u123",
					"exp": time.Now().Add(time.Hour).Unix(),
				}).SignedString(jwt.UnsafeAllowNoneSignatureType)
				if err != nil {
					t.Fatal(err)
				}
				return requestWithCookie(signed)
			},
		},
		{
			name: "no usable subject",
			req: func(t *testing.T) *http.Request {
				return requestWithCookie(signSession(t, testSessionSecret, jwt.MapClaims{"name": "No Subject"}))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			identity, err := v.Validate(tt.req(t))
			if identity != nil {
				t.Errorf("Validate() identity = %+v, want nil", identity)
			}
			// Every failure mode must collapse to the same sentinel so a
			// caller cannot distinguish "no session" from "bad session".
			if !errors.Is(err, ErrUnauthenticated) {
				t.Errorf("Validate() error = %v, want ErrUnauthenticated", err)
			}
		})
	}
}

func TestValidate_DoesNotMutateRequest(t *testing.T) {
	v := testValidator()
	credential := signSession(t, testSessionSecret, jwt.MapClaims{"sub": "u123"})
	req := requestWithCookie(credential)
	req.Header.Set("Content-Type", "application/json")

	before := len(req.Header)
	if _, err := v.Validate(req); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if len(req.Header) != before {
		t.Errorf("Validate() mutated request headers: %d → %d", before, len(req.Header))
	}
	if c, err := req.Cookie("app_session"); err != nil || c.Value != credential {
		t.Error("Validate() mutated the session cookie")
	}
}
