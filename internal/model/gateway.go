// Package model defines shared types for the gateway.
package model

import (
	"context"
	"io"
	"net/http"
)

// Identity is the validated result of a session credential verification.
// Optional fields are pointers; nil means the session authority did not
// supply the claim. An Identity lives for a single request cycle and is
// never persisted.
type Identity struct {
	Subject string
	Email   *string
	Name    *string
	Picture *string
}

// GatewayRequest represents a client request to be forwarded to the internal API.
// Path is the suffix after the gateway mount point; RawQuery is carried
// verbatim so the upstream sees the exact query string the client sent.
type GatewayRequest struct {
	Ctx      context.Context
	Method   string
	Path     string
	RawQuery string
	Header   http.Header
	Body     io.ReadCloser
}

// GatewayResponse represents the internal API response to be streamed back.
type GatewayResponse struct {
	StatusCode int
	Header     http.Header
	Body       io.ReadCloser
}
