// Package service implements the request forwarding logic of the gateway.
package service

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"campusmind-gateway/internal/client"
	"campusmind-gateway/internal/config"
	"campusmind-gateway/internal/model"
)

// forwardableRequestHeaders are the only client request headers forwarded to
// the internal API. Authorization and Cookie are deliberately absent: the
// end-user session credential must never reach the internal service.
var forwardableRequestHeaders = []string{
	"Accept",
	"Accept-Encoding",
	"Accept-Language",
	"Content-Type",
	"Content-Length",
}

// forwardableResponseHeaders are the only upstream response headers relayed
// to the client.
var forwardableResponseHeaders = map[string]bool{
	"Content-Type":     true,
	"Content-Length":   true,
	"Content-Encoding": true,
	"Cache-Control":    true,
	"Date":             true,
	"X-Request-Id":     true,
}

const userAgent = "campusmind-gateway/1.0"

// Forwarder relays authenticated requests to the internal API, swapping the
// session credential for a minted service assertion.
type Forwarder struct {
	client  *client.BackendClient
	logger  *slog.Logger
	baseURL *url.URL
}

// NewForwarder creates a Forwarder targeting the configured upstream base URL.
func NewForwarder(c *client.BackendClient, cfg *config.Config, logger *slog.Logger) (*Forwarder, error) {
	u, err := url.Parse(cfg.Upstream.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse upstream base_url: %w", err)
	}

	return &Forwarder{
		client:  c,
		logger:  logger.With("component", "forwarder"),
		baseURL: u,
	}, nil
}

// Forward sends gr to the internal API carrying assertion as the sole
// authorization credential. The caller is responsible for closing the
// response body.
//
// The inbound body is handed to the HTTP client as a stream, so uploads are
// never buffered in full. GET and HEAD requests carry no body upstream.
func (f *Forwarder) Forward(gr *model.GatewayRequest, assertion string) (*model.GatewayResponse, error) {
	upstreamURL := f.buildUpstreamURL(gr.Path, gr.RawQuery)

	header := f.filterRequestHeaders(gr.Header)
	header.Set("Authorization", "Bearer "+assertion)

	var body io.Reader = gr.Body
	if gr.Method == http.MethodGet || gr.Method == http.MethodHead || gr.Body == nil {
		body = http.NoBody
	}

	f.logger.Debug("forwarding request",
		"method", gr.Method,
		"path", gr.Path,
	)

	resp, err := f.client.DoStream(gr.Ctx, gr.Method, upstreamURL, header, body)
	if err != nil {
		return nil, fmt.Errorf("forward to upstream: %w", err)
	}

	resp.Header = f.filterResponseHeaders(resp.Header)
	return resp, nil
}

// buildUpstreamURL joins the configured base URL with the inbound path suffix
// and carries the raw query string through verbatim.
func (f *Forwarder) buildUpstreamURL(suffix, rawQuery string) string {
	u := *f.baseURL
	// The router hands over the wildcard suffix in its escaped form, so the
	// join happens on escaped paths. Keeping RawPath in sync with the decoded
	// Path stops URL.String from re-escaping percent signs, which would turn
	// an encoded slash into %252F upstream.
	raw := strings.TrimSuffix(u.EscapedPath(), "/") + "/" + strings.TrimPrefix(suffix, "/")
	if unescaped, err := url.PathUnescape(raw); err == nil {
		u.Path = unescaped
		u.RawPath = raw
	} else {
		u.Path = strings.TrimSuffix(u.Path, "/") + "/" + strings.TrimPrefix(suffix, "/")
		u.RawPath = ""
	}
	u.RawQuery = rawQuery
	return u.String()
}

func (f *Forwarder) filterRequestHeaders(src http.Header) http.Header {
	dst := make(http.Header)
	for _, key := range forwardableRequestHeaders {
		if vals := src.Values(key); len(vals) > 0 {
			dst[http.CanonicalHeaderKey(key)] = vals
		}
	}
	dst.Set("User-Agent", userAgent)
	return dst
}

func (f *Forwarder) filterResponseHeaders(src http.Header) http.Header {
	dst := make(http.Header)
	for key, vals := range src {
		if forwardableResponseHeaders[http.CanonicalHeaderKey(key)] {
			dst[key] = vals
		}
	}
	return dst
}
