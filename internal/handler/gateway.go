package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/labstack/echo/v4"

	"campusmind-gateway/internal/auth"
	"campusmind-gateway/internal/metrics"
	"campusmind-gateway/internal/model"
	"campusmind-gateway/internal/service"
	"campusmind-gateway/internal/token"
)

// GatewayHandler translates browser sessions into service assertions and
// relays requests to the internal API. One handler serves every HTTP verb
// and path suffix, so the validate → mint → forward → relay sequence cannot
// drift between routes.
type GatewayHandler struct {
	validator *auth.SessionValidator
	minter    *token.Minter
	forwarder *service.Forwarder
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

// NewGatewayHandler creates a GatewayHandler. The metrics parameter is
// optional; pass nil to disable auth outcome recording.
func NewGatewayHandler(v *auth.SessionValidator, m *token.Minter, f *service.Forwarder, logger *slog.Logger, met *metrics.Metrics) *GatewayHandler {
	return &GatewayHandler{
		validator: v,
		minter:    m,
		forwarder: f,
		logger:    logger.With("component", "gateway_handler"),
		metrics:   met,
	}
}

// Handle serves one request through the full gateway sequence.
//
// A validation failure short-circuits with a uniform 401 before anything is
// sent upstream. A minting failure is a 500 (it indicates misconfiguration,
// never a caller problem). Upstream transport failures map to 502/504, and
// every response the upstream actually produced, including its 4xx/5xx, is
// relayed verbatim.
func (h *GatewayHandler) Handle(c echo.Context) error {
	req := c.Request()

	identity, err := h.validator.Validate(req)
	if err != nil {
		h.recordAuth("unauthorized")
		// Uniform body: the caller must not learn why validation failed.
		return c.JSON(http.StatusUnauthorized, map[string]string{
			"error": "Unauthorized",
		})
	}
	h.recordAuth("ok")

	assertion, err := h.minter.Mint(identity, time.Now())
	if err != nil {
		h.logger.Error("mint assertion",
			"err", err,
			"path", req.URL.Path,
		)
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error": "gateway misconfigured",
		})
	}

	gr := &model.GatewayRequest{
		Ctx:      req.Context(),
		Method:   req.Method,
		Path:     c.Param("*"),
		RawQuery: req.URL.RawQuery,
		Header:   req.Header,
		Body:     req.Body,
	}

	resp, err := h.forwarder.Forward(gr, assertion)
	if err != nil {
		return h.mapUpstreamError(c, err)
	}
	defer func() { _ = resp.Body.Close() }()

	return h.relay(c, resp)
}

// relay copies the upstream status and filtered headers, then streams the
// body chunk-by-chunk. The body is never inspected or buffered in full.
func (h *GatewayHandler) relay(c echo.Context, resp *model.GatewayResponse) error {
	header := c.Response().Header()
	for key, vals := range resp.Header {
		for _, v := range vals {
			header.Add(key, v)
		}
	}
	// Untyped upstream bodies default to JSON so browser clients don't
	// mis-parse error payloads.
	if header.Get(echo.HeaderContentType) == "" {
		header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}

	c.Response().WriteHeader(resp.StatusCode)

	// If io.Copy fails mid-stream (client disconnect, upstream reset), the
	// status has already been sent; the client gets a truncated body with
	// the original status. Inherent trade-off of streaming relays.
	if _, err := io.Copy(c.Response(), resp.Body); err != nil {
		h.logger.Error("streaming response body",
			"err", err,
			"path", c.Request().URL.Path,
		)
	}

	return nil
}

// mapUpstreamError converts transport-level failures into 502/504 responses.
// These must stay distinct from the 401 path: a dead upstream is not a
// rejected credential.
func (h *GatewayHandler) mapUpstreamError(c echo.Context, err error) error {
	h.logger.Error("upstream error",
		"err", err,
		"path", c.Request().URL.Path,
	)

	if errors.Is(err, context.DeadlineExceeded) {
		return c.JSON(http.StatusGatewayTimeout, map[string]string{
			"error": "upstream request timed out",
		})
	}

	if errors.Is(err, context.Canceled) {
		return c.JSON(http.StatusBadGateway, map[string]string{
			"error": "client disconnected",
		})
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return c.JSON(http.StatusBadGateway, map[string]string{
			"error": "upstream host unreachable",
		})
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		if urlErr.Timeout() {
			return c.JSON(http.StatusGatewayTimeout, map[string]string{
				"error": "upstream request timed out",
			})
		}
		return c.JSON(http.StatusBadGateway, map[string]string{
			"error": "upstream connection failed",
		})
	}

	return c.JSON(http.StatusBadGateway, map[string]string{
		"error": "upstream request failed",
	})
}

func (h *GatewayHandler) recordAuth(result string) {
	if h.metrics != nil {
		h.metrics.AuthResults.WithLabelValues(result).Inc()
	}
}
