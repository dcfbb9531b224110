package handler

import (
	"github.com/labstack/echo/v4"
)

// RegisterRoutes wires all route handlers onto the Echo instance. The gateway
// itself is a single wildcard mount: every verb and every path suffix goes
// through the same handler.
func RegisterRoutes(e *echo.Echo, gateway *GatewayHandler, health *HealthHandler) {
	e.GET("/healthz", health.Healthz)
	e.GET("/gateway-status", health.Status)

	e.Any("/gateway/*", gateway.Handle)
}
