package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/hostel-occupancy/internal/handler"
)

// RegisterRoutes registers routes that do not require authentication.
// Currently it exposes only the health check used by load balancers and
// monitoring.
func RegisterRoutes(e *echo.Echo, h *handler.HealthHandler) {
	e.GET("/healthz", h.Health)
}
