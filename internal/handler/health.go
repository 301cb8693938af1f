package handler // declare the package name; contains HTTP handlers

import (
    "context"
    "net/http"
    "time"

    "github.com/labstack/echo/v4"
)

// Pinger is anything whose reachability the health check reports, such as
// *sql.DB.
type Pinger interface {
    PingContext(ctx context.Context) error
}

// PingFunc adapts a function to Pinger, e.g. a Redis client's Ping.
type PingFunc func(ctx context.Context) error

func (f PingFunc) PingContext(ctx context.Context) error { return f(ctx) }

// HealthHandler answers liveness probes.  Dependencies are reported but
// only the primary store decides the status code.
type HealthHandler struct {
    store    Pinger
    optional map[string]Pinger
}

// NewHealthHandler accepts a nil store for the in-memory driver.
func NewHealthHandler(store Pinger, optional map[string]Pinger) *HealthHandler {
    return &HealthHandler{store: store, optional: optional}
}

// Health handles GET /healthz.  It returns 200 with {"status":"ok"} when
// the store answers, 503 otherwise.
func (h *HealthHandler) Health(c echo.Context) error {
    ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
    defer cancel()

    checks := echo.Map{}
    status := http.StatusOK
    if h.store != nil {
        if err := h.store.PingContext(ctx); err != nil {
            checks["store"] = err.Error()
            status = http.StatusServiceUnavailable
        } else {
            checks["store"] = "ok"
        }
    }
    for name, p := range h.optional {
        if err := p.PingContext(ctx); err != nil {
            checks[name] = err.Error()
        } else {
            checks[name] = "ok"
        }
    }

    body := echo.Map{"status": "ok", "checks": checks}
    if status != http.StatusOK {
        body["status"] = "unavailable"
    }
    return c.JSON(status, body)
}
