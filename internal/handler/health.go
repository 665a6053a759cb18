package handler // declare the package name; contains HTTP handlers

import (
    "context"  // bounds each dependency probe
    "net/http" // net/http provides status codes and response helpers
    "time"     // probe timeout

    "github.com/labstack/echo/v4" // echo is the web framework used for this project
)

// Probe checks one dependency.  A nil Probe is skipped.
type Probe func(ctx context.Context) error

// HealthHandler reports liveness and dependency status.
type HealthHandler struct {
    Probes map[string]Probe
}

func NewHealthHandler(probes map[string]Probe) *HealthHandler { return &HealthHandler{Probes: probes} }

// Health is the health‑check endpoint used by load balancers and
// monitoring systems.  It returns 200 when every probe passes and 503
// otherwise, with the state of each dependency in the body.
func (h *HealthHandler) Health(c echo.Context) error {
    ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
    defer cancel()

    status := http.StatusOK
    checks := map[string]string{}
    for name, probe := range h.Probes {
        if probe == nil {
            continue
        }
        if err := probe(ctx); err != nil {
            checks[name] = err.Error()
            status = http.StatusServiceUnavailable
            continue
        }
        checks[name] = "ok"
    }
    state := "ok"
    if status != http.StatusOK {
        state = "degraded"
    }
    return c.JSON(status, echo.Map{"status": state, "checks": checks})
}
