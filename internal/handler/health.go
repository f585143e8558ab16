package handler

import (
	"database/sql"
	"net/http"

	"github.com/labstack/echo/v4"
)

// HealthHandler answers liveness probes.  It pings the database so an
// instance with a dead pool drops out of rotation.
type HealthHandler struct {
	DB *sql.DB
}

// Healthz reports service health.
// GET /healthz
func (h *HealthHandler) Healthz(c echo.Context) error {
	if h.DB != nil {
		if err := h.DB.PingContext(c.Request().Context()); err != nil {
			return c.JSON(http.StatusServiceUnavailable, echo.Map{"status": "degraded"})
		}
	}
	return c.JSON(http.StatusOK, echo.Map{"status": "ok"})
}
