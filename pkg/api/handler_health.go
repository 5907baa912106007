package api

import (
	"context"
	_ "embed"
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"
)

//go:embed static/index.html
var indexPage []byte

const (
	healthStatusHealthy   = "healthy"
	healthStatusUnhealthy = "unhealthy"
)

// indexHandler handles GET /.
// Serves the embedded demo recorder page.
func (s *Server) indexHandler(c *echo.Context) error {
	return c.HTMLBlob(http.StatusOK, indexPage)
}

// healthHandler handles GET /health.
// Only the gateway's own dependencies are checked; external vendors are
// excluded so their outages do not restart the gateway.
func (s *Server) healthHandler(c *echo.Context) error {
	reqCtx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]HealthCheck)
	status := healthStatusHealthy

	if err := s.db.Ping(reqCtx); err != nil {
		status = healthStatusUnhealthy
		checks["database"] = HealthCheck{Status: healthStatusUnhealthy, Message: err.Error()}
	} else {
		checks["database"] = HealthCheck{Status: healthStatusHealthy}
	}

	if depth, err := s.jobStore.QueueDepth(reqCtx); err != nil {
		status = healthStatusUnhealthy
		checks["job_queue"] = HealthCheck{Status: healthStatusUnhealthy, Message: err.Error()}
	} else {
		checks["job_queue"] = HealthCheck{Status: healthStatusHealthy, QueueDepth: &depth}
	}

	httpStatus := http.StatusOK
	if status == healthStatusUnhealthy {
		httpStatus = http.StatusServiceUnavailable
	}

	return c.JSON(httpStatus, &HealthResponse{Status: status, Checks: checks})
}
