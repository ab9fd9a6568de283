package api

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"StockPulse/internal/domain/models"
	xhttp "StockPulse/pkg/http"
)

// HealthCheck probes one dependency.
type HealthCheck func(ctx context.Context) error

type HealthHandler struct {
	backend    string
	session    func() models.SessionStatus
	collection func() models.CollectionStatus
	checks     map[string]HealthCheck
	started    time.Time
}

func NewHealthHandler(backend string, session func() models.SessionStatus, collection func() models.CollectionStatus, checks map[string]HealthCheck) *HealthHandler {
	return &HealthHandler{
		backend:    backend,
		session:    session,
		collection: collection,
		checks:     checks,
		started:    time.Now(),
	}
}

type healthResponse struct {
	Status        string            `json:"status"`
	Backend       string            `json:"backend"`
	Authenticated bool              `json:"authenticated"`
	Collection    string            `json:"collection"`
	Uptime        string            `json:"uptime"`
	Checks        map[string]string `json:"checks,omitempty"`
}

// Health reports 503 when any dependency check fails.
func (h *HealthHandler) Health(c echo.Context) error {
	res := healthResponse{
		Status:        "ok",
		Backend:       h.backend,
		Authenticated: h.session().Authenticated,
		Collection:    string(h.collection().State),
		Uptime:        time.Since(h.started).Round(time.Second).String(),
	}
	if len(h.checks) > 0 {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
		defer cancel()
		res.Checks = make(map[string]string, len(h.checks))
		for name, check := range h.checks {
			if err := check(ctx); err != nil {
				res.Checks[name] = err.Error()
				res.Status = "degraded"
				continue
			}
			res.Checks[name] = "ok"
		}
	}
	if res.Status != "ok" {
		return xhttp.JSON(c, http.StatusServiceUnavailable, res)
	}
	return xhttp.OK(c, res)
}
