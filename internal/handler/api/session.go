package api

import (
	"context"

	"github.com/labstack/echo/v4"

	"StockPulse/internal/domain/models"
	xhttp "StockPulse/pkg/http"
	applogger "StockPulse/pkg/logger"
)

// SessionService is the part of the session manager the API drives.
type SessionService interface {
	LoginURL(state string) string
	Connect(ctx context.Context, authCode string) (models.SessionStatus, error)
	Refresh(ctx context.Context) (models.SessionStatus, error)
	Disconnect(ctx context.Context) error
	Status() models.SessionStatus
}

type SessionHandler struct {
	svc SessionService
	l   *applogger.Logger
}

func NewSessionHandler(svc SessionService, l *applogger.Logger) *SessionHandler {
	return &SessionHandler{svc: svc, l: l}
}

func (h *SessionHandler) Status(c echo.Context) error {
	return xhttp.OK(c, h.svc.Status())
}

func (h *SessionHandler) LoginURL(c echo.Context) error {
	req := &models.LoginURLRequest{}
	if verr := xhttp.Bind(c, req); verr != nil {
		return xhttp.Invalid(c, verr...)
	}
	return xhttp.OK(c, map[string]string{"url": h.svc.LoginURL(req.State)})
}

// Connect exchanges the auth code returned by the broker redirect.
func (h *SessionHandler) Connect(c echo.Context) error {
	req := &models.ConnectRequest{}
	if verr := xhttp.Bind(c, req); verr != nil {
		return xhttp.Invalid(c, verr...)
	}
	st, err := h.svc.Connect(c.Request().Context(), req.AuthCode)
	if err != nil {
		h.l.Warn("session connect failed", applogger.Error(err))
		return fail(c, h.l, "session connect", err)
	}
	return xhttp.OK(c, st)
}

func (h *SessionHandler) Refresh(c echo.Context) error {
	st, err := h.svc.Refresh(c.Request().Context())
	if err != nil {
		return fail(c, h.l, "session refresh", err)
	}
	return xhttp.OK(c, st)
}

func (h *SessionHandler) Disconnect(c echo.Context) error {
	if err := h.svc.Disconnect(c.Request().Context()); err != nil {
		return fail(c, h.l, "session disconnect", err)
	}
	return xhttp.OK(c, h.svc.Status())
}
